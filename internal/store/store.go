// Package store holds the key-value backends the workflow document is
// persisted in, and the adapter that encodes the document as JSON.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"taskline/internal/domain"
)

// KV is a get/put store of opaque values.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Documents stores a domain.Document as a single JSON value.
type Documents struct {
	KV KV
}

func NewDocuments(kv KV) Documents {
	return Documents{KV: kv}
}

func (d Documents) Load(ctx context.Context, key string) (domain.Document, bool, error) {
	data, ok, err := d.KV.Get(ctx, key)
	if err != nil {
		return domain.Document{}, false, err
	}
	if !ok || len(data) == 0 {
		return domain.Document{}, false, nil
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.Document{}, false, fmt.Errorf("decode document %s: %w", key, err)
	}
	if doc.Requests == nil {
		doc.Requests = []domain.RequestEntry{}
	}
	for i := range doc.Requests {
		if doc.Requests[i].Tasks == nil {
			doc.Requests[i].Tasks = []domain.Task{}
		}
	}
	return doc, true, nil
}

func (d Documents) Save(ctx context.Context, key string, doc domain.Document) error {
	if doc.Requests == nil {
		doc.Requests = []domain.RequestEntry{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", key, err)
	}
	return d.KV.Put(ctx, key, data)
}
