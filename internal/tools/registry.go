// Package tools exposes the workflow engine as named tools with JSON schemas.
// Parameters are validated against the schema before the engine is touched.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

var (
	ErrUnknownTool       = errors.New("unknown tool")
	ErrInvalidParameters = errors.New("invalid parameters")
)

// Tool describes one registered tool.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Source returns the Workflow a single call runs against.
type Source func(ctx context.Context) (Workflow, error)

// Static always hands out the same Workflow.
func Static(w Workflow) Source {
	return func(context.Context) (Workflow, error) { return w, nil }
}

type handler func(ctx context.Context, w Workflow, raw []byte) (any, error)

type entry struct {
	tool   Tool
	schema *huma.Schema
	call   handler
}

// Registry maps tool names to schemas and typed handlers.
type Registry struct {
	source  Source
	schemas huma.Registry
	order   []string
	tools   map[string]*entry
}

// NewRegistry builds the registry with every workflow tool registered.
// Array parameters never accept null.
func NewRegistry(source Source) (*Registry, error) {
	huma.DefaultArrayNullable = false
	r := &Registry{
		source:  source,
		schemas: huma.NewMapRegistry("#/components/schemas/", huma.DefaultSchemaNamer),
		tools:   make(map[string]*entry),
	}
	if err := registerWorkflowTools(r); err != nil {
		return nil, err
	}
	return r, nil
}

// register adds a tool whose parameters decode into P.
func register[P any](r *Registry, name, description string, fn func(ctx context.Context, w Workflow, p P) (any, error)) error {
	if _, dup := r.tools[name]; dup {
		return fmt.Errorf("tool %s registered twice", name)
	}
	t := reflect.TypeFor[P]()
	schema := r.schemas.Schema(t, false, t.Name())
	published, err := r.inline(schema)
	if err != nil {
		return fmt.Errorf("tool %s schema: %w", name, err)
	}
	r.tools[name] = &entry{
		tool:   Tool{Name: name, Description: description, InputSchema: published},
		schema: schema,
		call: func(ctx context.Context, w Workflow, raw []byte) (any, error) {
			var p P
			dec := json.NewDecoder(bytes.NewReader(raw))
			if err := dec.Decode(&p); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
			}
			return fn(ctx, w, p)
		},
	}
	r.order = append(r.order, name)
	return nil
}

// List returns every tool in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].tool)
	}
	return out
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	e, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return e.tool, true
}

// Call validates params against the tool's schema and runs it. A nil or empty
// params value is treated as an empty object.
func (r *Registry) Call(ctx context.Context, name string, params json.RawMessage) (any, error) {
	e, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	raw := bytes.TrimSpace(params)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if err := r.validate(e.schema, raw); err != nil {
		return nil, err
	}
	w, err := r.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("open workflow: %w", err)
	}
	return e.call(ctx, w, raw)
}

func (r *Registry) validate(schema *huma.Schema, raw []byte) error {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("%w: malformed JSON: %v", ErrInvalidParameters, err)
	}
	res := &huma.ValidateResult{}
	huma.Validate(r.schemas, schema, huma.NewPathBuffer([]byte(""), 0), huma.ModeWriteToServer, value, res)
	if len(res.Errors) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("%w: %s", ErrInvalidParameters, strings.Join(msgs, "; "))
}
