package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookSink POSTs each matching event as JSON to URL.
type WebhookSink struct {
	URL    string
	Secret string
	Client *http.Client
	filter eventFilter
}

// NewWebhookSink delivers only the listed event types; an empty list means all.
func NewWebhookSink(url, secret string, types []string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookSink{
		URL:    url,
		Secret: secret,
		Client: &http.Client{Timeout: timeout},
		filter: newEventFilter(types),
	}
}

func (s *WebhookSink) Publish(ctx context.Context, evt Event) error {
	if !s.filter.match(evt.Type) {
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Taskline-Event", evt.Type)
	req.Header.Set("X-Taskline-Delivery", evt.ID)
	if strings.TrimSpace(s.Secret) != "" {
		req.Header.Set("X-Taskline-Secret", s.Secret)
	}
	res, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", s.URL, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("webhook %s: status %d: %s", s.URL, res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(types []string) eventFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evtType string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evtType]
	return ok
}
