package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tarafreight/syncqueue/pkg/core"
)

// Applier replays a queue entry against the domain API. A nil error marks
// the entry applied; any error counts as a failed attempt.
type Applier interface {
	Apply(ctx context.Context, entry *core.Entry) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, entry *core.Entry) error

// Apply implements Applier.
func (f ApplierFunc) Apply(ctx context.Context, entry *core.Entry) error {
	return f(ctx, entry)
}

// WebhookApplier posts the entry as JSON to a configured URL and treats any
// non-2xx response as a failed attempt.
type WebhookApplier struct {
	url    string
	client *http.Client
}

// NewWebhookApplier creates an applier posting to the given URL.
func NewWebhookApplier(url string) *WebhookApplier {
	return &WebhookApplier{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type webhookRequest struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entityType"`
	EntityID   *string         `json:"entityId"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
}

// Apply implements Applier.
func (a *WebhookApplier) Apply(ctx context.Context, entry *core.Entry) error {
	body, err := json.Marshal(webhookRequest{
		ID:         entry.ID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Payload:    entry.Payload,
		Attempts:   entry.Attempts,
	})
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
