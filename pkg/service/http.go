package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tarafreight/syncqueue/pkg/core"
)

// TokenSource supplies the bearer token for authenticated requests. An empty
// return sends the request without an Authorization header.
type TokenSource func() string

// HTTP implements core.Service against the queue service REST surface:
//
//	GET    {base}/queue?status=&limit=
//	POST   {base}/queue
//	PATCH  {base}/queue/{id}
//
// Responses are wrapped in {"entry": ...} / {"entries": [...]} envelopes;
// failures carry an {"error": "..."} body.
type HTTP struct {
	base   string
	client *http.Client
	token  TokenSource
}

// HTTPOption configures an HTTP service client.
type HTTPOption func(*HTTP)

// WithHTTPClient sets the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithTokenSource sets the bearer token supplier.
func WithTokenSource(ts TokenSource) HTTPOption {
	return func(h *HTTP) { h.token = ts }
}

// NewHTTP creates a client for a queue service rooted at baseURL.
func NewHTTP(baseURL string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type entryEnvelope struct {
	Entry *core.Entry `json:"entry"`
}

type entriesEnvelope struct {
	Entries []*core.Entry `json:"entries"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// ListEntries returns up to limit entries with the given status.
func (h *HTTP) ListEntries(ctx context.Context, status core.Status, limit int) ([]*core.Entry, error) {
	q := url.Values{}
	q.Set("status", string(status))
	q.Set("limit", strconv.Itoa(limit))

	var env entriesEnvelope
	if err := h.do(ctx, http.MethodGet, "/queue?"+q.Encode(), nil, &env); err != nil {
		return nil, err
	}
	return env.Entries, nil
}

// CreateEntry persists a new PENDING entry.
func (h *HTTP) CreateEntry(ctx context.Context, d core.Descriptor) (*core.Entry, error) {
	var env entryEnvelope
	if err := h.do(ctx, http.MethodPost, "/queue", d, &env); err != nil {
		return nil, err
	}
	return env.Entry, nil
}

// PatchEntry applies a status transition.
func (h *HTTP) PatchEntry(ctx context.Context, id string, patch core.Patch) (*core.Entry, error) {
	var env entryEnvelope
	if err := h.do(ctx, http.MethodPatch, "/queue/"+url.PathEscape(id), patch, &env); err != nil {
		return nil, err
	}
	return env.Entry, nil
}

func (h *HTTP) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("syncqueue: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != nil {
		if tok := h.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("syncqueue: queue service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return core.ErrEntryNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env errorEnvelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&env); decodeErr == nil && env.Error != "" {
			return fmt.Errorf("syncqueue: queue service error (%d): %s", resp.StatusCode, env.Error)
		}
		return fmt.Errorf("syncqueue: queue service error (%d)", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("syncqueue: failed to decode response: %w", err)
	}
	return nil
}
