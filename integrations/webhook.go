package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/arkadian-io/flume/pkg/api"
)

// Webhook is a generic HTTP caller for services without a dedicated
// wrapper: a single "request" operation posting to a configured or
// per-call URL.
type Webhook struct {
	client *http.Client
}

// NewWebhook creates a webhook caller. A nil client defaults to
// http.DefaultClient.
func NewWebhook(client *http.Client) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{client: client}
}

// DescriptorWebhook is the catalog entry for this caller.
func DescriptorWebhook() Descriptor {
	return Descriptor{
		ID:          "webhook",
		DisplayName: "Webhook",
		Category:    "network",
		Description: "Calls an arbitrary HTTP endpoint.",
		Operations:  []string{"request"},
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Call(ctx context.Context, operation string, parameters api.Values) (api.Values, error) {
	if operation != "request" {
		return nil, fmt.Errorf("webhook: unsupported operation %q", operation)
	}
	rawURL, _ := parameters["url"].(string)
	if rawURL == "" {
		return nil, fmt.Errorf("webhook: url parameter is required")
	}
	method, _ := parameters["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if payload, ok := parameters["body"]; ok && payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), rawURL, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := parameters["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, &api.TransportError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &api.TransportError{URL: rawURL, Err: err}
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		decoded = string(payload)
	}
	return api.Values{
		"statusCode": resp.StatusCode,
		"data":       decoded,
		"success":    resp.StatusCode >= 200 && resp.StatusCode < 300,
	}, nil
}
