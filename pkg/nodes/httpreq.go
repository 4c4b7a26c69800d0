package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arkadian-io/flume/pkg/api"
)

const defaultHTTPTimeout = 30000 * time.Millisecond

func httpRequestSchema() api.Schema {
	return api.Schema{
		DisplayName: "HTTP Request",
		Description: "Issues an outbound HTTP request.",
		Category:    "network",
		Inputs: []api.PortSpec{
			{Name: "body", Type: "any"},
		},
		Outputs: []api.PortSpec{
			{Name: "response", Type: "object"},
		},
		Parameters: []api.ParamSpec{
			{Name: "method", Type: "string", Default: "GET"},
			{Name: "url", Type: "string", Required: true},
			{Name: "headers", Type: "object"},
			{Name: "query", Type: "object"},
			{Name: "body", Type: "any"},
			{Name: "timeout", Type: "number", Default: 30000, Description: "Request timeout in milliseconds"},
			{Name: "followRedirects", Type: "boolean", Default: true},
			{Name: "validateStatus", Type: "boolean", Default: false, Description: "Tag non-2xx responses as failed output"},
		},
	}
}

type httpRequestNode struct {
	client *http.Client
}

// Execute issues the configured request. HTTP-level error statuses are
// returned as ordinary output tagged success=false; only transport
// failures (DNS, refused connection, timeout) fail the node.
func (n *httpRequestNode) Execute(ctx context.Context, inputs api.Values, params api.Values, run *api.Execution) (api.Values, error) {
	rawURL := paramString(params, "url", "")
	if rawURL == "" {
		return nil, fmt.Errorf("url parameter is required")
	}

	method := strings.ToUpper(paramString(params, "method", http.MethodGet))
	timeout := paramDurationMS(params, "timeout", defaultHTTPTimeout)

	target, err := applyQuery(rawURL, paramStringMap(params, "query"))
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	body, contentType, err := encodeBody(inputs, params)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, target, body)
	if err != nil {
		return nil, err
	}
	for k, v := range paramStringMap(params, "headers") {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	client := n.client
	if !paramBool(params, "followRedirects", true) {
		noRedirect := *client
		noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		client = &noRedirect
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &api.TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &api.TransportError{URL: target, Err: err}
	}

	// success defaults to "not an error class"; validateStatus tightens
	// it to strictly 2xx. Either way a bad status is data, never a node
	// error.
	success := resp.StatusCode < 400
	if paramBool(params, "validateStatus", false) {
		success = resp.StatusCode >= 200 && resp.StatusCode < 300
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	response := api.Values{
		"statusCode": resp.StatusCode,
		"statusText": http.StatusText(resp.StatusCode),
		"headers":    headers,
		"data":       decodePayload(payload, resp.Header.Get("Content-Type")),
		"success":    success,
	}
	return api.Values{"response": response}, nil
}

func applyQuery(rawURL string, query map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// encodeBody prefers the body routed to the input port over the fixed
// parameter. Strings pass through; anything else is JSON-encoded.
func encodeBody(inputs api.Values, params api.Values) (io.Reader, string, error) {
	raw, ok := inputs["body"]
	if !ok {
		raw, ok = params["body"]
	}
	if !ok || raw == nil {
		return nil, "", nil
	}
	if s, isString := raw.(string); isString {
		return strings.NewReader(s), "", nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, "", fmt.Errorf("encoding request body: %w", err)
	}
	return bytes.NewReader(encoded), "application/json", nil
}

func decodePayload(payload []byte, contentType string) any {
	if strings.Contains(contentType, "application/json") {
		var decoded any
		if err := json.Unmarshal(payload, &decoded); err == nil {
			return decoded
		}
	}
	return string(payload)
}
