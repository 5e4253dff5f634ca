package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sender is the request/response channel toward the guardrail service.
// Implementations classify failures into the package error taxonomy so the
// dispatcher and connection manager can decide on retry behavior.
type Sender interface {
	// Send submits a validation request and returns the raw response body.
	Send(ctx context.Context, payload ValidatePayload) ([]byte, error)

	// Probe performs a lightweight health/auth check.
	Probe(ctx context.Context) error
}

// HTTPTransport implements Sender over plain HTTP. The API key, when
// present, is sent as a bearer token. Each call carries a per-attempt
// timeout; a timeout is a transient failure, not an escalation.
type HTTPTransport struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// DefaultRequestTimeout is the per-attempt timeout applied when the
// configuration does not specify one.
const DefaultRequestTimeout = 10 * time.Second

// NewHTTPTransport creates a transport for the given server URL.
// A zero timeout falls back to DefaultRequestTimeout.
func NewHTTPTransport(serverURL, apiKey string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(serverURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Send implements Sender.
func (t *HTTPTransport) Send(ctx context.Context, payload ValidatePayload) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	t.setAuth(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	if err := classifyStatus(resp.StatusCode, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Probe implements Sender.
func (t *HTTPTransport) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	t.setAuth(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return classifyStatus(resp.StatusCode, raw)
}

func (t *HTTPTransport) setAuth(req *http.Request) {
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
}

// classifyTransportError maps connection-level failures. Everything at this
// level (refused connections, resets, timeouts) is transient except an
// explicit caller cancellation, which passes through unchanged.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &TransientError{Err: err}
}

// classifyStatus maps HTTP status codes to the error taxonomy:
// 401/403 are auth failures, 429 and 5xx are transient, other 4xx are
// request errors, and 2xx is success.
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{StatusCode: status, Message: errorMessage(body)}
	case status == http.StatusTooManyRequests || status >= 500:
		return &TransientError{StatusCode: status, Err: fmt.Errorf("server returned %d", status)}
	default:
		return &RequestError{StatusCode: status, Message: errorMessage(body)}
	}
}

// errorMessage extracts a human-readable message from an error body,
// falling back to the raw text for non-JSON bodies.
func errorMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
