package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 4096

// NewHTTPClient returns the traced client shared by adapters and token strategies.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Do sends req and returns the body of a 2xx response. Any other status is
// returned as *APIError carrying the response body.
func Do(client *http.Client, platform models.Platform, op string, req *http.Request) ([]byte, http.Header, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", platform, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: read body: %w", platform, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Platform: platform, Op: op, Status: resp.StatusCode, Body: truncate(string(body))}
		log.Warn().
			Str("platform", string(platform)).
			Str("op", op).
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("platform api returned an error")
		return nil, resp.Header, apiErr
	}
	return body, resp.Header, nil
}

// DoJSON sends req and decodes a 2xx body into out.
func DoJSON(client *http.Client, platform models.Platform, op string, req *http.Request, out any) error {
	body, _, err := Do(client, platform, op, req)
	if err != nil {
		return err
	}
	return Decode(platform, op, body, out)
}

// Decode unmarshals a success body; an empty body leaves out untouched.
func Decode(platform models.Platform, op string, body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		log.Warn().Err(err).
			Str("platform", string(platform)).
			Str("op", op).
			Str("body", string(body)).
			Msg("platform api returned a malformed body")
		return &APIError{Platform: platform, Op: op, Status: http.StatusOK, Body: "malformed response: " + truncate(string(body))}
	}
	return nil
}

// NewJSONRequest builds a request with a JSON encoded payload.
func NewJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("error marshalling payload: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// MissingField reports a 2xx response that lacks a field the protocol needs.
func MissingField(platform models.Platform, op, field string, body any) error {
	b, _ := json.Marshal(body)
	return &APIError{Platform: platform, Op: op, Status: http.StatusOK, Body: fmt.Sprintf("missing %s in %s", field, truncate(string(b)))}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody] + "..."
}
