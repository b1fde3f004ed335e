package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BaSui01/mediaflow/types"
)

// maxResponseBytes caps JSON bodies read from providers.
const maxResponseBytes = 8 << 20

// errorMessagePaths is the ordered list of places providers put a
// human-readable failure message.
var errorMessagePaths = []string{
	"error.message",
	"detail.message",
	"message",
	"msg",
	"error",
	"detail",
	"failure",
	"base_resp.status_msg",
}

// Call describes one HTTP request to a provider.
type Call struct {
	Provider string
	Method   string
	URL      string
	Headers  map[string]string
	Body     any
}

// Do performs the call and returns the raw response body on 2xx.
// Non-2xx responses become classified *types.Error values.
func Do(ctx context.Context, client *http.Client, c Call) ([]byte, http.Header, error) {
	var body io.Reader
	if c.Body != nil {
		payload, err := json.Marshal(c.Body)
		if err != nil {
			return nil, nil, types.NewError(types.ErrInvalidRequest, "failed to encode request").
				WithCause(err).WithProvider(c.Provider)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, c.Method, c.URL, body)
	if err != nil {
		return nil, nil, types.NewError(types.ErrInvalidRequest, "failed to create request").
			WithCause(err).WithProvider(c.Provider)
	}
	if c.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("%s request failed", c.Provider)).
			WithCause(err).WithRetryable(true).WithProvider(c.Provider)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("%s response read failed", c.Provider)).
			WithCause(err).WithRetryable(true).WithProvider(c.Provider)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.Header, ClassifyHTTP(c.Provider, resp.StatusCode, data)
	}
	return data, resp.Header, nil
}

// ClassifyHTTP maps a provider HTTP failure onto an error code.
// Rate limits are marked retryable but callers never retry them on their own.
func ClassifyHTTP(providerName string, status int, body []byte) *types.Error {
	msg := ErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	text := fmt.Sprintf("%s error: status=%d %s", providerName, status, msg)

	var e *types.Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = types.NewError(types.ErrAuthentication, text)
	case status == http.StatusPaymentRequired:
		e = types.NewError(types.ErrInsufficientCredits, text)
	case status == http.StatusTooManyRequests:
		e = types.NewError(types.ErrRateLimit, text).WithRetryable(true)
	case status == http.StatusNotFound:
		e = types.NewError(types.ErrNotFound, text)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e = types.NewError(types.ErrInvalidRequest, text)
	case status >= 500:
		e = types.NewError(types.ErrUpstreamError, text).WithRetryable(true)
	default:
		e = types.NewError(types.ErrUpstreamError, text)
	}
	return e.WithHTTPStatus(status).WithProvider(providerName)
}

// ErrorMessage extracts a failure message from a JSON error body, falling
// back to the trimmed raw body for non-JSON responses.
func ErrorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !gjson.ValidBytes(body) {
		return truncate(strings.TrimSpace(string(body)), 300)
	}
	if msg, ok := FirstString(body, errorMessagePaths...); ok {
		return truncate(msg, 300)
	}
	return ""
}

// RequireAPIKey fails fast when a provider is used without credentials.
func RequireAPIKey(providerName, key string) error {
	if strings.TrimSpace(key) == "" {
		return types.NewError(types.ErrConfiguration,
			fmt.Sprintf("%s API key is not configured", providerName)).WithProvider(providerName)
	}
	return nil
}

// FirstString returns the first path holding a non-empty scalar string.
func FirstString(body []byte, paths ...string) (string, bool) {
	for _, p := range paths {
		r := gjson.GetBytes(body, p)
		if r.Exists() && (r.Type == gjson.String || r.Type == gjson.Number) && r.String() != "" {
			return r.String(), true
		}
	}
	return "", false
}

// FirstNumber returns the first path holding a number.
func FirstNumber(body []byte, paths ...string) (float64, bool) {
	for _, p := range paths {
		r := gjson.GetBytes(body, p)
		if r.Exists() && r.Type == gjson.Number {
			return r.Float(), true
		}
	}
	return 0, false
}

// FirstStrings returns the non-empty strings at the first path yielding any.
// Paths may address arrays, including gjson '#' queries.
func FirstStrings(body []byte, paths ...string) []string {
	for _, p := range paths {
		r := gjson.GetBytes(body, p)
		if !r.Exists() {
			continue
		}
		var out []string
		if r.IsArray() {
			for _, item := range r.Array() {
				if s := item.String(); item.Type == gjson.String && s != "" {
					out = append(out, s)
				}
			}
		} else if r.Type == gjson.String && r.String() != "" {
			out = append(out, r.String())
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// ProgressFromFraction converts a 0..1 fraction to a percentage.
func ProgressFromFraction(f float64) int {
	return int(f*100 + 0.5)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
