package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/asset"
	"github.com/BaSui01/mediaflow/generation"
	"github.com/BaSui01/mediaflow/task"
	"github.com/BaSui01/mediaflow/types"
)

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, []int{1, 2, 3})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-42")

	WriteSuccess(w, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"typed invalid request", types.NewError(types.ErrInvalidRequest, "prompt is required"), http.StatusBadRequest, types.ErrInvalidRequest},
		{"typed rate limit", types.NewError(types.ErrRateLimit, "too many requests").WithProvider("suno"), http.StatusTooManyRequests, types.ErrRateLimit},
		{"explicit status wins", types.NewError(types.ErrInternalError, "x").WithHTTPStatus(http.StatusTeapot), http.StatusTeapot, types.ErrInternalError},
		{"task not found", fmt.Errorf("get: %w", task.ErrNotFound), http.StatusNotFound, types.ErrNotFound},
		{"asset not found", asset.ErrNotFound, http.StatusNotFound, types.ErrNotFound},
		{"not running", generation.ErrNotRunning, http.StatusConflict, types.ErrInvalidTransition},
		{"invalid input", task.ErrInvalidInput, http.StatusBadRequest, types.ErrInvalidRequest},
		{"catalog closed", asset.ErrCatalogClosed, http.StatusServiceUnavailable, types.ErrServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, types.ErrTimeout},
		{"plain error", fmt.Errorf("disk on fire"), http.StatusInternalServerError, types.ErrInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.wantCode), resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestWriteError_HidesInternalCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, fmt.Errorf("dial tcp 10.0.0.3:5432: connection refused"), nil)

	resp := decodeResponse(t, w)
	assert.Equal(t, "internal error", resp.Error.Message)
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid JSON", `{"name":"test","value":123}`, false},
		{"invalid JSON", `{"name":"test",}`, true},
		{"unknown field", `{"name":"test","unknown":"field"}`, true},
		{"oversized", `{"name":"` + strings.Repeat("x", 2<<20) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))

			var got payload
			err := DecodeJSONBody(w, r, &got, zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, payload{Name: "test", Value: 123}, got)
		})
	}
}

func TestDecodeJSONBody_Empty(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/test", nil)

	var v map[string]any
	assert.Error(t, DecodeJSONBody(w, r, &v, zap.NewNop()))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"application/json; charset=UTF-8", true},
		{"Application/JSON", true},
		{"text/plain", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", nil)
			r.Header.Set("Content-Type", tt.contentType)
			assert.Equal(t, tt.want, ValidateContentType(w, r, zap.NewNop()))
		})
	}
}

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := NewResponseWriter(w)

	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)

	n, err := rw.Write([]byte("test"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.EqualValues(t, 4, rw.BytesWritten)

	assert.Same(t, rw, NewResponseWriter(rw), "wrapping twice reuses the wrapper")
	assert.Equal(t, http.ResponseWriter(w), rw.Unwrap())

	_, _, err = rw.Hijack()
	assert.Error(t, err, "recorder cannot be hijacked")
}
