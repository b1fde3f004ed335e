package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/asset"
	"github.com/BaSui01/mediaflow/generation"
	"github.com/BaSui01/mediaflow/task"
	"github.com/BaSui01/mediaflow/types"
)

// maxBodyBytes 限制 JSON 请求体大小
const maxBodyBytes = 1 << 20

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	// 响应头已写出，编码失败无法再改状态码
	_ = json.NewEncoder(w).Encode(data)
}

// WriteStatus 以指定状态码写入成功响应
func WriteStatus(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// WriteSuccess 写入 200 成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteStatus(w, http.StatusOK, data)
}

// WriteError 把任意错误映射为错误码和 HTTP 状态后写出
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	apiErr := toAPIError(err)
	status := apiErr.HTTPStatus
	if status == 0 {
		status = statusForCode(apiErr.Code)
	}

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(apiErr.Code)),
			zap.String("message", apiErr.Message),
			zap.Int("status", status),
			zap.Error(apiErr.Cause),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("API error", fields...)
		} else {
			logger.Debug("API error", fields...)
		}
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      string(apiErr.Code),
			Message:   apiErr.Message,
			Retryable: apiErr.Retryable,
			Provider:  apiErr.Provider,
		},
		Timestamp: time.Now(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// statusForCode 在 types.HTTPStatusFor 之上细化 API 语义
func statusForCode(code types.ErrorCode) int {
	switch code {
	case types.ErrMediaProbe:
		return http.StatusUnprocessableEntity
	default:
		return types.HTTPStatusFor(code)
	}
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// toAPIError 识别各业务包的哨兵错误
func toAPIError(err error) *types.Error {
	if e, ok := types.AsError(err); ok {
		return e
	}
	switch {
	case errors.Is(err, task.ErrNotFound), errors.Is(err, asset.ErrNotFound):
		return types.NewError(types.ErrNotFound, err.Error())
	case errors.Is(err, generation.ErrNotRunning), errors.Is(err, task.ErrInvalidTransition):
		return types.NewError(types.ErrInvalidTransition, err.Error()).WithHTTPStatus(http.StatusConflict)
	case errors.Is(err, task.ErrInvalidInput):
		return types.NewError(types.ErrInvalidRequest, err.Error())
	case errors.Is(err, generation.ErrClosed), errors.Is(err, task.ErrStoreClosed), errors.Is(err, asset.ErrCatalogClosed):
		return types.NewError(types.ErrServiceUnavailable, err.Error()).WithRetryable(true)
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.ErrTimeout, "request timed out").WithCause(err)
	case errors.Is(err, context.Canceled):
		return types.NewError(types.ErrCancelled, "request cancelled").WithCause(err)
	default:
		return types.NewError(types.ErrInternalError, "internal error").WithCause(err)
	}
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体，失败时已写出错误响应
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		msg := "invalid JSON body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
		}
		apiErr := types.NewError(types.ErrInvalidRequest, msg).WithCause(err)
		WriteError(w, apiErr, logger)
		return apiErr
	}

	return nil
}

// ValidateContentType 验证 Content-Type 为 application/json
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json"), logger)
		return false
	}
	return true
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码与响应大小。
// 保留 Flush 与 Hijack，websocket 升级可以穿过中间件。
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode   int
	Written      bool
	BytesWritten int64
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 记录第一次写入的状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 累计写入字节数
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.BytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher.
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker.
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	rw.Written = true
	rw.StatusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap 供 http.ResponseController 访问底层 writer
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
