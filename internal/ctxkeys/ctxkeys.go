package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	traceIDKey   contextKey = "trace_id"
	subjectKey   contextKey = "subject"
)

func value(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	return value(ctx, requestIDKey)
}

// WithTraceID 设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) {
	return value(ctx, traceIDKey)
}

// WithSubject 设置已认证调用方（JWT sub 或 API Key 前缀）
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// Subject 获取已认证调用方
func Subject(ctx context.Context) (string, bool) {
	return value(ctx, subjectKey)
}
