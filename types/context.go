package types

import "context"

type runKey int

const (
	taskIDKey runKey = iota
	providerKey
)

// WithTask tags ctx with the generation task it works for.
func WithTask(ctx context.Context, taskID, provider string) context.Context {
	ctx = context.WithValue(ctx, taskIDKey, taskID)
	return context.WithValue(ctx, providerKey, provider)
}

// TaskID returns the generation task a context works for.
func TaskID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(taskIDKey).(string)
	return v, ok && v != ""
}

// Provider returns the provider name attached by WithTask.
func Provider(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(providerKey).(string)
	return v, ok && v != ""
}
