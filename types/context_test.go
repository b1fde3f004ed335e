package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTask(t *testing.T) {
	ctx := context.Background()
	_, ok := TaskID(ctx)
	assert.False(t, ok)

	ctx = WithTask(ctx, "t1", "runway")
	id, ok := TaskID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "t1", id)
	p, ok := Provider(ctx)
	assert.True(t, ok)
	assert.Equal(t, "runway", p)

	_, ok = TaskID(WithTask(context.Background(), "", ""))
	assert.False(t, ok, "empty ids are absent")
}
