package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/mediaflow/task"
)

type stubPolling struct{ name string }

func (s stubPolling) Name() string  { return s.name }
func (stubPolling) Kind() task.Kind { return task.KindVideo }
func (stubPolling) Submit(context.Context, *Request) (Submission, error) {
	return Submission{ExternalID: "x"}, nil
}
func (stubPolling) Poll(context.Context, string) (PollResult, error) { return Succeeded(), nil }

type stubSync struct{}

func (stubSync) Name() string    { return "sync" }
func (stubSync) Kind() task.Kind { return task.KindMusic }
func (stubSync) Generate(context.Context, *Request) (*Artifact, error) {
	return &Artifact{}, nil
}

type stubBare struct{}

func (stubBare) Name() string    { return "bare" }
func (stubBare) Kind() task.Kind { return task.KindMusic }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubPolling{name: "runway"}))
	require.NoError(t, r.Register(stubSync{}))

	assert.Error(t, r.Register(stubPolling{name: "runway"}), "duplicate name")
	assert.Error(t, r.Register(stubBare{}), "no generation capability")

	a, ok := r.Get("runway")
	require.True(t, ok)
	_, isPolling := a.(PollingAdapter)
	assert.True(t, isPolling)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"runway", "sync"}, r.Names())
}
