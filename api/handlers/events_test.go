package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/progress"
	"github.com/BaSui01/mediaflow/task"
)

func newEventsServer(t *testing.T, tasks *fakeGeneration) (*progress.Hub, string) {
	t.Helper()
	hub := progress.NewHub(progress.DefaultHubConfig(), zap.NewNop())
	t.Cleanup(hub.Close)

	h := NewEventsHandler(hub, tasks, nil, zap.NewNop())
	r := chi.NewRouter()
	r.Get("/tasks/{id}/events", h.HandleEvents)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) progress.Event {
	t.Helper()
	var e progress.Event
	require.NoError(t, wsjson.Read(ctx, conn, &e))
	return e
}

func TestEventsHandler_StreamsUntilTerminal(t *testing.T) {
	tasks := newFakeGeneration()
	tasks.tasks["t1"] = &task.Task{ID: "t1", Status: task.StatusProcessing, Progress: 10, UpdatedAt: time.Now()}
	hub, base := newEventsServer(t, tasks)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, base+"/tasks/t1/events")

	snap := readEvent(t, ctx, conn)
	assert.Equal(t, "t1", snap.TaskID)
	assert.Equal(t, progress.EventProgress, snap.Type)
	assert.Equal(t, 10, snap.Progress)

	hub.Emit(progress.Event{TaskID: "other", Type: progress.EventProgress, Progress: 99})
	hub.Emit(progress.Event{TaskID: "t1", Type: progress.EventProgress, Progress: 55})
	hub.Emit(progress.Event{TaskID: "t1", Type: progress.EventCompleted, Status: task.StatusCompleted, Progress: 100})

	e := readEvent(t, ctx, conn)
	assert.Equal(t, 55, e.Progress)
	e = readEvent(t, ctx, conn)
	assert.Equal(t, progress.EventCompleted, e.Type)

	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestEventsHandler_TerminalSnapshotCloses(t *testing.T) {
	tasks := newFakeGeneration()
	tasks.tasks["t1"] = &task.Task{ID: "t1", Status: task.StatusFailed, Error: "content policy", UpdatedAt: time.Now()}
	_, base := newEventsServer(t, tasks)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, base+"/tasks/t1/events")

	e := readEvent(t, ctx, conn)
	assert.Equal(t, progress.EventFailed, e.Type)
	assert.Equal(t, "content policy", e.Message)

	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestEventsHandler_UnknownTask(t *testing.T) {
	_, base := newEventsServer(t, newFakeGeneration())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, base+"/tasks/ghost/events", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventsHandler_WildcardAndShutdown(t *testing.T) {
	hub, base := newEventsServer(t, newFakeGeneration())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, base+"/tasks/*/events")

	hub.Emit(progress.Event{TaskID: "a", Type: progress.EventCompleted, Status: task.StatusCompleted})
	hub.Emit(progress.Event{TaskID: "b", Type: progress.EventProgress, Progress: 20})

	assert.Equal(t, "a", readEvent(t, ctx, conn).TaskID)
	assert.Equal(t, "b", readEvent(t, ctx, conn).TaskID, "wildcard streams stay open after terminal events")

	hub.Close()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestSnapshotEvent(t *testing.T) {
	now := time.Now()
	e := snapshotEvent(&task.Task{ID: "x", Status: task.StatusCompleted, Progress: 100, UpdatedAt: now})
	assert.Equal(t, progress.EventCompleted, e.Type)
	assert.Equal(t, now, e.Timestamp)

	e = snapshotEvent(&task.Task{ID: "x", Status: task.StatusPending, Progress: -1})
	assert.Equal(t, progress.EventProgress, e.Type)
	assert.Equal(t, -1, e.Progress)
}
