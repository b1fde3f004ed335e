package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/progress"
	"github.com/BaSui01/mediaflow/task"
)

const eventWriteTimeout = 10 * time.Second

// Subscriber 是进度广播中心的订阅能力
type Subscriber interface {
	Subscribe(taskID string) *progress.Subscription
}

// TaskGetter 读取任务快照
type TaskGetter interface {
	Get(ctx context.Context, id string) (*task.Task, error)
}

// EventsHandler 通过 websocket 推送任务进度
type EventsHandler struct {
	hub            Subscriber
	tasks          TaskGetter
	originPatterns []string
	logger         *zap.Logger
}

// NewEventsHandler 创建进度推送处理器。originPatterns 为允许跨域连接的来源。
func NewEventsHandler(hub Subscriber, tasks TaskGetter, originPatterns []string, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		hub:            hub,
		tasks:          tasks,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("handler", "events")),
	}
}

// HandleEvents 处理 GET /api/v1/tasks/{id}/events。
// 单个任务先推送当前快照，任务进入终态后正常关闭；id 为 * 时订阅全部任务。
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// 先订阅再读快照，两者之间的事件不会丢失
	sub := h.hub.Subscribe(id)
	defer sub.Close()

	var snapshot *task.Task
	if id != progress.Wildcard {
		t, err := h.tasks.Get(r.Context(), id)
		if err != nil {
			WriteError(w, err, h.logger)
			return
		}
		snapshot = t
	}

	// 长连接不受 http.Server 的 WriteTimeout 约束
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("task_id", id), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	if snapshot != nil {
		if err := h.write(ctx, conn, snapshotEvent(snapshot)); err != nil {
			return
		}
		if snapshot.Status.IsTerminal() {
			conn.Close(websocket.StatusNormalClosure, "task finished")
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, e); err != nil {
				return
			}
			if id != progress.Wildcard && e.Type != progress.EventProgress {
				conn.Close(websocket.StatusNormalClosure, "task finished")
				return
			}
		}
	}
}

func (h *EventsHandler) write(ctx context.Context, conn *websocket.Conn, e progress.Event) error {
	wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	err := wsjson.Write(wctx, conn, e)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("websocket write failed", zap.String("task_id", e.TaskID), zap.Error(err))
	}
	return err
}

// snapshotEvent 把任务当前状态表示为一条进度事件
func snapshotEvent(t *task.Task) progress.Event {
	e := progress.Event{
		TaskID:    t.ID,
		Type:      progress.EventProgress,
		Status:    t.Status,
		Progress:  t.Progress,
		Message:   t.Error,
		Timestamp: t.UpdatedAt,
	}
	switch t.Status {
	case task.StatusCompleted:
		e.Type = progress.EventCompleted
	case task.StatusFailed:
		e.Type = progress.EventFailed
	}
	return e
}
