package progress

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/task"
)

// EventType 进度事件类型
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is one progress notification for a task.
// Progress is the provider-reported percentage, -1 when unknown.
type Event struct {
	TaskID    string      `json:"task_id"`
	Type      EventType   `json:"type"`
	Status    task.Status `json:"status,omitempty"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Reporter receives progress events. Emit must not block.
type Reporter interface {
	Emit(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Emit(e Event) { f(e) }

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(Event) {}

// Multi fans an event out to several reporters in order.
type Multi []Reporter

func (m Multi) Emit(e Event) {
	for _, r := range m {
		if r != nil {
			r.Emit(e)
		}
	}
}

// LogReporter 将进度事件写入结构化日志
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter creates a reporter that logs every event.
func NewLogReporter(logger *zap.Logger) *LogReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogReporter{logger: logger.With(zap.String("component", "progress"))}
}

func (l *LogReporter) Emit(e Event) {
	fields := []zap.Field{
		zap.String("task_id", e.TaskID),
		zap.String("type", string(e.Type)),
		zap.Int("progress", e.Progress),
	}
	switch e.Type {
	case EventFailed:
		l.logger.Warn("task failed", append(fields, zap.String("error", e.Message))...)
	case EventCompleted:
		l.logger.Info("task completed", fields...)
	default:
		l.logger.Debug("task progress", fields...)
	}
}

// EmitProgress 发送进度事件，pct 原样转发（不做平滑，可能回退）
func EmitProgress(r Reporter, taskID string, pct int) {
	if r == nil {
		return
	}
	r.Emit(Event{
		TaskID:    taskID,
		Type:      EventProgress,
		Status:    task.StatusProcessing,
		Progress:  pct,
		Timestamp: time.Now(),
	})
}

// EmitTerminal 发送终态事件
func EmitTerminal(r Reporter, taskID string, status task.Status, msg string) {
	if r == nil {
		return
	}
	e := Event{
		TaskID:    taskID,
		Type:      EventFailed,
		Status:    status,
		Progress:  -1,
		Message:   msg,
		Timestamp: time.Now(),
	}
	if status == task.StatusCompleted {
		e.Type = EventCompleted
		e.Progress = 100
	}
	r.Emit(e)
}
