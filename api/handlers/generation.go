package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/generation"
	"github.com/BaSui01/mediaflow/task"
	"github.com/BaSui01/mediaflow/types"
)

// GenerationService 是 handler 依赖的生成服务能力
type GenerationService interface {
	Submit(ctx context.Context, req generation.Request) (*task.Task, error)
	Get(ctx context.Context, id string) (*task.Task, error)
	List(ctx context.Context, f task.Filter) ([]*task.Task, error)
	Cancel(ctx context.Context, id string) (*task.Task, error)
	Providers() []generation.ProviderInfo
}

// GenerationHandler 处理生成任务的提交、查询与取消
type GenerationHandler struct {
	svc    GenerationService
	logger *zap.Logger
}

// NewGenerationHandler 创建生成任务处理器
func NewGenerationHandler(svc GenerationService, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{svc: svc, logger: logger.With(zap.String("handler", "generation"))}
}

// HandleSubmit 处理 POST /api/v1/generations。
// 轮询型 provider 返回 202 与 pending 任务，同步型返回 200 与终态任务。
func (h *GenerationHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req generation.Request
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	t, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	status := http.StatusAccepted
	if t.Status.IsTerminal() {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/api/v1/tasks/"+t.ID)
	WriteStatus(w, status, t)
}

// HandleProviders 处理 GET /api/v1/providers
func (h *GenerationHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.svc.Providers())
}

// HandleListTasks 处理 GET /api/v1/tasks?kind=&status=&provider=&limit=&offset=
func (h *GenerationHandler) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := task.Filter{
		Kind:     task.Kind(q.Get("kind")),
		Status:   task.Status(q.Get("status")),
		Provider: q.Get("provider"),
	}
	if f.Kind != "" && !f.Kind.Valid() {
		WriteError(w, types.Errorf(types.ErrInvalidRequest, "unknown kind %q", f.Kind), h.logger)
		return
	}

	var err error
	if f.Limit, f.Offset, err = pagination(q.Get("limit"), q.Get("offset")); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	tasks, err := h.svc.List(r.Context(), f)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, tasks)
}

// HandleGetTask 处理 GET /api/v1/tasks/{id}
func (h *GenerationHandler) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, t)
}

// HandleCancelTask 处理 POST /api/v1/tasks/{id}/cancel，返回取消后的终态任务
func (h *GenerationHandler) HandleCancelTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, t)
}

// pagination 解析 limit/offset，空值为 0
func pagination(limitStr, offsetStr string) (limit, offset int, err error) {
	parse := func(name, s string) (int, error) {
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, types.Errorf(types.ErrInvalidRequest, "%s must be a non-negative integer", name)
		}
		return n, nil
	}
	if limit, err = parse("limit", limitStr); err != nil {
		return 0, 0, err
	}
	if offset, err = parse("offset", offsetStr); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
