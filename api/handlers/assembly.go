package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/assembly"
)

// AssemblyService 是 handler 依赖的合成服务能力
type AssemblyService interface {
	Plan(ctx context.Context, req assembly.Request) (*assembly.Plan, error)
	Assemble(ctx context.Context, req assembly.Request) *assembly.Result
}

// AssemblyHandler 处理视频合成请求
type AssemblyHandler struct {
	svc    AssemblyService
	logger *zap.Logger
}

// PlanPreview 是 dry-run 返回的计划与完整 ffmpeg 参数
type PlanPreview struct {
	*assembly.Plan
	FilterGraph string   `json:"filter_graph"`
	Args        []string `json:"args"`
}

// NewAssemblyHandler 创建合成处理器
func NewAssemblyHandler(svc AssemblyService, logger *zap.Logger) *AssemblyHandler {
	return &AssemblyHandler{svc: svc, logger: logger.With(zap.String("handler", "assembly"))}
}

// HandleAssemble 处理 POST /api/v1/assemblies，同步执行并返回合成结果。
// 失败时 data 仍携带结果，error 给出错误码。
func (h *AssemblyHandler) HandleAssemble(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req assembly.Request
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	res := h.svc.Assemble(r.Context(), req)
	if res.Success {
		WriteStatus(w, http.StatusCreated, res)
		return
	}

	status := statusForCode(res.Code)
	WriteJSON(w, status, Response{
		Success:   false,
		Data:      res,
		Error:     &ErrorInfo{Code: string(res.Code), Message: res.Error},
		Timestamp: time.Now(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// HandlePlan 处理 POST /api/v1/assemblies/plan，只生成计划不执行 ffmpeg
func (h *AssemblyHandler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req assembly.Request
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	plan, err := h.svc.Plan(r.Context(), req)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, PlanPreview{Plan: plan, FilterGraph: plan.FilterGraph(), Args: plan.Args()})
}
