package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger  *zap.Logger
	timeout time.Duration
	checks  []HealthCheck
	mu      sync.RWMutex
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // healthy, degraded, unhealthy
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // pass, warn, fail
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		logger:  logger.With(zap.String("component", "health")),
		timeout: 5 * time.Second,
	}
}

// RegisterCheck 注册就绪检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 与 /healthz（存活探针，不访问依赖）
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleReady 处理 /ready：并发执行全部检查。必需检查失败返回 503；
// 可选检查（例如 ffmpeg，只影响合成）失败时状态为 degraded，仍返回 200
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := check.Check(ctx)
			latency := time.Since(start)

			res := CheckResult{Status: "pass", Latency: latency.String()}
			if err != nil {
				res.Status = "fail"
				if isOptional(check) {
					res.Status = "warn"
				}
				res.Message = err.Error()
				h.logger.Warn("health check failed",
					zap.String("check", check.Name()),
					zap.Error(err),
					zap.Duration("latency", latency),
				)
			}
			results[i] = res
		}()
	}
	wg.Wait()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	code := http.StatusOK
	for i, check := range checks {
		status.Checks[check.Name()] = results[i]
		switch results[i].Status {
		case "fail":
			status.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		case "warn":
			if code == http.StatusOK {
				status.Status = "degraded"
			}
		}
	}

	WriteJSON(w, code, status)
}

// HandleVersion 处理 /version
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 检查适配器
// =============================================================================

// CheckFunc 把 Ping 风格的函数适配为 HealthCheck
type CheckFunc struct {
	name     string
	fn       func(ctx context.Context) error
	optional bool
}

// NewCheck 创建命名的必需检查，例如 NewCheck("tasks", store.Ping)
func NewCheck(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// NewOptionalCheck 创建失败时只降级不摘流的检查
func NewOptionalCheck(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn, optional: true}
}

func (c *CheckFunc) Name() string { return c.name }

func (c *CheckFunc) Optional() bool { return c.optional }

func isOptional(check HealthCheck) bool {
	o, ok := check.(interface{ Optional() bool })
	return ok && o.Optional()
}

func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }
