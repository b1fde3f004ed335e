package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BaSui01/mediaflow/api/handlers"
	"github.com/BaSui01/mediaflow/types"
)

// Handlers 汇总路由需要的全部处理器
type Handlers struct {
	Health     *handlers.HealthHandler
	Generation *handlers.GenerationHandler
	Events     *handlers.EventsHandler
	Assets     *handlers.AssetHandler
	Assembly   *handlers.AssemblyHandler

	Version   string
	BuildTime string
	GitCommit string
}

// NewRouter 注册全部路由。middlewares 挂在路由内部，
// 因此可以读取 chi 的路由模式作为指标标签。
func NewRouter(h Handlers, middlewares ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewares...)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		handlers.WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		handlers.WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", nil)
	})

	r.Get("/health", h.Health.HandleHealth)
	r.Get("/healthz", h.Health.HandleHealth)
	r.Get("/ready", h.Health.HandleReady)
	r.Get("/readyz", h.Health.HandleReady)
	r.Get("/version", h.Health.HandleVersion(h.Version, h.BuildTime, h.GitCommit))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/providers", h.Generation.HandleProviders)
		r.Post("/generations", h.Generation.HandleSubmit)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.Generation.HandleListTasks)
			r.Get("/{id}", h.Generation.HandleGetTask)
			r.Post("/{id}/cancel", h.Generation.HandleCancelTask)
			r.Get("/{id}/events", h.Events.HandleEvents)
		})

		r.Route("/assets", func(r chi.Router) {
			r.Get("/", h.Assets.HandleList)
			r.Get("/{id}", h.Assets.HandleGet)
			r.Patch("/{id}", h.Assets.HandleAnnotate)
			r.Delete("/{id}", h.Assets.HandleDelete)
			r.Get("/{id}/file", h.Assets.HandleFile)
		})

		r.Post("/assemblies", h.Assembly.HandleAssemble)
		r.Post("/assemblies/plan", h.Assembly.HandlePlan)
	})

	return r
}
