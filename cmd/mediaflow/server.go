package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/api"
	"github.com/BaSui01/mediaflow/api/handlers"
	"github.com/BaSui01/mediaflow/assembly"
	"github.com/BaSui01/mediaflow/asset"
	"github.com/BaSui01/mediaflow/config"
	"github.com/BaSui01/mediaflow/generation"
	"github.com/BaSui01/mediaflow/internal/database"
	"github.com/BaSui01/mediaflow/internal/metrics"
	"github.com/BaSui01/mediaflow/internal/server"
	"github.com/BaSui01/mediaflow/internal/telemetry"
	"github.com/BaSui01/mediaflow/polling"
	"github.com/BaSui01/mediaflow/progress"
	"github.com/BaSui01/mediaflow/provider/factory"
	"github.com/BaSui01/mediaflow/task"
)

// skipAuthPaths 不需要认证的探针路径
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

// Server 是 MediaFlow 的主服务器，持有全部组件的生命周期
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	collector *metrics.Collector
	pool      *database.PoolManager
	store     task.Store
	catalog   *asset.Catalog
	hub       *progress.Hub

	generation *generation.Service
	assembly   *assembly.Service

	httpManager    *server.Manager
	metricsManager *server.Manager

	stopBackground context.CancelFunc
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 按依赖顺序初始化组件并启动 HTTP 与 metrics 服务器。
// 返回错误时已初始化的组件需要调用 Shutdown 释放。
func (s *Server) Start(ctx context.Context) error {
	var err error

	// 1. 遥测（失败只降级，不阻止启动）
	s.telemetry, err = telemetry.Init(ctx, s.cfg.Telemetry, Version, s.logger)
	if err != nil {
		s.logger.Warn("telemetry disabled", zap.Error(err))
	}

	// 2. 指标
	s.collector = metrics.NewCollector("mediaflow", s.logger)

	// 3. 任务存储
	if err := s.initTaskStore(ctx); err != nil {
		return fmt.Errorf("init task store: %w", err)
	}

	// 4. 素材目录与进度广播
	s.catalog, err = asset.OpenCatalog(s.cfg.Storage.Root, s.cfg.Storage.CatalogFile, s.logger)
	if err != nil {
		return fmt.Errorf("open asset catalog: %w", err)
	}
	s.hub = progress.NewHub(progress.DefaultHubConfig(), s.logger)

	// 5. 生成与合成服务
	if err := s.initServices(); err != nil {
		return err
	}

	// 6. HTTP 与 metrics 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()),
		zap.String("task_store", s.cfg.Tasks.Type),
		zap.String("storage_root", s.catalog.Root()),
	)
	return nil
}

// initTaskStore 创建任务存储；database 类型时同时建立连接池
func (s *Server) initTaskStore(ctx context.Context) error {
	backends := task.Backends{Redis: s.cfg.Redis, Logger: s.logger}

	if task.StoreType(s.cfg.Tasks.Type) == task.StoreTypeDatabase {
		db, err := database.Open(s.cfg.Database, s.logger)
		if err != nil {
			return err
		}
		s.pool, err = database.NewPoolManager(db, database.PoolConfigFrom(s.cfg.Database), s.collector, s.logger)
		if err != nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				_ = sqlDB.Close()
			}
			return err
		}
		backends.DB = s.pool.DB()
	}

	store, err := task.NewStore(ctx, s.cfg.Tasks, backends)
	if err != nil {
		return err
	}
	s.store = store
	return nil
}

// initServices 组装 provider、轮询、落盘与合成流水线
func (s *Server) initServices() error {
	registry, err := factory.NewRegistry(s.cfg.Providers, s.logger)
	if err != nil {
		return fmt.Errorf("build provider registry: %w", err)
	}
	if len(registry.Names()) == 0 {
		s.logger.Warn("no provider API keys configured, generation requests will be rejected")
	}

	reporter := progress.Multi{s.hub, progress.NewLogReporter(s.logger)}
	materializer := asset.NewMaterializer(s.catalog, asset.MaterializerConfig{
		DownloadTimeout: s.cfg.Storage.DownloadTimeout,
		MaxBytes:        s.cfg.Storage.MaxAssetBytes,
	}, s.logger).WithRecorder(s.collector)

	s.generation, err = generation.NewService(generation.Options{
		Registry:     registry,
		Store:        s.store,
		Controller:   polling.NewController(s.logger, polling.WithReporter(reporter)),
		Materializer: materializer,
		Reporter:     reporter,
		Polling:      s.cfg.Polling,
		Recorder:     s.collector,
		Logger:       s.logger,
	})
	if err != nil {
		return fmt.Errorf("create generation service: %w", err)
	}

	s.registerGauges()

	runner := assembly.ExecRunner{TailLines: 8}
	prober := assembly.NewFFprobe(s.cfg.Assembly.FFprobePath, runner)
	s.assembly = assembly.NewService(
		assembly.NewPlanner(s.cfg.Assembly, assembly.NewCatalogResolver(s.catalog, prober, s.logger)),
		assembly.NewExecutor(s.cfg.Assembly, runner, prober, s.catalog, s.logger),
		s.collector,
		s.logger,
	)
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer() error {
	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewCheck("tasks", s.store.Ping))
	health.RegisterCheck(handlers.NewCheck("catalog", s.catalog.Ping))
	health.RegisterCheck(handlers.NewOptionalCheck("ffmpeg", func(context.Context) error {
		_, err := exec.LookPath(s.cfg.Assembly.FFmpegPath)
		return err
	}))
	if s.pool != nil {
		health.RegisterCheck(handlers.NewCheck("database", s.pool.Ping))
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	s.stopBackground = cancel

	router := api.NewRouter(api.Handlers{
		Health:     health,
		Generation: handlers.NewGenerationHandler(s.generation, s.logger),
		Events:     handlers.NewEventsHandler(s.hub, s.generation, originHosts(s.cfg.Server.CORSAllowedOrigins), s.logger),
		Assets:     handlers.NewAssetHandler(s.catalog, s.logger),
		Assembly:   handlers.NewAssemblyHandler(s.assembly, s.logger),
		Version:    Version,
		BuildTime:  BuildTime,
		GitCommit:  GitCommit,
	}, s.middlewares(bgCtx)...)

	s.httpManager = server.NewManager("api", router, server.APIConfigFor(s.cfg.Server), s.logger)
	// websocket 进度流在 http.Server 关闭时随 hub 一起结束
	s.httpManager.RegisterOnShutdown(s.hub.Close)
	return s.httpManager.Start()
}

// middlewares 构建中间件链，第一个在最外层
func (s *Server) middlewares(ctx context.Context) []Middleware {
	sc := s.cfg.Server
	mws := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		CORS(sc.CORSAllowedOrigins),
	}
	if sc.RateLimitRPS > 0 {
		mws = append(mws, RateLimiter(ctx, float64(sc.RateLimitRPS), sc.RateLimitBurst, s.logger))
	}
	if len(sc.APIKeys) > 0 {
		mws = append(mws, APIKeyAuth(sc.APIKeys, skipAuthPaths, sc.AllowQueryAPIKey, s.logger))
	} else {
		s.logger.Warn("no API keys configured, API authentication disabled")
	}
	if sc.JWT.Enabled() {
		mws = append(mws, JWTAuth(sc.JWT, skipAuthPaths, s.logger))
	}
	return mws
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager("metrics", mux, server.ConfigFor(s.cfg.Server.MetricsPort, s.cfg.Server), s.logger)
	return s.metricsManager.Start()
}

// originHosts 把 CORS 来源转换为 websocket 的 host 匹配模式
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			hosts = append(hosts, o)
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}

// Errors 返回 HTTP 服务器运行期错误
func (s *Server) Errors() <-chan error {
	if s.httpManager == nil {
		return nil
	}
	return s.httpManager.Errors()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Shutdown 按启动的逆序关闭组件，跳过未初始化的部分
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("starting graceful shutdown")
	var errs []error

	// 1. 停止接收请求；websocket 流随 hub 关闭
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}

	// 2. 取消在途生成任务并等待 goroutine 退出
	if s.generation != nil {
		if err := s.generation.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("generation service: %w", err))
		}
	}
	if s.hub != nil {
		s.hub.Close()
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if s.stopBackground != nil {
		s.stopBackground()
	}

	// 3. 存储
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("task store: %w", err))
		}
	}
	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("asset catalog: %w", err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database pool: %w", err))
		}
	}

	// 4. 最后刷新遥测数据
	if err := s.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error("graceful shutdown finished with errors", zap.Error(err))
	} else {
		s.logger.Info("graceful shutdown completed")
	}
	return err
}

// registerGauges 暴露抓取时求值的运行时快照
func (s *Server) registerGauges() {
	s.collector.GaugeFunc("generation_active_runs", "Generation runs in flight", func() float64 {
		return float64(s.generation.Active())
	})
	s.collector.GaugeFunc("catalog_assets", "Assets registered in the catalog", func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := s.catalog.Count(ctx)
		if err != nil {
			return 0
		}
		return float64(n)
	})
	s.collector.CounterFunc("progress_events_dropped_total", "Progress events dropped for slow subscribers", func() float64 {
		return float64(s.hub.Dropped())
	})
}
