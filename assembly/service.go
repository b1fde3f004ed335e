package assembly

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/mediaflow/assembly"

// Recorder receives one observation per assembly.
type Recorder interface {
	RecordAssembly(status string, duration time.Duration)
}

// Service is the assembly entry point: plan, execute, report.
type Service struct {
	planner  *Planner
	executor *Executor
	recorder Recorder
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewService wires a planner and an executor. recorder may be nil.
func NewService(planner *Planner, executor *Executor, recorder Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		planner:  planner,
		executor: executor,
		recorder: recorder,
		tracer:   otel.Tracer(instrumentationName),
		logger:   logger.With(zap.String("component", "assembly")),
	}
}

// Plan builds the plan for req without executing it.
func (s *Service) Plan(ctx context.Context, req Request) (*Plan, error) {
	return s.planner.Build(ctx, req)
}

// Assemble runs the whole pipeline. It never returns an error: every
// failure becomes a Result with Success false and an empty path.
func (s *Service) Assemble(ctx context.Context, req Request) *Result {
	ctx, span := s.tracer.Start(ctx, "assembly.assemble", trace.WithAttributes(
		attribute.Int("assembly.videos", len(req.Videos)),
		attribute.Bool("assembly.narration", req.Narration != nil),
		attribute.Float64("assembly.target_duration", req.TargetDuration),
		attribute.Bool("assembly.zoom", req.Zoom),
	))
	defer span.End()
	start := time.Now()

	res, err := s.run(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("assembly failed", zap.Error(err))
		s.record("failed", start)
		return failed(err)
	}

	span.SetAttributes(
		attribute.String("assembly.catalog_id", res.CatalogID),
		attribute.Float64("assembly.duration", res.Duration),
	)
	s.record("completed", start)
	return res
}

func (s *Service) run(ctx context.Context, req Request) (*Result, error) {
	plan, err := s.planner.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, w := range plan.Warnings {
		s.logger.Warn("assembly plan warning", zap.String("plan_id", plan.ID), zap.String("warning", w))
	}
	return s.executor.Run(ctx, plan)
}

func (s *Service) record(status string, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordAssembly(status, time.Since(start))
	}
}
