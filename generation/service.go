package generation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/asset"
	"github.com/BaSui01/mediaflow/config"
	"github.com/BaSui01/mediaflow/polling"
	"github.com/BaSui01/mediaflow/progress"
	"github.com/BaSui01/mediaflow/provider"
	"github.com/BaSui01/mediaflow/task"
	"github.com/BaSui01/mediaflow/types"
)

const instrumentationName = "github.com/BaSui01/mediaflow/generation"

// finalizeTimeout bounds the terminal store write after a run was cancelled.
const finalizeTimeout = 10 * time.Second

var (
	// ErrNotRunning is returned by Cancel for tasks without an active run.
	ErrNotRunning = errors.New("task is not running")
	// ErrClosed is returned once the service has been closed.
	ErrClosed = errors.New("generation service is closed")
)

// Request is one generation request. The embedded provider request is
// passed to the adapter unchanged.
type Request struct {
	Provider string    `json:"provider"`
	Kind     task.Kind `json:"kind,omitempty"`
	Tags     []string  `json:"tags,omitempty"`
	provider.Request
}

// Materializer stores provider outputs as catalog assets.
type Materializer interface {
	Materialize(ctx context.Context, src asset.Source) (*asset.Asset, error)
}

// Recorder receives one observation per finished task.
type Recorder interface {
	RecordGeneration(providerName, kind, status string, duration time.Duration)
}

// Options wires the service's collaborators.
type Options struct {
	Registry     *provider.Registry
	Store        task.Store
	Controller   *polling.Controller
	Materializer Materializer
	Reporter     progress.Reporter
	Polling      config.PollingConfig
	Recorder     Recorder
	Logger       *zap.Logger
}

// ProviderInfo describes one registered adapter.
type ProviderInfo struct {
	Name   string    `json:"name"`
	Kind   task.Kind `json:"kind"`
	Family string    `json:"family"` // polling or sync
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Service 生成任务编排：创建任务、提交到服务商、轮询、落盘并更新任务状态。
// 每个轮询类任务由一个独立 goroutine 驱动，同步类任务在 Submit 内完成。
type Service struct {
	registry     *provider.Registry
	store        task.Store
	controller   *polling.Controller
	materializer Materializer
	reporter     progress.Reporter
	profiles     map[task.Kind]polling.Profile
	recorder     Recorder
	tracer       trace.Tracer
	logger       *zap.Logger

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
}

// NewService validates opts and creates the service.
func NewService(opts Options) (*Service, error) {
	if opts.Registry == nil || opts.Store == nil || opts.Materializer == nil {
		return nil, types.NewError(types.ErrConfiguration, "generation service needs a registry, a task store and a materializer")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = progress.Nop{}
	}
	controller := opts.Controller
	if controller == nil {
		controller = polling.NewController(logger, polling.WithReporter(reporter))
	}

	profiles := map[task.Kind]polling.Profile{
		task.KindVideo:  polling.FromConfig(opts.Polling.Video),
		task.KindMusic:  polling.FromConfig(opts.Polling.Music),
		task.KindSpeech: polling.FromConfig(opts.Polling.Speech),
	}
	for kind, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("polling profile %s: %w", kind, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		registry:     opts.Registry,
		store:        opts.Store,
		controller:   controller,
		materializer: opts.Materializer,
		reporter:     reporter,
		profiles:     profiles,
		recorder:     opts.Recorder,
		tracer:       otel.Tracer(instrumentationName),
		logger:       logger.With(zap.String("component", "generation")),
		baseCtx:      ctx,
		cancelAll:    cancel,
		runs:         make(map[string]*run),
	}, nil
}

// Providers lists the registered adapters.
func (s *Service) Providers() []ProviderInfo {
	names := s.registry.Names()
	out := make([]ProviderInfo, 0, len(names))
	for _, n := range names {
		a, _ := s.registry.Get(n)
		family := "sync"
		if _, ok := a.(provider.PollingAdapter); ok {
			family = "polling"
		}
		out = append(out, ProviderInfo{Name: n, Kind: a.Kind(), Family: family})
	}
	return out
}

// Submit validates req and creates a pending task. Polling providers run in
// the background and the pending task is returned immediately; synchronous
// providers run inline and the returned task is already terminal.
func (s *Service) Submit(ctx context.Context, req Request) (*task.Task, error) {
	adapter, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	t, err := s.store.Create(ctx, task.Input{
		Kind:     adapter.Kind(),
		Provider: adapter.Name(),
		Model:    req.Model,
		Prompt:   req.Prompt,
		Inputs:   inputsOf(req),
		Metadata: maps.Clone(req.Options),
	})
	if err != nil {
		return nil, types.WrapError(err, types.ErrInternalError, "create task")
	}

	runCtx, r, err := s.register(t.ID)
	if err != nil {
		_, _ = s.store.Update(ctx, t.ID, task.Fail("service shutting down"))
		return nil, types.NewError(types.ErrServiceUnavailable, "service is shutting down").WithCause(err)
	}

	s.logger.Info("task accepted",
		zap.String("task_id", t.ID),
		zap.String("provider", adapter.Name()),
		zap.String("kind", string(adapter.Kind())))

	link := trace.LinkFromContext(ctx)
	switch a := adapter.(type) {
	case provider.PollingAdapter:
		bg := t.Clone()
		go func() {
			defer s.unregister(bg.ID, r)
			s.execute(runCtx, link, bg, req, func(ctx context.Context) (*asset.Source, error) {
				return s.poll(ctx, bg, a, req)
			})
		}()
		return t, nil

	default:
		// registration guarantees the sync family here; a client that goes
		// away cancels the inline run
		sa := a.(provider.SyncAdapter)
		stop := context.AfterFunc(ctx, r.cancel)
		defer stop()
		func() {
			defer s.unregister(t.ID, r)
			s.execute(runCtx, link, t, req, func(ctx context.Context) (*asset.Source, error) {
				return s.generate(ctx, sa, req)
			})
		}()
		return s.store.Get(context.WithoutCancel(ctx), t.ID)
	}
}

func (s *Service) validate(req Request) (provider.Adapter, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, types.NewError(types.ErrServiceUnavailable, "service is shutting down").WithCause(ErrClosed)
	}

	adapter, ok := s.registry.Get(req.Provider)
	if !ok {
		return nil, types.Errorf(types.ErrInvalidRequest, "unknown provider %q (available: %s)",
			req.Provider, strings.Join(s.registry.Names(), ", "))
	}
	if req.Kind != "" && req.Kind != adapter.Kind() {
		return nil, types.Errorf(types.ErrInvalidRequest, "provider %s generates %s, not %s", adapter.Name(), adapter.Kind(), req.Kind)
	}
	if strings.TrimSpace(req.Prompt) == "" && strings.TrimSpace(req.Lyrics) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "prompt is required")
	}
	return adapter, nil
}

func inputsOf(req Request) map[string]string {
	in := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			in[k] = v
		}
	}
	set("image_url", req.ImageURL)
	set("aspect_ratio", req.AspectRatio)
	set("style", req.Style)
	set("title", req.Title)
	set("voice", req.Voice)
	if req.Lyrics != "" {
		in["lyrics"] = req.Lyrics
	}
	if req.Duration > 0 {
		in["duration"] = fmt.Sprintf("%g", req.Duration)
	}
	if req.Instrumental {
		in["instrumental"] = "true"
	}
	if len(req.Tags) > 0 {
		in["tags"] = strings.Join(req.Tags, ",")
	}
	return in
}

func (s *Service) register(id string) (context.Context, *run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrClosed
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.runs[id] = r
	// counted under mu so Close cannot miss a run
	s.wg.Add(1)
	return ctx, r, nil
}

func (s *Service) unregister(id string, r *run) {
	r.cancel()
	s.mu.Lock()
	if s.runs[id] == r {
		delete(s.runs, id)
	}
	s.mu.Unlock()
	close(r.done)
	s.wg.Done()
}

// produceFunc performs the provider-specific part of a run and returns what
// should be materialized.
type produceFunc func(ctx context.Context) (*asset.Source, error)

// execute drives one task from processing to a terminal state.
func (s *Service) execute(ctx context.Context, link trace.Link, t *task.Task, req Request, produce produceFunc) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "generation.run",
		trace.WithLinks(link),
		trace.WithAttributes(
			attribute.String("task.id", t.ID),
			attribute.String("task.kind", string(t.Kind)),
			attribute.String("provider", t.Provider),
		))
	defer span.End()
	ctx = types.WithTask(ctx, t.ID, t.Provider)

	fail := func(err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.finish(ctx, t, start, "", err)
	}

	if _, err := s.store.Update(ctx, t.ID, task.SetStatus(task.StatusProcessing)); err != nil {
		fail(types.WrapError(err, types.ErrInternalError, "mark task processing"))
		return
	}
	progress.EmitProgress(s.reporter, t.ID, 0)

	src, err := produce(ctx)
	if err != nil {
		fail(err)
		return
	}

	src.Type = asset.TypeForKind(t.Kind)
	src.Prompt = t.Prompt
	src.Tags = req.Tags
	src.GenerationSeconds = time.Since(start).Seconds()
	if src.Metadata == nil {
		src.Metadata = map[string]string{}
	}
	src.Metadata["task_id"] = t.ID

	a, err := s.materializer.Materialize(ctx, *src)
	if err != nil {
		fail(err)
		return
	}
	span.SetAttributes(attribute.String("asset.id", a.ID))
	s.finish(ctx, t, start, a.ID, nil)
}

// poll runs the submit-then-poll family.
func (s *Service) poll(ctx context.Context, t *task.Task, a provider.PollingAdapter, req Request) (*asset.Source, error) {
	preq := req.Request
	sub, err := a.Submit(ctx, &preq)
	if err != nil {
		return nil, err
	}
	model := sub.Model
	if model == "" {
		model = preq.Model
	}
	if _, err := s.store.Update(ctx, t.ID, task.Update{Metadata: map[string]string{"external_id": sub.ExternalID}}); err != nil {
		s.logger.Debug("failed to record external id", zap.String("task_id", t.ID), zap.Error(err))
	}
	s.logger.Info("task submitted",
		zap.String("task_id", t.ID), zap.String("external_id", sub.ExternalID), zap.String("model", model))

	outputs, err := s.controller.Run(ctx, t.ID, s.profiles[a.Kind()], func(pctx context.Context) (provider.PollResult, error) {
		res, err := a.Poll(pctx, sub.ExternalID)
		if err == nil && res.State == provider.StateInProgress && res.Progress >= 0 {
			s.mirrorProgress(pctx, t.ID, res.Progress)
		}
		return res, err
	})
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, types.NewError(types.ErrGenerationFailed, "provider reported success without output").WithProvider(a.Name())
	}

	var cost float64
	if est, ok := a.(provider.CostEstimator); ok {
		cost = est.EstimateCost(&preq)
	}
	return &asset.Source{
		Provider:      a.Name(),
		Model:         model,
		Media:         outputs[0],
		EstimatedCost: cost,
		Metadata: map[string]string{
			"external_id": sub.ExternalID,
			"outputs":     fmt.Sprint(len(outputs)),
		},
	}, nil
}

// generate runs the synchronous family.
func (s *Service) generate(ctx context.Context, a provider.SyncAdapter, req Request) (*asset.Source, error) {
	preq := req.Request
	art, err := a.Generate(ctx, &preq)
	if err != nil {
		return nil, err
	}
	name := art.Provider
	if name == "" {
		name = a.Name()
	}
	return &asset.Source{
		Provider:      name,
		Model:         art.Model,
		Media:         art.Media,
		EstimatedCost: art.EstimatedCost,
		Metadata:      maps.Clone(art.Metadata),
	}, nil
}

// mirrorProgress copies a percentage into the task record. Failures are
// logged and otherwise ignored.
func (s *Service) mirrorProgress(ctx context.Context, id string, pct int) {
	if _, err := s.store.Update(ctx, id, task.SetProgress(pct)); err != nil {
		s.logger.Debug("failed to mirror progress", zap.String("task_id", id), zap.Error(err))
	}
}

// finish writes the terminal state. It runs even when ctx was cancelled.
func (s *Service) finish(ctx context.Context, t *task.Task, start time.Time, assetID string, runErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	status := task.StatusCompleted
	update := task.Complete(assetID)
	msg := ""
	if runErr != nil {
		status = task.StatusFailed
		msg = failureMessage(runErr)
		update = task.Fail(msg)
	}

	if _, err := s.store.Update(ctx, t.ID, update); err != nil {
		s.logger.Error("failed to record terminal state",
			zap.String("task_id", t.ID), zap.String("status", string(status)), zap.Error(err))
	}
	progress.EmitTerminal(s.reporter, t.ID, status, msg)

	elapsed := time.Since(start)
	if s.recorder != nil {
		s.recorder.RecordGeneration(t.Provider, string(t.Kind), string(status), elapsed)
	}
	if runErr != nil {
		s.logger.Warn("task failed",
			zap.String("task_id", t.ID),
			zap.String("code", string(types.GetErrorCode(runErr))),
			zap.Duration("elapsed", elapsed),
			zap.Error(runErr))
		return
	}
	s.logger.Info("task completed",
		zap.String("task_id", t.ID), zap.String("asset_id", assetID), zap.Duration("elapsed", elapsed))
}

// failureMessage is what the task record shows: the provider's own message
// for typed errors, "cancelled" for cancellation.
func failureMessage(err error) string {
	if errors.Is(err, context.Canceled) || types.IsErrorCode(err, types.ErrCancelled) {
		return "cancelled"
	}
	if e, ok := types.AsError(err); ok {
		if e.Cause != nil && e.Code != types.ErrGenerationFailed {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
	return err.Error()
}

// Get returns the task with id.
func (s *Service) Get(ctx context.Context, id string) (*task.Task, error) {
	return s.store.Get(ctx, id)
}

// List returns tasks matching f.
func (s *Service) List(ctx context.Context, f task.Filter) ([]*task.Task, error) {
	return s.store.List(ctx, f)
}

// Cancel stops the active run of id and waits for its terminal state.
func (s *Service) Cancel(ctx context.Context, id string) (*task.Task, error) {
	s.mu.Lock()
	r, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		if _, err := s.store.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotRunning
	}

	r.cancel()
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.store.Get(ctx, id)
}

// Wait blocks until the run of id has finished and returns the task.
func (s *Service) Wait(ctx context.Context, id string) (*task.Task, error) {
	s.mu.Lock()
	r, ok := s.runs[id]
	s.mu.Unlock()
	if ok {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.store.Get(ctx, id)
}

// Active returns the number of runs in flight.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Close rejects new submissions, cancels every run and waits for them to
// record their terminal state.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancelAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
