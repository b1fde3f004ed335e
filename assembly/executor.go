package assembly

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/asset"
	"github.com/BaSui01/mediaflow/config"
	"github.com/BaSui01/mediaflow/types"
)

// maxIDAttempts bounds suffixing when two assemblies land in the same second.
const maxIDAttempts = 10

// Executor runs plans with ffmpeg and registers the output.
type Executor struct {
	ffmpeg  string
	timeout time.Duration
	runner  Runner
	prober  Prober
	catalog *asset.Catalog
	logger  *zap.Logger
}

// NewExecutor creates an executor. runner and prober default to the real
// binaries named in cfg.
func NewExecutor(cfg config.AssemblyConfig, runner Runner, prober Prober, catalog *asset.Catalog, logger *zap.Logger) *Executor {
	def := config.DefaultAssemblyConfig()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if prober == nil {
		prober = NewFFprobe(cfg.FFprobePath, runner)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		ffmpeg:  cfg.FFmpegPath,
		timeout: cfg.Timeout,
		runner:  runner,
		prober:  prober,
		catalog: catalog,
		logger:  logger.With(zap.String("component", "assembly_executor")),
	}
}

// Run executes plan, probes the produced file and registers it.
// The output file is removed on any failure after ffmpeg started.
func (e *Executor) Run(ctx context.Context, plan *Plan) (*Result, error) {
	rel, err := e.relativeOutput(plan.OutputPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(plan.OutputPath), 0o755); err != nil {
		return nil, types.NewError(types.ErrAssembly, "create output directory").WithCause(err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	e.logger.Info("running ffmpeg",
		zap.String("plan_id", plan.ID),
		zap.Int("inputs", len(plan.Inputs)),
		zap.String("output", plan.OutputPath))

	if _, err := e.runner.Run(runCtx, e.ffmpeg, plan.Args()...); err != nil {
		_ = os.Remove(plan.OutputPath)
		e.logger.Error("ffmpeg failed",
			zap.String("plan_id", plan.ID),
			zap.Strings("stderr", toolTail(err)),
			zap.Error(err))
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, types.Errorf(types.ErrAssembly, "ffmpeg timed out after %s", e.timeout).WithCause(err)
		}
		return nil, types.NewError(types.ErrAssembly, "ffmpeg failed").WithCause(err)
	}

	info, err := e.prober.Probe(ctx, plan.OutputPath)
	if err != nil {
		_ = os.Remove(plan.OutputPath)
		return nil, types.WrapError(err, types.ErrMediaProbe, "probe output")
	}

	a, err := e.register(ctx, plan, rel, info.Duration)
	if err != nil {
		_ = os.Remove(plan.OutputPath)
		return nil, types.NewError(types.ErrAssembly, "register output").WithCause(err)
	}

	e.logger.Info("assembly completed",
		zap.String("asset_id", a.ID),
		zap.Float64("duration", info.Duration),
		zap.Float64("nominal_duration", plan.Duration),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		Success:    true,
		OutputPath: rel,
		Duration:   info.Duration,
		CatalogID:  a.ID,
		Warnings:   plan.Warnings,
	}, nil
}

// relativeOutput maps the output path under the catalog root.
func (e *Executor) relativeOutput(out string) (string, error) {
	absRoot, err := filepath.Abs(e.catalog.Root())
	if err != nil {
		return "", types.NewError(types.ErrConfiguration, "resolve storage root").WithCause(err)
	}
	absOut, err := filepath.Abs(out)
	if err != nil {
		return "", types.NewError(types.ErrConfiguration, "resolve output path").WithCause(err)
	}
	rel, err := filepath.Rel(absRoot, absOut)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", types.Errorf(types.ErrConfiguration, "output %s is outside the storage root", out)
	}
	return filepath.ToSlash(rel), nil
}

func (e *Executor) register(ctx context.Context, plan *Plan, rel string, duration float64) (*asset.Asset, error) {
	sources := make([]string, 0, len(plan.Inputs))
	for _, in := range plan.Inputs {
		sources = append(sources, in.Role+":"+in.AssetID)
	}
	entry := &asset.Asset{
		Type:     asset.TypeVideo,
		Path:     rel,
		Provider: "assembly",
		Model:    "ffmpeg",
		Duration: duration,
		Metadata: map[string]string{
			"sources":         strings.Join(sources, ","),
			"target_duration": seconds(plan.TargetDuration),
		},
	}

	var err error
	for i := 0; i < maxIDAttempts; i++ {
		entry.ID = plan.ID
		if i > 0 {
			entry.ID = fmt.Sprintf("%s_%d", plan.ID, i+1)
		}
		var a *asset.Asset
		a, err = e.catalog.Add(ctx, entry)
		if !errors.Is(err, asset.ErrDuplicate) {
			return a, err
		}
	}
	return nil, err
}
