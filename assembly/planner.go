package assembly

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/mediaflow/asset"
	"github.com/BaSui01/mediaflow/config"
)

// Stage names in plan order.
const (
	StageNormalize = "normalize"
	StageConcat    = "concat"
	StageExtend    = "extend"
	StageAudio     = "audio"
	StageFade      = "fade"
)

const (
	defaultWidth  = 1280
	defaultHeight = 720
)

// Input is one ffmpeg input with the options that precede its -i.
type Input struct {
	Role    string   `json:"role"` // video, music, narration
	AssetID string   `json:"asset_id"`
	Path    string   `json:"path"`
	Options []string `json:"options,omitempty"`
}

// Stage is a named group of filter chains.
type Stage struct {
	Name    string   `json:"name"`
	Filters []string `json:"filters"`
}

// Plan 合成计划：由请求与已解析的输入纯函数推导得到。
// 相同输入得到相同计划（ID 与输出路径中的时间戳和随机后缀除外）。
type Plan struct {
	ID         string   `json:"id"`
	OutputPath string   `json:"output_path"`
	Inputs     []Input  `json:"inputs"`
	Stages     []Stage  `json:"stages"`
	VideoLabel string   `json:"video_label"`
	AudioLabel string   `json:"audio_label"`
	Encode     []string `json:"encode"`

	Width  int `json:"width"`
	Height int `json:"height"`

	ConcatDuration float64 `json:"concat_duration"`
	// TargetDuration is the effective target; zero when unset or ignored.
	TargetDuration float64 `json:"target_duration"`
	HoldDuration   float64 `json:"hold_duration"`
	HeldFrames     int     `json:"held_frames"`
	Zoom           bool    `json:"zoom"`
	// Duration is the nominal output length.
	Duration float64 `json:"duration"`

	Warnings []string `json:"warnings,omitempty"`
}

// Stage returns the stage named name, if present.
func (p *Plan) Stage(name string) (Stage, bool) {
	for _, s := range p.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// FilterGraph joins every stage into one -filter_complex description.
func (p *Plan) FilterGraph() string {
	var chains []string
	for _, s := range p.Stages {
		chains = append(chains, s.Filters...)
	}
	return strings.Join(chains, ";")
}

// Args is the complete ffmpeg argument vector.
func (p *Plan) Args() []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	for _, in := range p.Inputs {
		args = append(args, in.Options...)
		args = append(args, "-i", in.Path)
	}
	args = append(args,
		"-filter_complex", p.FilterGraph(),
		"-map", "["+p.VideoLabel+"]",
		"-map", "["+p.AudioLabel+"]",
	)
	args = append(args, p.Encode...)
	return append(args, p.OutputPath)
}

// Inputs resolved for one request, in request order.
type Inputs struct {
	Videos    []Source
	Music     Source
	Narration *Source
}

// Planner builds assembly plans.
type Planner struct {
	cfg      config.AssemblyConfig
	resolver Resolver
	now      func() time.Time
	suffix   func() string
}

// NewPlanner creates a planner. Zero config fields fall back to defaults.
func NewPlanner(cfg config.AssemblyConfig, resolver Resolver) *Planner {
	def := config.DefaultAssemblyConfig()
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = def.FrameRate
	}
	if cfg.ZoomMax < 1 {
		cfg.ZoomMax = def.ZoomMax
	}
	if cfg.FadeSeconds <= 0 {
		cfg.FadeSeconds = def.FadeSeconds
	}
	if cfg.Preset == "" {
		cfg.Preset = def.Preset
	}
	if cfg.CRF <= 0 {
		cfg.CRF = def.CRF
	}
	if cfg.AudioBitrate == "" {
		cfg.AudioBitrate = def.AudioBitrate
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = def.OutputDir
	}
	return &Planner{cfg: cfg, resolver: resolver, now: time.Now, suffix: shortID}
}

// Build validates req, resolves its assets and composes the plan.
// Nothing is executed.
func (p *Planner) Build(ctx context.Context, req Request) (*Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	in, err := p.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	stamp := p.now().UTC().Format("20060102_150405") + "_" + p.suffix()
	out := filepath.Join(p.cfg.OutputDir, outputBase(req.OutputName)+"_"+stamp+".mp4")
	return p.Compose(req, in, "assembly_"+stamp, out), nil
}

// shortID keeps plans built within the same second apart.
func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// resolve looks up every referenced asset concurrently; results keep
// request order.
func (p *Planner) resolve(ctx context.Context, req Request) (Inputs, error) {
	in := Inputs{Videos: make([]Source, len(req.Videos))}
	var narration Source

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range req.Videos {
		g.Go(func() error {
			src, err := p.resolver.Resolve(gctx, id, asset.TypeVideo)
			in.Videos[i] = src
			return err
		})
	}
	g.Go(func() error {
		src, err := p.resolver.Resolve(gctx, req.Music.AssetID, asset.TypeMusic, asset.TypeSpeech)
		in.Music = src
		return err
	})
	if req.Narration != nil {
		g.Go(func() error {
			src, err := p.resolver.Resolve(gctx, req.Narration.AssetID, asset.TypeSpeech, asset.TypeMusic)
			narration = src
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Inputs{}, err
	}
	if req.Narration != nil {
		in.Narration = &narration
	}
	return in, nil
}

// Compose derives the plan from a request and its resolved inputs.
// It is a pure function of its arguments.
func (p *Planner) Compose(req Request, in Inputs, id, outputPath string) *Plan {
	fps := p.cfg.FrameRate
	plan := &Plan{ID: id, OutputPath: outputPath, Zoom: req.Zoom}
	plan.Width, plan.Height = frameSize(in.Videos)

	// inputs: videos first, then music, then narration
	for _, v := range in.Videos {
		plan.Inputs = append(plan.Inputs, Input{Role: "video", AssetID: v.AssetID, Path: v.Path})
		plan.ConcatDuration += v.Duration
	}
	musicIdx := len(plan.Inputs)
	plan.Inputs = append(plan.Inputs, Input{
		Role:    "music",
		AssetID: in.Music.AssetID,
		Path:    in.Music.Path,
		Options: trimOptions(req.Music),
	})
	narrationIdx := -1
	if req.Narration != nil && in.Narration != nil {
		narrationIdx = len(plan.Inputs)
		plan.Inputs = append(plan.Inputs, Input{Role: "narration", AssetID: in.Narration.AssetID, Path: in.Narration.Path})
	}

	// 1. normalize every clip to the first clip's geometry
	normalize := Stage{Name: StageNormalize}
	labels := make([]string, len(in.Videos))
	for i := range in.Videos {
		labels[i] = fmt.Sprintf("[v%d]", i)
		normalize.Filters = append(normalize.Filters, fmt.Sprintf(
			"[%d:v]fps=%d,scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1%s",
			i, fps, plan.Width, plan.Height, plan.Width, plan.Height, labels[i]))
	}
	plan.Stages = append(plan.Stages, normalize)

	// 2. video-only concatenation; source audio is never mapped
	plan.Stages = append(plan.Stages, Stage{
		Name:    StageConcat,
		Filters: []string{fmt.Sprintf("%sconcat=n=%d:v=1:a=0[vcat]", strings.Join(labels, ""), len(labels))},
	})
	plan.VideoLabel = "vcat"
	plan.Duration = plan.ConcatDuration

	// 3. extension
	switch {
	case req.TargetDuration <= 0:
	case req.TargetDuration < plan.ConcatDuration:
		plan.Warnings = append(plan.Warnings, fmt.Sprintf(
			"target duration %ss is shorter than the clips (%ss); target ignored",
			seconds(req.TargetDuration), seconds(plan.ConcatDuration)))
	default:
		plan.TargetDuration = req.TargetDuration
		plan.Duration = req.TargetDuration
		plan.HoldDuration = req.TargetDuration - plan.ConcatDuration
		if plan.HoldDuration > 0 {
			plan.Stages = append(plan.Stages, p.extend(plan, fps))
			plan.VideoLabel = "vext"
		}
	}

	// 4. audio
	audio := Stage{Name: StageAudio}
	audio.Filters = append(audio.Filters, fmt.Sprintf("[%d:a]volume=%s[music]", musicIdx, gain(req.Music.Volume)))
	mixed := "[music]"
	if narrationIdx >= 0 {
		audio.Filters = append(audio.Filters,
			fmt.Sprintf("[%d:a]volume=%s[narration]", narrationIdx, gain(req.Narration.Volume)),
			"[music][narration]amix=inputs=2:duration=shortest:normalize=0[amix]",
		)
		mixed = "[amix]"
	}
	plan.Stages = append(plan.Stages, audio)

	// 5. fade-out
	fade := Stage{Name: StageFade}
	if fd := p.cfg.FadeSeconds; req.FadeOut && plan.TargetDuration > fd {
		fade.Filters = []string{fmt.Sprintf("%safade=t=out:st=%s:d=%s[aout]", mixed, seconds(plan.TargetDuration-fd), seconds(fd))}
	} else {
		fade.Filters = []string{mixed + "anull[aout]"}
	}
	plan.Stages = append(plan.Stages, fade)
	plan.AudioLabel = "aout"

	// 6. encode
	plan.Encode = []string{
		"-c:v", "libx264",
		"-preset", p.cfg.Preset,
		"-crf", strconv.Itoa(p.cfg.CRF),
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		"-c:a", "aac",
		"-b:a", p.cfg.AudioBitrate,
		"-movflags", "+faststart",
	}
	if plan.TargetDuration > 0 {
		plan.Encode = append(plan.Encode, "-t", seconds(plan.TargetDuration))
	} else {
		plan.Encode = append(plan.Encode, "-shortest")
	}
	return plan
}

// extend freezes the last frame for the hold duration, optionally zooming.
func (p *Planner) extend(plan *Plan, fps int) Stage {
	plan.HeldFrames = int(math.Round(plan.HoldDuration * float64(fps)))
	chain := "[vcat]tpad=stop_mode=clone:stop_duration=" + seconds(plan.HoldDuration)

	if plan.Zoom && plan.HeldFrames > 1 {
		start := int(math.Round(plan.ConcatDuration * float64(fps)))
		step := zoomStep(plan.HeldFrames, p.cfg.ZoomMax)
		zmax := strconv.FormatFloat(p.cfg.ZoomMax, 'f', -1, 64)
		chain += fmt.Sprintf(
			",zoompan=z='if(lt(on,%d),1,min(1+%s*(on-%d),%s))':x='iw/2-iw/zoom/2':y='ih/2-ih/zoom/2':d=1:s=%dx%d:fps=%d",
			start, strconv.FormatFloat(step, 'g', -1, 64), start, zmax, plan.Width, plan.Height, fps)
	}
	return Stage{Name: StageExtend, Filters: []string{chain + "[vext]"}}
}

func zoomStep(heldFrames int, zoomMax float64) float64 {
	if heldFrames <= 1 {
		return 0
	}
	return (zoomMax - 1) / float64(heldFrames-1)
}

// ZoomFactor is the magnification at held frame n (0-based) of heldFrames:
// 1.0 on the first frame, zoomMax on the last, linear between.
func ZoomFactor(n, heldFrames int, zoomMax float64) float64 {
	if heldFrames <= 1 || n <= 0 {
		return 1
	}
	return math.Min(1+zoomStep(heldFrames, zoomMax)*float64(n), zoomMax)
}

// frameSize uses the first clip's geometry rounded down to even numbers,
// which libx264 with yuv420p requires.
func frameSize(videos []Source) (int, int) {
	if len(videos) == 0 || videos[0].Width <= 0 || videos[0].Height <= 0 {
		return defaultWidth, defaultHeight
	}
	w, h := videos[0].Width&^1, videos[0].Height&^1
	if w == 0 || h == 0 {
		return defaultWidth, defaultHeight
	}
	return w, h
}

func trimOptions(m MusicTrack) []string {
	var opts []string
	if m.TrimStart > 0 {
		opts = append(opts, "-ss", seconds(m.TrimStart))
	}
	if m.TrimEnd > 0 {
		opts = append(opts, "-to", seconds(m.TrimEnd))
	}
	return opts
}

func seconds(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

func gain(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

var unsafeOutput = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func outputBase(name string) string {
	name = strings.Trim(unsafeOutput.ReplaceAllString(name, "_"), "_")
	if name == "" {
		return "assembly"
	}
	return name
}
