package assembly

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BaSui01/mediaflow/types"
)

// stderrTailBytes bounds how much diagnostic output is kept per run.
const stderrTailBytes = 64 << 10

// Runner executes an external tool with an argument vector.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ToolError reports a non-zero tool exit with the tail of its stderr.
type ToolError struct {
	Tool  string
	Tail  []string
	Cause error
}

func (e *ToolError) Error() string {
	if len(e.Tail) == 0 {
		return fmt.Sprintf("%s: %v", e.Tool, e.Cause)
	}
	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Cause, strings.Join(e.Tail, " | "))
}

func (e *ToolError) Unwrap() error { return e.Cause }

// ExecRunner runs tools with os/exec. No shell is involved.
type ExecRunner struct {
	// TailLines is the number of stderr lines kept on failure.
	TailLines int
}

// Run executes name with args and returns stdout.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		n := r.TailLines
		if n <= 0 {
			n = 5
		}
		return stdout.Bytes(), &ToolError{Tool: name, Tail: lastLines(stderr.String(), n), Cause: err}
	}
	return stdout.Bytes(), nil
}

// tailBuffer keeps only the last max bytes written.
type tailBuffer struct {
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }

// lastLines returns up to n non-empty trailing lines. ffmpeg rewrites its
// progress line with carriage returns, so those count as breaks too.
func lastLines(s string, n int) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	out := make([]string, 0, n)
	for i := len(fields) - 1; i >= 0 && len(out) < n; i-- {
		if line := strings.TrimSpace(fields[i]); line != "" {
			out = append(out, line)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// MediaInfo is what ffprobe reports about a file.
type MediaInfo struct {
	Duration float64
	Width    int
	Height   int
	HasAudio bool
}

// Prober reads media properties from a file.
type Prober interface {
	Probe(ctx context.Context, path string) (MediaInfo, error)
}

// FFprobe probes files with the ffprobe JSON writer.
type FFprobe struct {
	path   string
	runner Runner
}

// NewFFprobe creates a prober invoking the binary at path.
func NewFFprobe(path string, runner Runner) *FFprobe {
	if path == "" {
		path = "ffprobe"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFprobe{path: path, runner: runner}
}

// Probe runs ffprobe on file.
func (p *FFprobe) Probe(ctx context.Context, file string) (MediaInfo, error) {
	out, err := p.runner.Run(ctx, p.path,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		file,
	)
	if err != nil {
		return MediaInfo{}, types.NewError(types.ErrMediaProbe, "probe failed").WithCause(err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (MediaInfo, error) {
	if !gjson.ValidBytes(out) {
		return MediaInfo{}, types.NewError(types.ErrMediaProbe, "probe output is not valid JSON")
	}
	doc := gjson.ParseBytes(out)

	info := MediaInfo{Duration: doc.Get("format.duration").Float()}
	video := doc.Get(`streams.#(codec_type=="video")`)
	if video.Exists() {
		info.Width = int(video.Get("width").Int())
		info.Height = int(video.Get("height").Int())
	}
	info.HasAudio = doc.Get(`streams.#(codec_type=="audio")`).Exists()

	// some containers only carry per-stream durations
	if info.Duration <= 0 {
		doc.Get("streams.#.duration").ForEach(func(_, v gjson.Result) bool {
			if d := v.Float(); d > info.Duration {
				info.Duration = d
			}
			return true
		})
	}
	if info.Duration <= 0 {
		return info, types.NewError(types.ErrMediaProbe, "probe reported no duration")
	}
	return info, nil
}

// toolTail extracts the stderr tail from a runner error, if any.
func toolTail(err error) []string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Tail
	}
	return nil
}
