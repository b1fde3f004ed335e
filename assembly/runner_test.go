package assembly

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/asset"
	"github.com/BaSui01/mediaflow/types"
)

const probeJSON = `{
  "streams": [
    {"index": 0, "codec_type": "video", "width": 1920, "height": 1080, "duration": "8.000000"},
    {"index": 1, "codec_type": "audio", "duration": "7.980000"}
  ],
  "format": {"filename": "x.mp4", "duration": "8.008000"}
}`

func TestParseProbe(t *testing.T) {
	info, err := parseProbe([]byte(probeJSON))
	require.NoError(t, err)
	assert.InDelta(t, 8.008, info.Duration, 1e-9)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.True(t, info.HasAudio)
}

func TestParseProbe_StreamDurationFallback(t *testing.T) {
	info, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio","duration":"12.5"}],"format":{}}`))
	require.NoError(t, err)
	assert.InDelta(t, 12.5, info.Duration, 1e-9)
	assert.Zero(t, info.Width)
}

func TestParseProbe_Errors(t *testing.T) {
	_, err := parseProbe([]byte("not json"))
	assert.Equal(t, types.ErrMediaProbe, types.GetErrorCode(err))

	_, err = parseProbe([]byte(`{"streams":[],"format":{}}`))
	assert.Equal(t, types.ErrMediaProbe, types.GetErrorCode(err))
}

type stubRunner struct {
	out  []byte
	err  error
	args []string
}

func (s *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	s.args = args
	return s.out, s.err
}

func TestFFprobe_Probe(t *testing.T) {
	r := &stubRunner{out: []byte(probeJSON)}
	info, err := NewFFprobe("", r).Probe(context.Background(), "/m/x.mp4")
	require.NoError(t, err)
	assert.InDelta(t, 8.008, info.Duration, 1e-9)
	assert.Equal(t, "/m/x.mp4", r.args[len(r.args)-1])
	assert.Contains(t, r.args, "-show_format")

	_, err = NewFFprobe("", &stubRunner{err: errors.New("exit status 1")}).Probe(context.Background(), "/m/x.mp4")
	assert.Equal(t, types.ErrMediaProbe, types.GetErrorCode(err))
}

func TestLastLines(t *testing.T) {
	s := "ffmpeg version 6\nframe=  10 fps=0.0\rframe=  20 fps=0.0\r\n\nError opening output\nConversion failed!\n"
	assert.Equal(t, []string{"Error opening output", "Conversion failed!"}, lastLines(s, 2))
	assert.Equal(t, []string{"frame=  20 fps=0.0", "Error opening output", "Conversion failed!"}, lastLines(s, 3))
	assert.Empty(t, lastLines("", 3))
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 8}
	_, _ = b.Write([]byte("0123456789"))
	_, _ = b.Write([]byte("ab"))
	assert.Equal(t, "456789ab", b.String())
}

func TestExecRunner(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	out, err := ExecRunner{}.Run(context.Background(), sh, "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", strings.TrimSpace(string(out)))

	_, err = ExecRunner{TailLines: 2}.Run(context.Background(), sh, "-c", "echo a >&2; echo b >&2; echo c >&2; exit 3")
	require.Error(t, err)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, []string{"b", "c"}, te.Tail)
	assert.Contains(t, te.Error(), "b | c")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ExecRunner{}.Run(ctx, sh, "-c", "sleep 5")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCatalogResolver(t *testing.T) {
	root := t.TempDir()
	c, err := asset.OpenCatalog(root, filepath.Join(root, "catalog.json"), zap.NewNop())
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	add := func(id string, typ asset.Type, rel string, duration float64) {
		abs := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte("x"), 0o644))
		_, err := c.Add(ctx, &asset.Asset{ID: id, Type: typ, Path: rel, Duration: duration})
		require.NoError(t, err)
	}
	add("v1", asset.TypeVideo, "videos/v1.mp4", 0)
	add("v2", asset.TypeVideo, "videos/v2.mp4", 6)
	add("gone", asset.TypeVideo, "videos/gone.mp4", 3)
	require.NoError(t, os.Remove(filepath.Join(root, "videos", "gone.mp4")))

	ok := NewCatalogResolver(c, &fakeProber{def: MediaInfo{Duration: 4, Width: 640, Height: 480}}, nil)
	src, err := ok.Resolve(ctx, "v1", asset.TypeVideo)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "videos", "v1.mp4"), src.Path)
	assert.InDelta(t, 4.0, src.Duration, 1e-9)
	assert.Equal(t, 640, src.Width)

	_, err = ok.Resolve(ctx, "missing", asset.TypeVideo)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	_, err = ok.Resolve(ctx, "v1", asset.TypeMusic)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	_, err = ok.Resolve(ctx, "gone", asset.TypeVideo)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	broken := NewCatalogResolver(c, &fakeProber{err: types.NewError(types.ErrMediaProbe, "probe failed")}, nil)
	src, err = broken.Resolve(ctx, "v2", asset.TypeVideo)
	require.NoError(t, err, "falls back to the catalog duration")
	assert.InDelta(t, 6.0, src.Duration, 1e-9)

	_, err = broken.Resolve(ctx, "v1", asset.TypeVideo)
	assert.Equal(t, types.ErrMediaProbe, types.GetErrorCode(err))
}
