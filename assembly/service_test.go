package assembly

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/asset"
	"github.com/BaSui01/mediaflow/types"
)

type recorder struct {
	mu       sync.Mutex
	statuses []string
}

func (r *recorder) RecordAssembly(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

type serviceFixture struct {
	svc     *Service
	catalog *asset.Catalog
	runner  *fakeRunner
	rec     *recorder
	root    string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	root := t.TempDir()
	c, err := asset.OpenCatalog(root, filepath.Join(root, "catalog.json"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	for _, a := range []struct {
		id  string
		typ asset.Type
		rel string
	}{
		{"v1", asset.TypeVideo, "videos/v1.mp4"},
		{"v2", asset.TypeVideo, "videos/v2.mp4"},
		{"m1", asset.TypeMusic, "musics/m1.mp3"},
	} {
		abs := filepath.Join(root, filepath.FromSlash(a.rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte("media"), 0o644))
		_, err := c.Add(ctx, &asset.Asset{ID: a.id, Type: a.typ, Path: a.rel})
		require.NoError(t, err)
	}

	prober := &fakeProber{
		infos: map[string]MediaInfo{
			filepath.Join(root, "videos", "v1.mp4"): {Duration: 2, Width: 1280, Height: 720},
			filepath.Join(root, "videos", "v2.mp4"): {Duration: 2, Width: 1280, Height: 720},
			filepath.Join(root, "musics", "m1.mp3"): {Duration: 90, HasAudio: true},
		},
		def: MediaInfo{Duration: 4.0, Width: 1280, Height: 720, HasAudio: true},
	}
	runner := &fakeRunner{write: true}
	cfg := testAssemblyConfig(root)
	rec := &recorder{}

	svc := NewService(
		NewPlanner(cfg, NewCatalogResolver(c, prober, zap.NewNop())),
		NewExecutor(cfg, runner, prober, c, zap.NewNop()),
		rec,
		zap.NewNop(),
	)
	return &serviceFixture{svc: svc, catalog: c, runner: runner, rec: rec, root: root}
}

func TestService_Assemble(t *testing.T) {
	f := newServiceFixture(t)

	res := f.svc.Assemble(context.Background(), Request{
		Videos: []string{"v1", "v2"},
		Music:  MusicTrack{AssetID: "m1", Volume: 0.5},
	})
	require.True(t, res.Success, res.Error)
	assert.InDelta(t, 4.0, res.Duration, 1e-9)
	assert.NotEmpty(t, res.CatalogID)
	assert.FileExists(t, filepath.Join(f.root, filepath.FromSlash(res.OutputPath)))

	a, err := f.catalog.Get(context.Background(), res.CatalogID)
	require.NoError(t, err)
	assert.Equal(t, "assembly", a.Provider)
	assert.Equal(t, []string{"completed"}, f.rec.statuses)
}

func TestService_MissingAssetFailsBeforeTool(t *testing.T) {
	f := newServiceFixture(t)

	res := f.svc.Assemble(context.Background(), Request{
		Videos: []string{"v1", "ghost"},
		Music:  MusicTrack{AssetID: "m1", Volume: 1},
	})
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrInvalidRequest, res.Code)
	assert.Contains(t, res.Error, "ghost")
	assert.Empty(t, res.OutputPath)
	assert.Zero(t, res.Duration)
	assert.Zero(t, f.runner.count())
	assert.Equal(t, []string{"failed"}, f.rec.statuses)
}

func TestService_WrongAssetType(t *testing.T) {
	f := newServiceFixture(t)

	res := f.svc.Assemble(context.Background(), Request{
		Videos: []string{"m1"},
		Music:  MusicTrack{AssetID: "m1", Volume: 1},
	})
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrInvalidRequest, res.Code)
}

func TestService_ToolFailureBecomesResult(t *testing.T) {
	f := newServiceFixture(t)
	f.runner.err = &ToolError{Tool: "ffmpeg", Tail: []string{"Invalid data found when processing input"}, Cause: errors.New("exit status 1")}

	res := f.svc.Assemble(context.Background(), Request{
		Videos: []string{"v1"},
		Music:  MusicTrack{AssetID: "m1", Volume: 1},
	})
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrAssembly, res.Code)
	assert.Contains(t, res.Error, "ffmpeg failed")
	assert.Contains(t, res.Error, "Invalid data found")
	assert.Empty(t, res.OutputPath)
	assert.Empty(t, res.CatalogID)

	n, _ := f.catalog.Count(context.Background())
	assert.Equal(t, 3, n, "only the source assets remain")
}

func TestService_PlanDoesNotExecute(t *testing.T) {
	f := newServiceFixture(t)

	plan, err := f.svc.Plan(context.Background(), Request{
		Videos:         []string{"v1"},
		Music:          MusicTrack{AssetID: "m1", Volume: 1},
		TargetDuration: 5,
	})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, plan.HoldDuration, 1e-9)
	assert.Zero(t, f.runner.count())
}
