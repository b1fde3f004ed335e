package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/api/handlers"
	"github.com/BaSui01/mediaflow/asset"
	"github.com/BaSui01/mediaflow/config"
	"github.com/BaSui01/mediaflow/generation"
	"github.com/BaSui01/mediaflow/polling"
	"github.com/BaSui01/mediaflow/progress"
	"github.com/BaSui01/mediaflow/provider"
	"github.com/BaSui01/mediaflow/task"
	"github.com/BaSui01/mediaflow/testutil"
	"github.com/BaSui01/mediaflow/testutil/fixtures"
	"github.com/BaSui01/mediaflow/testutil/mocks"
)

type stack struct {
	router  http.Handler
	svc     *generation.Service
	catalog *asset.Catalog
	hub     *progress.Hub
}

func newStack(t *testing.T, adapters ...provider.Adapter) *stack {
	t.Helper()
	logger := zap.NewNop()

	reg := provider.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, reg.Register(a))
	}
	catalog := fixtures.NewCatalog(t)
	hub := progress.NewHub(progress.DefaultHubConfig(), logger)
	t.Cleanup(hub.Close)

	fast := config.PollProfile{Interval: time.Millisecond, MaxWait: 2 * time.Second}
	svc, err := generation.NewService(generation.Options{
		Registry:     reg,
		Store:        task.NewMemoryStore(),
		Controller:   polling.NewController(logger, polling.WithReporter(hub)),
		Materializer: asset.NewMaterializer(catalog, asset.DefaultMaterializerConfig(), logger),
		Reporter:     hub,
		Polling:      config.PollingConfig{Video: fast, Music: fast, Speech: fast},
		Logger:       logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})

	router := NewRouter(Handlers{
		Health:     handlers.NewHealthHandler(logger),
		Generation: handlers.NewGenerationHandler(svc, logger),
		Events:     handlers.NewEventsHandler(hub, svc, nil, logger),
		Assets:     handlers.NewAssetHandler(catalog, logger),
		Assembly:   handlers.NewAssemblyHandler(stubAssembly{}, logger),
	})
	return &stack{router: router, svc: svc, catalog: catalog, hub: hub}
}

func (s *stack) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestIntegration_SyncGenerationProducesAsset(t *testing.T) {
	eleven := mocks.NewMockSyncAdapter("elevenlabs", task.KindSpeech)
	s := newStack(t, eleven)

	rec, env := s.do(t, http.MethodPost, "/api/v1/generations", `{"provider":"elevenlabs","prompt":"hello there","voice":"rachel"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := env["data"].(map[string]any)
	assert.Equal(t, "completed", data["status"])
	assetID, _ := data["output_ref"].(string)
	require.NotEmpty(t, assetID)

	require.Len(t, eleven.Calls(), 1)
	assert.Equal(t, "rachel", eleven.Calls()[0].Voice)

	rec, env = s.do(t, http.MethodGet, "/api/v1/assets?type=speech", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := env["data"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, assetID, list[0].(map[string]any)["id"])

	rec, _ = s.do(t, http.MethodGet, "/api/v1/assets/"+assetID+"/file", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "media", rec.Body.String())
}

func TestIntegration_PollingGenerationCompletes(t *testing.T) {
	runway := mocks.NewMockPollingAdapter("runway", task.KindVideo).WithPolls(
		provider.InProgress(30),
		provider.InProgress(80),
		provider.Succeeded(provider.MediaRef{B64: "dmlkZW8=", MimeType: "video/mp4", Ext: "mp4"}),
	)
	s := newStack(t, runway)

	rec, env := s.do(t, http.MethodPost, "/api/v1/generations", `{"provider":"runway","prompt":"a lighthouse at dusk","duration":5}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	id := env["data"].(map[string]any)["id"].(string)
	assert.Equal(t, "/api/v1/tasks/"+id, rec.Header().Get("Location"))

	done, err := s.svc.Wait(testutil.TestContextWithTimeout(t, 5*time.Second), id)
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, done.Status, done.Error)
	assert.GreaterOrEqual(t, runway.PollCount(), 3)
	require.Len(t, runway.Submits(), 1)
	assert.Equal(t, "a lighthouse at dusk", runway.Submits()[0].Prompt)

	rec, env = s.do(t, http.MethodGet, "/api/v1/tasks/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := env["data"].(map[string]any)
	assert.Equal(t, "completed", data["status"])
	assert.EqualValues(t, 100, data["progress"])

	a, err := s.catalog.Get(context.Background(), done.OutputRef)
	require.NoError(t, err)
	assert.Equal(t, asset.TypeVideo, a.Type)
	assert.Equal(t, "runway", a.Provider)
}

func TestIntegration_ProviderFailureFailsTask(t *testing.T) {
	runway := mocks.NewMockPollingAdapter("runway", task.KindVideo).WithPolls(
		provider.Failed("content policy violation"),
	)
	s := newStack(t, runway)

	_, env := s.do(t, http.MethodPost, "/api/v1/generations", `{"provider":"runway","prompt":"x"}`)
	id := env["data"].(map[string]any)["id"].(string)

	done, err := s.svc.Wait(testutil.TestContextWithTimeout(t, 5*time.Second), id)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, done.Status)
	assert.Contains(t, done.Error, "content policy violation")

	n, err := s.catalog.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIntegration_CancelRunningTask(t *testing.T) {
	runway := mocks.NewMockPollingAdapter("runway", task.KindVideo).WithPolls(provider.InProgress(10))
	s := newStack(t, runway)

	_, env := s.do(t, http.MethodPost, "/api/v1/generations", `{"provider":"runway","prompt":"x"}`)
	id := env["data"].(map[string]any)["id"].(string)
	testutil.AssertEventuallyTrue(t, func() bool { return runway.PollCount() > 0 }, 2*time.Second)

	rec, env := s.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "failed", env["data"].(map[string]any)["status"])

	rec, _ = s.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
