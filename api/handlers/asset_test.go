package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/asset"
	"github.com/BaSui01/mediaflow/testutil/fixtures"
)

func newTestCatalog(t *testing.T) (*asset.Catalog, string) {
	t.Helper()
	c := fixtures.NewCatalog(t)

	v := fixtures.Video("v1")
	v.Provider = "kling"
	v.Tags = []string{"winter"}
	fixtures.SeedAsset(t, c, v, "0123456789")
	fixtures.SeedAsset(t, c, fixtures.Music("m1"), "0123456789")
	return c, c.Root()
}

func TestAssetHandler_List(t *testing.T) {
	c, _ := newTestCatalog(t)
	fixtures.SeedAsset(t, c, fixtures.Speech("s1"), "")
	h := NewAssetHandler(c, zap.NewNop())

	tests := []struct {
		query   string
		wantIDs []string
	}{
		{"", []string{"m1", "s1", "v1"}},
		{"type=video", []string{"v1"}},
		{"provider=suno", []string{"m1"}},
		{"tag=winter", []string{"v1"}},
		{"type=speech", []string{"s1"}},
		{"provider=elevenlabs", []string{"s1"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/v1/assets?"+tt.query, nil))
			require.Equal(t, http.StatusOK, w.Code)

			var ids []string
			for _, item := range decodeResponse(t, w).Data.([]any) {
				ids = append(ids, item.(map[string]any)["id"].(string))
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)
		})
	}
}

func TestAssetHandler_ListInvalidType(t *testing.T) {
	c, _ := newTestCatalog(t)
	h := NewAssetHandler(c, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/v1/assets?type=image", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssetHandler_Get(t *testing.T) {
	c, _ := newTestCatalog(t)
	h := NewAssetHandler(c, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleGet(w, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/assets/v1", nil), "id", "v1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v1.mp4", decodeResponse(t, w).Data.(map[string]any)["filename"])

	w = httptest.NewRecorder()
	h.HandleGet(w, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/assets/x", nil), "id", "x"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssetHandler_Annotate(t *testing.T) {
	c, _ := newTestCatalog(t)
	h := NewAssetHandler(c, zap.NewNop())

	w := httptest.NewRecorder()
	r := withURLParam(jsonRequest(http.MethodPatch, "/api/v1/assets/v1", `{"tags":["b-roll","winter"],"notes":"keep"}`), "id", "v1")
	h.HandleAnnotate(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	a, err := c.Get(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, "keep", a.Notes)
	assert.Contains(t, a.Tags, "b-roll")
	assert.Equal(t, "kling", a.Provider, "immutable fields untouched")
}

func TestAssetHandler_AnnotateRejects(t *testing.T) {
	c, _ := newTestCatalog(t)
	h := NewAssetHandler(c, zap.NewNop())

	tests := []struct {
		name       string
		id         string
		body       string
		wantStatus int
	}{
		{"empty patch", "v1", `{}`, http.StatusBadRequest},
		{"immutable field", "v1", `{"provider":"other"}`, http.StatusBadRequest},
		{"missing asset", "zz", `{"notes":"x"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandleAnnotate(w, withURLParam(jsonRequest(http.MethodPatch, "/api/v1/assets/"+tt.id, tt.body), "id", tt.id))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestAssetHandler_Delete(t *testing.T) {
	c, root := newTestCatalog(t)
	h := NewAssetHandler(c, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleDelete(w, withURLParam(httptest.NewRequest(http.MethodDelete, "/api/v1/assets/m1", nil), "id", "m1"))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NoFileExists(t, filepath.Join(root, "musics", "m1.mp3"))

	w = httptest.NewRecorder()
	h.HandleDelete(w, withURLParam(httptest.NewRequest(http.MethodDelete, "/api/v1/assets/m1", nil), "id", "m1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssetHandler_File(t *testing.T) {
	c, _ := newTestCatalog(t)
	h := NewAssetHandler(c, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleFile(w, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/assets/v1/file", nil), "id", "v1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `inline; filename=v1.mp4`, w.Header().Get("Content-Disposition"))
	body, _ := io.ReadAll(w.Body)
	assert.Equal(t, "0123456789", string(body))

	r := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/assets/v1/file", nil), "id", "v1")
	r.Header.Set("Range", "bytes=2-4")
	w = httptest.NewRecorder()
	h.HandleFile(w, r)
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "234", w.Body.String())
}
