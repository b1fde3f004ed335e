package handlers

import (
	"context"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/asset"
	"github.com/BaSui01/mediaflow/types"
)

// AssetCatalog 是 handler 依赖的素材目录能力
type AssetCatalog interface {
	List(ctx context.Context, q asset.Query) ([]*asset.Asset, error)
	Get(ctx context.Context, id string) (*asset.Asset, error)
	Annotate(ctx context.Context, id string, an asset.Annotations) (*asset.Asset, error)
	Delete(ctx context.Context, id string) error
	AbsPath(a *asset.Asset) string
}

// AssetHandler 处理素材目录的查询、标注、删除与下载
type AssetHandler struct {
	catalog AssetCatalog
	logger  *zap.Logger
}

// NewAssetHandler 创建素材处理器
func NewAssetHandler(catalog AssetCatalog, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{catalog: catalog, logger: logger.With(zap.String("handler", "asset"))}
}

// HandleList 处理 GET /api/v1/assets?type=&provider=&tag=&limit=&offset=
func (h *AssetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := asset.Query{
		Type:     asset.Type(q.Get("type")),
		Provider: q.Get("provider"),
		Tag:      q.Get("tag"),
	}
	switch query.Type {
	case "", asset.TypeVideo, asset.TypeMusic, asset.TypeSpeech:
	default:
		WriteError(w, types.Errorf(types.ErrInvalidRequest, "unknown asset type %q", query.Type), h.logger)
		return
	}

	var err error
	if query.Limit, query.Offset, err = pagination(q.Get("limit"), q.Get("offset")); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	assets, err := h.catalog.List(r.Context(), query)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, assets)
}

// HandleGet 处理 GET /api/v1/assets/{id}
func (h *AssetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	a, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, a)
}

// HandleAnnotate 处理 PATCH /api/v1/assets/{id}，只允许修改 tags 与 notes
func (h *AssetHandler) HandleAnnotate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var an asset.Annotations
	if err := DecodeJSONBody(w, r, &an, h.logger); err != nil {
		return
	}
	if an.Tags == nil && an.Notes == nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "nothing to update: set tags or notes"), h.logger)
		return
	}

	a, err := h.catalog.Annotate(r.Context(), chi.URLParam(r, "id"), an)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, a)
}

// HandleDelete 处理 DELETE /api/v1/assets/{id}，同时删除文件
func (h *AssetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleFile 处理 GET /api/v1/assets/{id}/file，支持 Range 请求
func (h *AssetHandler) HandleFile(w http.ResponseWriter, r *http.Request) {
	a, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": a.Filename}))
	http.ServeFile(w, r, h.catalog.AbsPath(a))
}
