package assembly

import (
	"context"
	"errors"
	"os"
	"slices"

	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/asset"
	"github.com/BaSui01/mediaflow/types"
)

// Source is a resolved, probed input file.
type Source struct {
	AssetID  string
	Path     string
	Duration float64
	Width    int
	Height   int
}

// Resolver turns an asset id into a probed source of one of the allowed types.
type Resolver interface {
	Resolve(ctx context.Context, assetID string, allowed ...asset.Type) (Source, error)
}

// CatalogResolver resolves ids through the asset catalog and ffprobe.
type CatalogResolver struct {
	catalog *asset.Catalog
	prober  Prober
	logger  *zap.Logger
}

// NewCatalogResolver creates a resolver backed by catalog.
func NewCatalogResolver(catalog *asset.Catalog, prober Prober, logger *zap.Logger) *CatalogResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogResolver{catalog: catalog, prober: prober, logger: logger.With(zap.String("component", "assembly_resolver"))}
}

// Resolve looks up the asset, checks its file and probes it. When probing
// fails the catalog duration is used if one was recorded.
func (r *CatalogResolver) Resolve(ctx context.Context, assetID string, allowed ...asset.Type) (Source, error) {
	a, err := r.catalog.Get(ctx, assetID)
	if errors.Is(err, asset.ErrNotFound) {
		return Source{}, types.Errorf(types.ErrInvalidRequest, "asset %s not found", assetID)
	}
	if err != nil {
		return Source{}, types.WrapError(err, types.ErrInternalError, "catalog lookup failed")
	}
	if len(allowed) > 0 && !slices.Contains(allowed, a.Type) {
		return Source{}, types.Errorf(types.ErrInvalidRequest, "asset %s is a %s, expected %v", assetID, a.Type, allowed)
	}

	path := r.catalog.AbsPath(a)
	if _, err := os.Stat(path); err != nil {
		return Source{}, types.Errorf(types.ErrInvalidRequest, "file for asset %s is missing", assetID)
	}

	src := Source{AssetID: assetID, Path: path, Duration: a.Duration}
	info, err := r.prober.Probe(ctx, path)
	switch {
	case err == nil:
		src.Duration = info.Duration
		src.Width = info.Width
		src.Height = info.Height
	case a.Duration > 0:
		r.logger.Warn("probe failed, using catalog duration",
			zap.String("asset_id", assetID), zap.Float64("duration", a.Duration), zap.Error(err))
	default:
		return Source{}, err
	}
	return src, nil
}
