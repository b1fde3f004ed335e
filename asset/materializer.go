package asset

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/internal/tlsutil"
	"github.com/BaSui01/mediaflow/provider"
	"github.com/BaSui01/mediaflow/types"
)

// MaterializerConfig 素材落盘配置
type MaterializerConfig struct {
	DownloadTimeout time.Duration `json:"download_timeout" yaml:"download_timeout"`
	MaxBytes        int64         `json:"max_bytes" yaml:"max_bytes"` // 0 = unlimited
}

// DefaultMaterializerConfig 返回默认配置
func DefaultMaterializerConfig() MaterializerConfig {
	return MaterializerConfig{
		DownloadTimeout: 5 * time.Minute,
		MaxBytes:        2 << 30,
	}
}

// Source describes a generated output to be stored.
type Source struct {
	Type              Type
	Provider          string
	Model             string
	Prompt            string
	Media             provider.MediaRef
	EstimatedCost     float64
	GenerationSeconds float64
	Tags              []string
	Metadata          map[string]string
}

// Recorder receives one observation per materialization.
type Recorder interface {
	RecordMaterialization(assetType, status string, bytes int64)
}

// Materializer writes provider outputs to storage and registers them.
type Materializer struct {
	catalog  *Catalog
	client   *http.Client
	cfg      MaterializerConfig
	now      func() time.Time
	recorder Recorder
	logger   *zap.Logger
}

// NewMaterializer creates a materializer writing under the catalog's root.
func NewMaterializer(catalog *Catalog, cfg MaterializerConfig, logger *zap.Logger) *Materializer {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultMaterializerConfig().DownloadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Materializer{
		catalog: catalog,
		client:  tlsutil.DownloadClient(cfg.DownloadTimeout),
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "materializer")),
	}
}

// WithRecorder attaches a metrics recorder.
func (m *Materializer) WithRecorder(r Recorder) *Materializer {
	m.recorder = r
	return m
}

// WithHTTPClient replaces the download client.
func (m *Materializer) WithHTTPClient(c *http.Client) *Materializer {
	m.client = c
	return m
}

// Materialize stores src and registers it in the catalog. The file is fully
// written before registration; on any failure no catalog entry exists and the
// partial file is removed.
func (m *Materializer) Materialize(ctx context.Context, src Source) (*Asset, error) {
	a, size, err := m.materialize(ctx, src)
	if m.recorder != nil {
		status := "success"
		if err != nil {
			status = "failed"
		}
		m.recorder.RecordMaterialization(string(src.Type), status, size)
	}
	return a, err
}

func (m *Materializer) materialize(ctx context.Context, src Source) (*Asset, int64, error) {
	if src.Type == "" {
		return nil, 0, m.fail("asset type is required", nil)
	}

	ext := extension(src.Media)
	name := m.filename(src.Provider, src.Model, ext)
	rel := path.Join(src.Type.Dir(), name)
	abs := filepath.Join(m.catalog.Root(), filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, 0, m.fail("create asset directory", err)
	}

	size, err := m.write(ctx, abs, src.Media)
	if err != nil {
		return nil, 0, err
	}

	a, err := m.catalog.Add(ctx, &Asset{
		Type:              src.Type,
		Filename:          name,
		Path:              rel,
		Provider:          src.Provider,
		Model:             src.Model,
		Prompt:            src.Prompt,
		Duration:          src.Media.Duration,
		EstimatedCost:     src.EstimatedCost,
		GenerationSeconds: src.GenerationSeconds,
		Tags:              src.Tags,
		Metadata:          src.Metadata,
		CreatedAt:         m.now().UTC(),
	})
	if err != nil {
		_ = os.Remove(abs)
		return nil, 0, m.fail("register asset", err)
	}

	fields := []zap.Field{zap.String("id", a.ID), zap.String("path", rel), zap.Int64("bytes", size)}
	if id, ok := types.TaskID(ctx); ok {
		fields = append(fields, zap.String("task_id", id))
	}
	m.logger.Info("asset materialized", fields...)
	return a, size, nil
}

// write places the media at abs through a temp file and rename.
func (m *Materializer) write(ctx context.Context, abs string, media provider.MediaRef) (int64, error) {
	var body io.Reader
	switch {
	case media.URL != "":
		rc, err := m.download(ctx, media)
		if err != nil {
			return 0, err
		}
		defer rc.Close()
		body = rc
	case media.B64 != "":
		data, err := decodeBase64(media.B64)
		if err != nil {
			return 0, m.fail("decode base64 payload", err)
		}
		body = bytes.NewReader(data)
	case len(media.Data) > 0:
		body = bytes.NewReader(media.Data)
	default:
		return 0, m.fail("media has no content", nil)
	}

	if m.cfg.MaxBytes > 0 {
		body = io.LimitReader(body, m.cfg.MaxBytes+1)
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".partial-*")
	if err != nil {
		return 0, m.fail("create temp file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	n, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		if ctx.Err() != nil {
			return 0, m.fail("download cancelled", ctx.Err())
		}
		return 0, m.fail("write asset file", err)
	}
	if m.cfg.MaxBytes > 0 && n > m.cfg.MaxBytes {
		cleanup()
		return 0, m.fail(fmt.Sprintf("asset exceeds %d bytes", m.cfg.MaxBytes), nil)
	}
	if n == 0 {
		cleanup()
		return 0, m.fail("asset is empty", nil)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		cleanup()
		return 0, m.fail("move asset file into place", err)
	}
	return n, nil
}

func (m *Materializer) download(ctx context.Context, media provider.MediaRef) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, media.URL, nil)
	if err != nil {
		return nil, m.fail("build download request", err)
	}
	for k, v := range media.Headers {
		req.Header.Set(k, v)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, m.fail("download "+redact(media.URL), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, m.fail(fmt.Sprintf("download %s: status %d", redact(media.URL), resp.StatusCode), nil)
	}
	if m.cfg.MaxBytes > 0 && resp.ContentLength > m.cfg.MaxBytes {
		resp.Body.Close()
		return nil, m.fail(fmt.Sprintf("asset exceeds %d bytes", m.cfg.MaxBytes), nil)
	}
	return resp.Body, nil
}

func (m *Materializer) fail(msg string, cause error) error {
	e := types.NewError(types.ErrMaterialization, "materialization failed: "+msg)
	if cause != nil {
		e = e.WithCause(cause)
	}
	m.logger.Warn("materialization failed", zap.String("reason", msg), zap.Error(cause))
	return e
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// filename builds {yyyyMMdd_HHmmss}_{provider}_{model}_{rand}.{ext}
func (m *Materializer) filename(providerName, model, ext string) string {
	part := func(s, def string) string {
		s = strings.Trim(unsafeName.ReplaceAllString(s, "-"), "-.")
		if s == "" {
			return def
		}
		return s
	}
	return fmt.Sprintf("%s_%s_%s_%s.%s",
		m.now().UTC().Format("20060102_150405"),
		part(providerName, "unknown"),
		part(model, "default"),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		ext,
	)
}

var mediaExt = map[string]string{
	"video/mp4":       "mp4",
	"video/webm":      "webm",
	"video/quicktime": "mov",
	"audio/mpeg":      "mp3",
	"audio/mp3":       "mp3",
	"audio/wav":       "wav",
	"audio/x-wav":     "wav",
	"audio/ogg":       "ogg",
	"audio/aac":       "aac",
}

func extension(media provider.MediaRef) string {
	if e := strings.TrimPrefix(media.Ext, "."); e != "" {
		return strings.ToLower(e)
	}
	mt, _, _ := mime.ParseMediaType(media.MimeType)
	if e, ok := mediaExt[mt]; ok {
		return e
	}
	if media.MimeType != "" {
		if exts, _ := mime.ExtensionsByType(media.MimeType); len(exts) > 0 {
			return strings.TrimPrefix(exts[0], ".")
		}
	}
	if media.URL != "" {
		if e := strings.TrimPrefix(path.Ext(strings.SplitN(media.URL, "?", 2)[0]), "."); e != "" && len(e) <= 5 {
			return strings.ToLower(e)
		}
	}
	return "bin"
}

func decodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(s); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

// redact drops the query string, which often carries signed credentials.
func redact(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}
