package asset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// op is one catalog operation executed on the owner goroutine.
// mutated reports whether the document must be rewritten.
type op struct {
	fn    func(doc *Document) (result any, mutated bool, err error)
	reply chan opResult
}

type opResult struct {
	value any
	err   error
}

// Catalog 素材目录：单个 JSON 文档，由唯一的 goroutine 持有。
// 所有读写都通过通道串行执行，变更后整体原子重写文档，
// 因此并发的 Add/Delete 不会互相覆盖。
type Catalog struct {
	root string
	file string

	ops      chan op
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	now    func() time.Time
	logger *zap.Logger
}

// OpenCatalog loads (or creates) the catalog document at file.
// root is the storage root that asset paths are relative to.
func OpenCatalog(root, file string, logger *zap.Logger) (*Catalog, error) {
	if root == "" || file == "" {
		return nil, errors.New("catalog root and file are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}

	doc, err := loadDocument(file)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	c := &Catalog{
		root:    root,
		file:    file,
		ops:     make(chan op),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		now:     time.Now,
		logger:  logger.With(zap.String("component", "catalog")),
	}
	go c.run(doc)

	c.logger.Info("catalog opened", zap.String("file", file), zap.Int("assets", len(doc.Assets)))
	return c, nil
}

func loadDocument(file string) (*Document, error) {
	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return &Document{Version: DocumentVersion, Assets: []*Asset{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Version == "" {
		doc.Version = DocumentVersion
	}
	if doc.Assets == nil {
		doc.Assets = []*Asset{}
	}
	return &doc, nil
}

func (c *Catalog) run(doc *Document) {
	defer close(c.stopped)
	for {
		select {
		case o := <-c.ops:
			v, err := c.apply(doc, o.fn)
			o.reply <- opResult{value: v, err: err}
		case <-c.done:
			return
		}
	}
}

// apply runs fn against a scratch copy so that a failed write leaves the
// in-memory document untouched.
func (c *Catalog) apply(doc *Document, fn func(*Document) (any, bool, error)) (any, error) {
	scratch := &Document{Version: doc.Version, LastUpdated: doc.LastUpdated, Assets: slices.Clone(doc.Assets)}
	v, mutated, err := fn(scratch)
	if err != nil || !mutated {
		return v, err
	}

	scratch.LastUpdated = c.now().UTC()
	if err := c.persist(scratch); err != nil {
		c.logger.Error("failed to persist catalog", zap.Error(err))
		return nil, fmt.Errorf("persist catalog: %w", err)
	}
	*doc = *scratch
	return v, nil
}

// persist 原子写: 写入临时文件后重命名
func (c *Catalog) persist(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := c.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.file)
}

func (c *Catalog) do(ctx context.Context, fn func(*Document) (any, bool, error)) (any, error) {
	o := op{fn: fn, reply: make(chan opResult, 1)}
	select {
	case c.ops <- o:
	case <-c.done:
		return nil, ErrCatalogClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	// accepted operations always reply
	r := <-o.reply
	return r.value, r.err
}

// AbsPath resolves an asset's storage path.
func (c *Catalog) AbsPath(a *Asset) string {
	return filepath.Join(c.root, filepath.FromSlash(a.Path))
}

// Root returns the storage root.
func (c *Catalog) Root() string { return c.root }

func indexOf(doc *Document, id string) int {
	return slices.IndexFunc(doc.Assets, func(a *Asset) bool { return a.ID == id })
}

// Add registers an asset whose file already exists under the storage root.
func (c *Catalog) Add(ctx context.Context, a *Asset) (*Asset, error) {
	if a == nil || a.Path == "" {
		return nil, errors.New("asset path is required")
	}
	entry := a.Clone()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Filename == "" {
		entry.Filename = filepath.Base(filepath.FromSlash(entry.Path))
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = c.now().UTC()
	}
	entry.Tags = normalizeTags(entry.Tags)

	v, err := c.do(ctx, func(doc *Document) (any, bool, error) {
		if indexOf(doc, entry.ID) >= 0 {
			return nil, false, fmt.Errorf("%w: %s", ErrDuplicate, entry.ID)
		}
		// checked on the owner goroutine so a concurrent Delete cannot interleave
		if _, err := os.Stat(c.AbsPath(entry)); err != nil {
			return nil, false, fmt.Errorf("%w: %s", ErrFileMissing, entry.Path)
		}
		doc.Assets = append(doc.Assets, entry)
		return entry.Clone(), true, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("asset registered", zap.String("id", entry.ID), zap.String("path", entry.Path))
	return v.(*Asset), nil
}

// Get returns a copy of the asset with id.
func (c *Catalog) Get(ctx context.Context, id string) (*Asset, error) {
	v, err := c.do(ctx, func(doc *Document) (any, bool, error) {
		i := indexOf(doc, id)
		if i < 0 {
			return nil, false, ErrNotFound
		}
		return doc.Assets[i].Clone(), false, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Asset), nil
}

// List returns matching assets, newest first.
func (c *Catalog) List(ctx context.Context, q Query) ([]*Asset, error) {
	v, err := c.do(ctx, func(doc *Document) (any, bool, error) {
		return selectAssets(doc.Assets, q), false, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*Asset), nil
}

// Annotate updates tags and notes.
func (c *Catalog) Annotate(ctx context.Context, id string, an Annotations) (*Asset, error) {
	v, err := c.do(ctx, func(doc *Document) (any, bool, error) {
		i := indexOf(doc, id)
		if i < 0 {
			return nil, false, ErrNotFound
		}
		next := doc.Assets[i].Clone()
		an.apply(next)
		doc.Assets[i] = next
		return next.Clone(), true, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Asset), nil
}

// Delete removes the catalog entry and then its file. A file that cannot be
// removed after the entry is gone is logged as an orphan.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	v, err := c.do(ctx, func(doc *Document) (any, bool, error) {
		i := indexOf(doc, id)
		if i < 0 {
			return nil, false, ErrNotFound
		}
		removed := doc.Assets[i]
		doc.Assets = slices.Delete(doc.Assets, i, i+1)
		return removed, true, nil
	})
	if err != nil {
		return err
	}

	removed := v.(*Asset)
	if err := os.Remove(c.AbsPath(removed)); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("orphan asset file",
			zap.String("id", id), zap.String("path", removed.Path), zap.Error(err))
	}
	c.logger.Debug("asset deleted", zap.String("id", id))
	return nil
}

// Count returns the number of registered assets.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	v, err := c.do(ctx, func(doc *Document) (any, bool, error) {
		return len(doc.Assets), false, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Ping checks the owner goroutine is alive.
func (c *Catalog) Ping(ctx context.Context) error {
	_, err := c.do(ctx, func(*Document) (any, bool, error) { return nil, false, nil })
	return err
}

// Close stops the owner goroutine. Pending callers receive ErrCatalogClosed.
func (c *Catalog) Close() error {
	c.stopOnce.Do(func() { close(c.done) })
	<-c.stopped
	return nil
}
