package asset

import (
	"errors"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/BaSui01/mediaflow/task"
)

// Catalog errors
var (
	ErrNotFound      = errors.New("asset not found")
	ErrDuplicate     = errors.New("asset already exists")
	ErrFileMissing   = errors.New("asset file does not exist")
	ErrCatalogClosed = errors.New("catalog is closed")
)

// DocumentVersion is written into every catalog document.
const DocumentVersion = "1.0"

// Type 素材类型，与任务类型一一对应
type Type string

const (
	TypeVideo  Type = "video"
	TypeMusic  Type = "music"
	TypeSpeech Type = "speech"
)

// TypeForKind maps a task kind onto the asset type it produces.
func TypeForKind(k task.Kind) Type {
	return Type(k)
}

// Dir is the storage sub-directory for the type, e.g. "videos".
func (t Type) Dir() string {
	return string(t) + "s"
}

// Asset is one generated media file registered in the catalog.
// Everything except Tags and Notes is immutable after registration.
type Asset struct {
	ID                string            `json:"id"`
	Type              Type              `json:"type"`
	Filename          string            `json:"filename"`
	Path              string            `json:"path"` // relative to the storage root, slash separated
	Provider          string            `json:"provider"`
	Model             string            `json:"model,omitempty"`
	Prompt            string            `json:"prompt,omitempty"`
	Duration          float64           `json:"duration,omitempty"`
	EstimatedCost     float64           `json:"estimated_cost"`
	GenerationSeconds float64           `json:"generation_seconds"`
	Tags              []string          `json:"tags,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Clone returns a deep copy.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	c.Tags = slices.Clone(a.Tags)
	c.Metadata = maps.Clone(a.Metadata)
	return &c
}

// HasTag reports whether the asset carries tag.
func (a *Asset) HasTag(tag string) bool {
	return slices.Contains(a.Tags, tag)
}

// Document is the on-disk catalog format.
type Document struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
	Assets      []*Asset  `json:"assets"`
}

// Query filters List results. Zero values match everything.
type Query struct {
	Type     Type
	Provider string
	Tag      string
	Limit    int
	Offset   int
}

func (q Query) matches(a *Asset) bool {
	if q.Type != "" && a.Type != q.Type {
		return false
	}
	if q.Provider != "" && a.Provider != q.Provider {
		return false
	}
	if q.Tag != "" && !a.HasTag(q.Tag) {
		return false
	}
	return true
}

// Annotations are the mutable parts of an asset. Nil fields are left unchanged.
type Annotations struct {
	Tags  *[]string `json:"tags,omitempty"`
	Notes *string   `json:"notes,omitempty"`
}

func (an Annotations) apply(a *Asset) {
	if an.Tags != nil {
		a.Tags = normalizeTags(*an.Tags)
	}
	if an.Notes != nil {
		a.Notes = *an.Notes
	}
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// selectAssets applies q to assets, newest first.
func selectAssets(assets []*Asset, q Query) []*Asset {
	out := make([]*Asset, 0, len(assets))
	for _, a := range assets {
		if q.matches(a) {
			out = append(out, a.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []*Asset{}
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}
