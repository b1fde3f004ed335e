package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/BaSui01/mediaflow/task"
)

// Request is the provider-neutral generation request.
type Request struct {
	Prompt       string            `json:"prompt"`
	Model        string            `json:"model,omitempty"`
	ImageURL     string            `json:"image_url,omitempty"`    // reference image for image-to-video
	Duration     float64           `json:"duration,omitempty"`     // requested seconds
	AspectRatio  string            `json:"aspect_ratio,omitempty"` // 16:9, 9:16, 1:1
	Style        string            `json:"style,omitempty"`
	Title        string            `json:"title,omitempty"`
	Lyrics       string            `json:"lyrics,omitempty"`
	Instrumental bool              `json:"instrumental,omitempty"`
	Voice        string            `json:"voice,omitempty"`
	Options      map[string]string `json:"options,omitempty"`
}

// Submission is the provider's receipt for an accepted job.
type Submission struct {
	ExternalID string
	Model      string
}

// MediaRef locates one generated output. Exactly one of URL, B64 or Data is set.
type MediaRef struct {
	URL      string            `json:"url,omitempty"`
	B64      string            `json:"b64,omitempty"`
	Data     []byte            `json:"-"`
	Headers  map[string]string `json:"-"` // extra headers needed to download URL
	MimeType string            `json:"mime_type,omitempty"`
	Ext      string            `json:"ext,omitempty"`
	Duration float64           `json:"duration,omitempty"`
}

// State is the outcome class of a single poll.
type State int

const (
	StateInProgress State = iota
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "in_progress"
	}
}

// UnknownProgress marks an in-progress poll without a percentage.
const UnknownProgress = -1

// PollResult is the three-way outcome of one status check.
type PollResult struct {
	State    State
	Progress int // 0-100, or UnknownProgress
	Outputs  []MediaRef
	Message  string
}

// InProgress reports a running job. Negative pct means unknown.
func InProgress(pct int) PollResult {
	if pct < 0 {
		pct = UnknownProgress
	} else if pct > 100 {
		pct = 100
	}
	return PollResult{State: StateInProgress, Progress: pct}
}

// Succeeded reports a finished job with its outputs.
func Succeeded(outputs ...MediaRef) PollResult {
	return PollResult{State: StateSucceeded, Progress: 100, Outputs: outputs}
}

// Failed reports a job the provider gave up on.
func Failed(msg string) PollResult {
	return PollResult{State: StateFailed, Progress: UnknownProgress, Message: msg}
}

// Artifact is the immediate result of a synchronous generation.
type Artifact struct {
	Provider      string
	Model         string
	Media         MediaRef
	EstimatedCost float64
	Metadata      map[string]string
}

// Adapter is the part shared by both provider families.
type Adapter interface {
	Name() string
	Kind() task.Kind
}

// PollingAdapter submits a job and exposes a status endpoint.
type PollingAdapter interface {
	Adapter
	Submit(ctx context.Context, req *Request) (Submission, error)
	Poll(ctx context.Context, externalID string) (PollResult, error)
}

// SyncAdapter returns the generated media in the submit response.
type SyncAdapter interface {
	Adapter
	Generate(ctx context.Context, req *Request) (*Artifact, error)
}

// CostEstimator is implemented by adapters that can price a request up front.
type CostEstimator interface {
	EstimateCost(req *Request) float64
}

// Registry maps provider names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. The adapter must implement PollingAdapter or SyncAdapter.
func (r *Registry) Register(a Adapter) error {
	switch a.(type) {
	case PollingAdapter, SyncAdapter:
	default:
		return fmt.Errorf("provider %s implements neither polling nor sync generation", a.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Name()]; exists {
		return fmt.Errorf("provider %s already registered", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
