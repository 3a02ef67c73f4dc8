package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// BuildStatus represents the state of a packaging run.
type BuildStatus string

const (
	StatusQueued      BuildStatus = "queued"
	StatusDiscovering BuildStatus = "discovering"
	StatusLoading     BuildStatus = "loading"
	StatusPackaging   BuildStatus = "packaging"
	StatusWriting     BuildStatus = "writing"
	StatusCompleted   BuildStatus = "completed"
	StatusFailed      BuildStatus = "failed"
)

// Reporter receives progress from a running Builder.
type Reporter interface {
	SetStatus(status BuildStatus, phase string)
	SetTotalDocuments(n int)
	IncrDocumentsLoaded()
	AddWarning(msg string)
}

type nopReporter struct{}

func (nopReporter) SetStatus(BuildStatus, string) {}
func (nopReporter) SetTotalDocuments(int)         {}
func (nopReporter) IncrDocumentsLoaded()          {}
func (nopReporter) AddWarning(string)             {}

// Build tracks the state of a single queued packaging run.
type Build struct {
	mu sync.Mutex

	ID     string      `json:"build_id"`
	Status BuildStatus `json:"status"`
	Phase  string      `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	result   *Result
	warnings []string
	errors   []string
}

// NewBuild creates a queued build with a fresh id.
func NewBuild() *Build {
	now := time.Now()
	return &Build{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Progress tracks processing progress.
type Progress struct {
	TotalDocuments  int      `json:"total_documents"`
	DocumentsLoaded int      `json:"documents_loaded"`
	Resources       int      `json:"resources"`
	Dropped         int      `json:"dropped"`
	TOCEntries      int      `json:"toc_entries"`
	Warnings        []string `json:"warnings"`
	Errors          []string `json:"errors"`
}

// BuildStore is a thread-safe in-memory build registry with TTL eviction.
type BuildStore struct {
	mu     sync.Mutex
	builds map[string]*Build
	ttl    time.Duration
}

func NewBuildStore(ttl time.Duration) *BuildStore {
	return &BuildStore{
		builds: make(map[string]*Build),
		ttl:    ttl,
	}
}

func (s *BuildStore) Put(b *Build) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds[b.ID] = b
}

func (s *BuildStore) Get(id string) *Build {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builds[id]
}

// Cleanup removes expired builds.
func (s *BuildStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, b := range s.builds {
		b.mu.Lock()
		updated := b.UpdatedAt
		b.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.builds, id)
		}
	}
}

// SetStatus updates build status atomically.
func (b *Build) SetStatus(status BuildStatus, phase string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Status = status
	b.Phase = phase
	b.UpdatedAt = time.Now()
}

// SetTotalDocuments records the number of discovered documents.
func (b *Build) SetTotalDocuments(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Progress.TotalDocuments = n
	b.UpdatedAt = time.Now()
}

// IncrDocumentsLoaded atomically increments documents loaded.
func (b *Build) IncrDocumentsLoaded() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Progress.DocumentsLoaded++
	b.UpdatedAt = time.Now()
}

// AddWarning records a non-fatal condition.
func (b *Build) AddWarning(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.warnings = append(b.warnings, msg)
	b.Progress.Warnings = b.warnings
	b.UpdatedAt = time.Now()
}

// AddError records an error.
func (b *Build) AddError(err string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, err)
	b.Progress.Errors = b.errors
	b.UpdatedAt = time.Now()
}

// SetResult stores the finished run and its counters.
func (b *Build) SetResult(r *Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.result = r
	b.Progress.Resources = r.Resources
	b.Progress.Dropped = len(r.Dropped)
	b.Progress.TOCEntries = r.Outline.Len()
	b.UpdatedAt = time.Now()
}

// Result returns the finished run, or nil.
func (b *Build) Result() *Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result
}

// BuildSnapshot is a read-only, JSON-safe copy of build state.
type BuildSnapshot struct {
	ID        string      `json:"build_id"`
	Status    BuildStatus `json:"status"`
	Phase     string      `json:"phase"`
	Progress  Progress    `json:"progress"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the build state.
func (b *Build) Snapshot() BuildSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BuildSnapshot{
		ID:     b.ID,
		Status: b.Status,
		Phase:  b.Phase,
		Progress: Progress{
			TotalDocuments:  b.Progress.TotalDocuments,
			DocumentsLoaded: b.Progress.DocumentsLoaded,
			Resources:       b.Progress.Resources,
			Dropped:         b.Progress.Dropped,
			TOCEntries:      b.Progress.TOCEntries,
			Warnings:        nonNil(b.Progress.Warnings),
			Errors:          nonNil(b.Progress.Errors),
		},
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}
