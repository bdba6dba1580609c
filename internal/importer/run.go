package importer

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/pagetree/internal/doctree"
)

// RunStatus represents the state of an import run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run tracks the state of a single import.
type Run struct {
	mu sync.Mutex

	ID     string
	Source string
	Status RunStatus
	Phase  string

	Progress Progress

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Progress counts what an import run did.
type Progress struct {
	NodesCreated    int      `json:"nodes_created"`
	FilesDownloaded int      `json:"files_downloaded"`
	FilesReused     int      `json:"files_reused"`
	CacheHits       int      `json:"cache_hits"`
	Warnings        []string `json:"warnings"`
	Errors          []string `json:"errors"`
}

func newRun(source string) *Run {
	now := time.Now()
	return &Run{
		ID:        doctree.NewID(),
		Source:    source,
		Status:    StatusRunning,
		Phase:     "parsing",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStatus updates run status atomically.
func (r *Run) SetStatus(status RunStatus, phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = status
	r.Phase = phase
	r.UpdatedAt = time.Now()
}

// AddWarning records a recoverable problem.
func (r *Run) AddWarning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Progress.Warnings = append(r.Progress.Warnings, msg)
	r.UpdatedAt = time.Now()
}

// AddError records an error.
func (r *Run) AddError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Progress.Errors = append(r.Progress.Errors, msg)
	r.UpdatedAt = time.Now()
}

func (r *Run) incr(field *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*field++
	r.UpdatedAt = time.Now()
}

// IncrNodesCreated counts a persisted node.
func (r *Run) IncrNodesCreated() { r.incr(&r.Progress.NodesCreated) }

// IncrFilesDownloaded counts a newly stored resource.
func (r *Run) IncrFilesDownloaded() { r.incr(&r.Progress.FilesDownloaded) }

// IncrFilesReused counts a download matching an existing resource.
func (r *Run) IncrFilesReused() { r.incr(&r.Progress.FilesReused) }

// IncrCacheHits counts a linkable cache hit.
func (r *Run) IncrCacheHits() { r.incr(&r.Progress.CacheHits) }

// RunSnapshot is a read-only, JSON-safe copy of run state.
type RunSnapshot struct {
	ID       string    `json:"run_id"`
	Source   string    `json:"source"`
	Status   RunStatus `json:"status"`
	Phase    string    `json:"phase"`
	Progress Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.Progress
	p.Warnings = append([]string{}, r.Progress.Warnings...)
	p.Errors = append([]string{}, r.Progress.Errors...)
	return RunSnapshot{
		ID:       r.ID,
		Source:   r.Source,
		Status:   r.Status,
		Phase:    r.Phase,
		Progress: p,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
