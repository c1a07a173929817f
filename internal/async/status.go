// Package async runs index builds in the background and tracks how far
// they have come, so a server can answer queries while it indexes.
package async

import (
	"context"
	"sync"
	"time"

	"github.com/Aman-CERP/fusesearch/internal/ui"
)

// BuildStatus is the overall state of a build.
type BuildStatus string

const (
	// StatusBuilding means a build is running.
	StatusBuilding BuildStatus = "building"
	// StatusReady means the last build finished.
	StatusReady BuildStatus = "ready"
	// StatusError means the last build failed.
	StatusError BuildStatus = "error"
)

// Snapshot is an immutable copy of build progress.
type Snapshot struct {
	Status         BuildStatus `json:"status"`
	Stage          string      `json:"stage"`
	Current        int         `json:"current"`
	Total          int         `json:"total"`
	Files          int         `json:"files"`
	Chunks         int         `json:"chunks"`
	Warnings       int         `json:"warnings"`
	ProgressPct    float64     `json:"progress_pct"`
	ElapsedSeconds int         `json:"elapsed_seconds"`
	Error          string      `json:"error,omitempty"`
}

// Progress tracks one build. It implements ui.Renderer, so a build
// reports into it like into any terminal renderer.
type Progress struct {
	mu sync.RWMutex

	status   BuildStatus
	stage    ui.Stage
	current  int
	total    int
	files    int
	chunks   int
	warnings int
	started  time.Time
	finished time.Time
	errMsg   string
}

// NewProgress creates a tracker in the building state.
func NewProgress() *Progress {
	return &Progress{
		status:  StatusBuilding,
		stage:   ui.StageScanning,
		started: time.Now(),
	}
}

// Start implements ui.Renderer.
func (p *Progress) Start(context.Context) error { return nil }

// Stop implements ui.Renderer.
func (p *Progress) Stop() error { return nil }

// UpdateProgress implements ui.Renderer.
func (p *Progress) UpdateProgress(e ui.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = e.Stage
	p.current = e.Current
	p.total = e.Total
	if e.Stage == ui.StageScanning && e.Total > 0 {
		p.files = e.Total
	}
}

// AddError implements ui.Renderer. Every per-file failure counts as a
// warning; fatal errors surface through SetError.
func (p *Progress) AddError(ui.ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warnings++
}

// Complete implements ui.Renderer.
func (p *Progress) Complete(stats ui.CompletionStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = ui.StageComplete
	p.files = stats.Files
	p.chunks = stats.Chunks
	p.current, p.total = 0, 0
}

// SetError marks the build failed.
func (p *Progress) SetError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusError
	p.errMsg = msg
	p.finished = time.Now()
}

// SetReady marks the build finished.
func (p *Progress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusReady
	p.stage = ui.StageComplete
	p.finished = time.Now()
}

// Building reports whether the build is still running.
func (p *Progress) Building() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status == StatusBuilding
}

// Snapshot copies the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	switch {
	case p.status == StatusReady:
		pct = 100
	case p.total > 0:
		pct = float64(p.current) / float64(p.total) * 100
	}
	end := p.finished
	if end.IsZero() {
		end = time.Now()
	}
	return Snapshot{
		Status:         p.status,
		Stage:          p.stage.String(),
		Current:        p.current,
		Total:          p.total,
		Files:          p.files,
		Chunks:         p.chunks,
		Warnings:       p.warnings,
		ProgressPct:    pct,
		ElapsedSeconds: int(end.Sub(p.started).Seconds()),
		Error:          p.errMsg,
	}
}

var _ ui.Renderer = (*Progress)(nil)
