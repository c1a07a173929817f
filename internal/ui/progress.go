package ui

import (
	"sync"
	"time"
)

// etaSmoothing weights a new ETA estimate against the previous one.
const etaSmoothing = 0.3

// ProgressTracker accumulates progress across stages. It is safe for
// concurrent use.
type ProgressTracker struct {
	mu          sync.Mutex
	now         func() time.Time
	stage       Stage
	current     int
	total       int
	currentFile string
	start       time.Time
	stageStart  time.Time
	lastETA     time.Duration
	errors      int
	warnings    int
}

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64 // 0..1
	Rate        float64 // items per second in the current stage
	ETA         time.Duration
	CurrentFile string
	Errors      int
	Warnings    int
}

// NewProgressTracker creates a tracker in the scanning stage.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	t := now()
	return &ProgressTracker{now: now, start: t, stageStart: t}
}

// Apply records an event, switching stage when it changes.
func (p *ProgressTracker) Apply(e ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e.Stage != p.stage {
		p.stage = e.Stage
		p.stageStart = p.now()
		p.lastETA = 0
		p.currentFile = ""
	}
	p.current = e.Current
	p.total = e.Total
	if e.CurrentFile != "" {
		p.currentFile = e.CurrentFile
	}
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(e ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Elapsed returns the time since the tracker was created.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Sub(p.start)
}

// Stats returns a snapshot. It smooths the ETA, so it takes the write lock.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		CurrentFile: p.currentFile,
		Errors:      p.errors,
		Warnings:    p.warnings,
	}
	if p.total > 0 {
		s.Progress = float64(p.current) / float64(p.total)
		if s.Progress > 1 {
			s.Progress = 1
		}
	}
	elapsed := p.now().Sub(p.stageStart)
	if elapsed > 0 && p.current > 0 {
		s.Rate = float64(p.current) / elapsed.Seconds()
	}
	s.ETA = p.eta(elapsed, s.Progress)
	return s
}

// eta extrapolates the stage duration from progress so far and smooths
// it exponentially. Callers hold p.mu.
func (p *ProgressTracker) eta(elapsed time.Duration, progress float64) time.Duration {
	if progress <= 0 || progress >= 1 {
		return 0
	}
	raw := time.Duration(float64(elapsed)/progress) - elapsed
	if raw < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	p.lastETA = time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(p.lastETA))
	return p.lastETA
}
