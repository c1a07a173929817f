package search

import (
	"context"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"
)

// fakeBackend is a scripted Backend with a call counter.
type fakeBackend struct {
	typ     MatchType
	matches []RawMatch
	err     error

	// delay is waited before answering; ignoreCtx makes the wait deaf to ctx.
	delay     time.Duration
	ignoreCtx bool
	panics    bool

	// hold, when set, blocks every call until closed, regardless of ctx.
	hold chan struct{}

	calls atomic.Int32
}

func newFake(t MatchType, matches ...RawMatch) *fakeBackend {
	return &fakeBackend{typ: t, matches: matches}
}

func (f *fakeBackend) Type() MatchType { return f.typ }

func (f *fakeBackend) Search(ctx context.Context, _ Query) ([]RawMatch, error) {
	f.calls.Add(1)
	if f.panics {
		panic("index exploded")
	}
	if f.hold != nil {
		<-f.hold
	}
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]RawMatch(nil), f.matches...), nil
}

// mapReader serves files from memory and counts reads.
type mapReader struct {
	mu    sync.Mutex
	files map[string]string
	reads map[string]int
}

func newMapReader(files map[string]string) *mapReader {
	return &mapReader{files: files, reads: make(map[string]int)}
}

func (r *mapReader) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads[path]++
	content, ok := r.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return []byte(content), nil
}

func (r *mapReader) readCount(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads[path]
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingObserver keeps every event it receives.
type recordingObserver struct {
	mu       sync.Mutex
	reports  []BackendReport
	lookups  []bool
	finished []QuerySummary
}

func (o *recordingObserver) BackendFinished(_ string, r BackendReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reports = append(o.reports, r)
}

func (o *recordingObserver) CacheLookup(_ string, hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lookups = append(o.lookups, hit)
}

func (o *recordingObserver) QueryFinished(_ string, s QuerySummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, s)
}

func (o *recordingObserver) outcomes() map[MatchType]Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[MatchType]Outcome, len(o.reports))
	for _, r := range o.reports {
		out[r.Backend] = r.Outcome
	}
	return out
}

// testConfig returns the default configuration with timeouts short enough
// for tests.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JoinOverhead = 100 * time.Millisecond
	for i := range cfg.Backends {
		cfg.Backends[i].Timeout = time.Second
	}
	return cfg
}

func setTimeout(cfg *Config, t MatchType, d time.Duration) {
	for i := range cfg.Backends {
		if cfg.Backends[i].Type == t {
			cfg.Backends[i].Timeout = d
		}
	}
}

func setEnabled(cfg *Config, t MatchType, enabled bool) {
	for i := range cfg.Backends {
		if cfg.Backends[i].Type == t {
			cfg.Backends[i].Enabled = enabled
		}
	}
}

func breakerFor(states []BreakerStatus, t MatchType) BreakerStatus {
	for _, s := range states {
		if s.Backend == t {
			return s
		}
	}
	return BreakerStatus{}
}
