package search

import (
	"time"

	"github.com/Aman-CERP/fusesearch/internal/config"
)

// BackendSpec is one row of the data-driven backend table.
type BackendSpec struct {
	Type     MatchType
	Enabled  bool
	Weight   float64
	Timeout  time.Duration
	Priority int // lower ranks first on score ties

	// RatePerSec paces calls into the backend; zero disables pacing.
	RatePerSec float64
	Burst      int
}

// BreakerSettings configures every backend's circuit breaker.
type BreakerSettings struct {
	FailureThreshold int
	Window           time.Duration
	Cooldown         time.Duration
}

// FusionSettings configures the ranking heuristics applied after fusion.
type FusionSettings struct {
	ContainmentBoost   float64
	PositionBoost      float64
	PositionLines      int
	SizePenalty        float64
	SizeThresholdLines int
}

// Config is the immutable configuration of the search core.
type Config struct {
	DefaultLimit   int
	MaxLimit       int
	MaxQueryLength int

	// JoinOverhead is added to the longest backend timeout to bound the
	// coordinator's join.
	JoinOverhead time.Duration

	// Workers caps backend calls in flight across all concurrent queries.
	// Each registered backend may hold an equal share of them at most.
	Workers int

	Backends []BackendSpec
	Breaker  BreakerSettings
	Fusion   FusionSettings

	CacheEnabled  bool
	CacheCapacity int

	// ChunkLines is the fixed chunk size used by the index.
	ChunkLines int
}

// DefaultConfig returns the default search configuration.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:   10,
		MaxLimit:       100,
		MaxQueryLength: 1000,
		JoinOverhead:   500 * time.Millisecond,
		Workers:        16,
		Backends: []BackendSpec{
			{Type: MatchExact, Enabled: true, Weight: 1.0, Timeout: 2 * time.Second, Priority: 0},
			{Type: MatchFullText, Enabled: true, Weight: 0.9, Timeout: 1 * time.Second, Priority: 1},
			{Type: MatchTermFrequency, Enabled: true, Weight: 0.9, Timeout: 1 * time.Second, Priority: 2},
			{Type: MatchSemantic, Enabled: true, Weight: 0.8, Timeout: 3 * time.Second, Priority: 3},
		},
		Breaker: BreakerSettings{
			FailureThreshold: 5,
			Window:           60 * time.Second,
			Cooldown:         30 * time.Second,
		},
		Fusion: DefaultFusionSettings(),

		CacheEnabled:  true,
		CacheCapacity: 256,
		ChunkLines:    40,
	}
}

// DefaultFusionSettings returns the default ranking heuristics.
func DefaultFusionSettings() FusionSettings {
	return FusionSettings{
		ContainmentBoost:   1.2,
		PositionBoost:      1.1,
		PositionLines:      3,
		SizePenalty:        0.95,
		SizeThresholdLines: 100,
	}
}

// Spec returns the backend table row for t.
func (c Config) Spec(t MatchType) (BackendSpec, bool) {
	for _, s := range c.Backends {
		if s.Type == t {
			return s, true
		}
	}
	return BackendSpec{}, false
}

// ConfigFrom translates a validated configuration file into the search
// core's configuration. Unknown backend names are ignored; Validate
// rejects them earlier.
func ConfigFrom(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}

	if cfg.Search.DefaultLimit > 0 {
		out.DefaultLimit = cfg.Search.DefaultLimit
	}
	if cfg.Search.MaxLimit > 0 {
		out.MaxLimit = cfg.Search.MaxLimit
	}
	if cfg.Search.MaxQueryLength > 0 {
		out.MaxQueryLength = cfg.Search.MaxQueryLength
	}
	if cfg.Search.JoinOverhead > 0 {
		out.JoinOverhead = cfg.Search.JoinOverhead.Std()
	}
	if cfg.Search.Workers > 0 {
		out.Workers = cfg.Search.Workers
	}

	specs := make([]BackendSpec, 0, len(out.Backends))
	for _, def := range out.Backends {
		spec := def
		if bc, ok := cfg.Backends[def.Type.String()]; ok {
			spec.Enabled = bc.IsEnabled()
			spec.Weight = bc.Weight
			if bc.Timeout > 0 {
				spec.Timeout = bc.Timeout.Std()
			}
			spec.Priority = bc.Priority
			spec.RatePerSec = bc.RatePerSec
			spec.Burst = bc.Burst
		}
		specs = append(specs, spec)
	}
	out.Backends = specs

	if cfg.Breaker.FailureThreshold > 0 {
		out.Breaker.FailureThreshold = cfg.Breaker.FailureThreshold
	}
	if cfg.Breaker.Window > 0 {
		out.Breaker.Window = cfg.Breaker.Window.Std()
	}
	if cfg.Breaker.Cooldown > 0 {
		out.Breaker.Cooldown = cfg.Breaker.Cooldown.Std()
	}

	out.Fusion = FusionSettings{
		ContainmentBoost:   cfg.Fusion.ContainmentBoost,
		PositionBoost:      cfg.Fusion.PositionBoost,
		PositionLines:      cfg.Fusion.PositionLines,
		SizePenalty:        cfg.Fusion.SizePenalty,
		SizeThresholdLines: cfg.Fusion.SizeThresholdLines,
	}

	out.CacheEnabled = cfg.Cache.IsEnabled()
	if cfg.Cache.Capacity > 0 {
		out.CacheCapacity = cfg.Cache.Capacity
	}
	if cfg.Chunk.Lines > 0 {
		out.ChunkLines = cfg.Chunk.Lines
	}
	return out
}
