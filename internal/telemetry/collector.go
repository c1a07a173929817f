// Package telemetry aggregates search events in memory: per-backend outcome
// counters, recent latencies, cache hit rate, frequent query terms and
// queries that found nothing. Nothing leaves the machine; aggregates can be
// flushed to a local SQLite file.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/fusesearch/internal/search"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

var buckets = []LatencyBucket{BucketP10, BucketP50, BucketP100, BucketP500, BucketP1000}

// LatencyToBucket returns the histogram bucket of d.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// ExtractTerms lowercases query and returns its words of three or more bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

const numOutcomes = int(search.OutcomeSaturated) + 1

// outcomes lists every outcome in reporting order.
var outcomes = []search.Outcome{
	search.OutcomeSuccess,
	search.OutcomeTimeout,
	search.OutcomeCircuitOpen,
	search.OutcomeError,
	search.OutcomeCancelled,
	search.OutcomeSaturated,
}

// Config configures a Collector.
type Config struct {
	LatencyWindow       int // recent latencies kept per series (default 1000)
	TopTermsCapacity    int // distinct terms tracked (default 100)
	ZeroResultsCapacity int // recent zero-result queries kept (default 50)
	RecentQueries       int // query fingerprints kept for repeat detection (default 500)
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		LatencyWindow:       1000,
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 50,
		RecentQueries:       500,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LatencyWindow <= 0 {
		c.LatencyWindow = d.LatencyWindow
	}
	if c.TopTermsCapacity <= 0 {
		c.TopTermsCapacity = d.TopTermsCapacity
	}
	if c.ZeroResultsCapacity <= 0 {
		c.ZeroResultsCapacity = d.ZeroResultsCapacity
	}
	if c.RecentQueries <= 0 {
		c.RecentQueries = d.RecentQueries
	}
	return c
}

// backendSeries holds the counters of one backend.
type backendSeries struct {
	outcomes  [numOutcomes]atomic.Int64
	matches   atomic.Int64
	latencies *CircularBuffer[time.Duration]
}

// Collector implements search.Observer. All methods are safe for
// concurrent use and never block on I/O.
type Collector struct {
	cfg   Config
	start time.Time // guarded by mu

	queries     atomic.Int64
	failed      atomic.Int64
	zeroResults atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	repeats     atomic.Int64

	backends  map[search.MatchType]*backendSeries
	latencies *CircularBuffer[time.Duration]
	zeroQuery *CircularBuffer[string]

	mu        sync.Mutex // guards histogram, terms and recent
	histogram map[LatencyBucket]int64
	terms     *lru.Cache[string, int64]
	recent    *lru.Cache[string, struct{}]
}

// NewCollector creates a collector.
func NewCollector(cfg Config) *Collector {
	cfg = cfg.withDefaults()
	terms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueries)

	c := &Collector{
		cfg:       cfg,
		start:     time.Now(),
		backends:  make(map[search.MatchType]*backendSeries, len(search.AllMatchTypes)),
		latencies: NewCircularBuffer[time.Duration](cfg.LatencyWindow),
		zeroQuery: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		histogram: make(map[LatencyBucket]int64, len(buckets)),
		terms:     terms,
		recent:    recent,
	}
	for _, t := range search.AllMatchTypes {
		c.backends[t] = &backendSeries{latencies: NewCircularBuffer[time.Duration](cfg.LatencyWindow)}
	}
	return c
}

// BackendFinished implements search.Observer.
func (c *Collector) BackendFinished(_ string, r search.BackendReport) {
	s, ok := c.backends[r.Backend]
	if !ok || int(r.Outcome) < 0 || int(r.Outcome) >= numOutcomes {
		return
	}
	s.outcomes[r.Outcome].Add(1)
	s.matches.Add(int64(r.Matches))
	// Skipped backends did no work; their zero latency would skew percentiles.
	if r.Outcome != search.OutcomeCircuitOpen && r.Outcome != search.OutcomeSaturated {
		s.latencies.Add(r.Latency)
	}
}

// CacheLookup implements search.Observer.
func (c *Collector) CacheLookup(_ string, hit bool) {
	if hit {
		c.cacheHits.Add(1)
	} else {
		c.cacheMisses.Add(1)
	}
}

// QueryFinished implements search.Observer.
func (c *Collector) QueryFinished(_ string, s search.QuerySummary) {
	c.queries.Add(1)
	if s.Err != nil {
		c.failed.Add(1)
		return
	}
	c.latencies.Add(s.Latency)
	if s.Results == 0 {
		c.zeroResults.Add(1)
		c.zeroQuery.Add(s.Query)
	}

	fp := fingerprint(s.Query)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histogram[LatencyToBucket(s.Latency)]++
	for _, term := range ExtractTerms(s.Query) {
		n, _ := c.terms.Get(term)
		c.terms.Add(term, n+1)
	}
	if _, seen := c.recent.Get(fp); seen {
		c.repeats.Add(1)
	}
	c.recent.Add(fp, struct{}{})
}

func fingerprint(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.Join(strings.Fields(query), " "))))
	return hex.EncodeToString(sum[:16])
}

// TermCount is a query term and how often it was seen.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// LatencySummary describes a window of latencies.
type LatencySummary struct {
	Samples int           `json:"samples"`
	P50     time.Duration `json:"p50_ns"`
	P95     time.Duration `json:"p95_ns"`
	Max     time.Duration `json:"max_ns"`
}

// BackendSnapshot is the state of one backend.
type BackendSnapshot struct {
	Backend  string           `json:"backend"`
	Outcomes map[string]int64 `json:"outcomes"`
	Matches  int64            `json:"matches"`
	Latency  LatencySummary   `json:"latency"`
}

// Calls returns the number of reports of any outcome.
func (b BackendSnapshot) Calls() int64 {
	var n int64
	for _, v := range b.Outcomes {
		n += v
	}
	return n
}

// Snapshot is a point-in-time copy of the collector.
type Snapshot struct {
	Since               time.Time               `json:"since"`
	Queries             int64                   `json:"queries"`
	Failed              int64                   `json:"failed"`
	ZeroResults         int64                   `json:"zero_results"`
	Repeats             int64                   `json:"repeats"`
	CacheHits           int64                   `json:"cache_hits"`
	CacheMisses         int64                   `json:"cache_misses"`
	CacheHitRate        float64                 `json:"cache_hit_rate"`
	Latency             LatencySummary          `json:"latency"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	Backends            []BackendSnapshot       `json:"backends"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
}

// Snapshot copies the current aggregates.
func (c *Collector) Snapshot() Snapshot {
	hits, misses := c.cacheHits.Load(), c.cacheMisses.Load()
	s := Snapshot{
		Queries:           c.queries.Load(),
		Failed:            c.failed.Load(),
		ZeroResults:       c.zeroResults.Load(),
		Repeats:           c.repeats.Load(),
		CacheHits:         hits,
		CacheMisses:       misses,
		Latency:           summarize(c.latencies.Items()),
		ZeroResultQueries: c.zeroQuery.Items(),
	}
	if hits+misses > 0 {
		s.CacheHitRate = float64(hits) / float64(hits+misses)
	}

	for _, t := range search.AllMatchTypes {
		series := c.backends[t]
		b := BackendSnapshot{
			Backend:  t.String(),
			Outcomes: make(map[string]int64, numOutcomes),
			Matches:  series.matches.Load(),
			Latency:  summarize(series.latencies.Items()),
		}
		for _, o := range outcomes {
			b.Outcomes[o.String()] = series.outcomes[o].Load()
		}
		s.Backends = append(s.Backends, b)
	}

	c.mu.Lock()
	s.Since = c.start
	s.LatencyDistribution = make(map[LatencyBucket]int64, len(c.histogram))
	for k, v := range c.histogram {
		s.LatencyDistribution[k] = v
	}
	for _, term := range c.terms.Keys() {
		if n, ok := c.terms.Peek(term); ok {
			s.TopTerms = append(s.TopTerms, TermCount{Term: term, Count: n})
		}
	}
	c.mu.Unlock()

	sort.SliceStable(s.TopTerms, func(i, j int) bool {
		if s.TopTerms[i].Count != s.TopTerms[j].Count {
			return s.TopTerms[i].Count > s.TopTerms[j].Count
		}
		return s.TopTerms[i].Term < s.TopTerms[j].Term
	})
	return s
}

// Reset clears every aggregate and restarts the Since clock.
func (c *Collector) Reset() {
	c.queries.Store(0)
	c.failed.Store(0)
	c.zeroResults.Store(0)
	c.repeats.Store(0)
	c.cacheHits.Store(0)
	c.cacheMisses.Store(0)
	c.latencies.Clear()
	c.zeroQuery.Clear()
	for _, s := range c.backends {
		for i := range s.outcomes {
			s.outcomes[i].Store(0)
		}
		s.matches.Store(0)
		s.latencies.Clear()
	}
	c.mu.Lock()
	c.histogram = make(map[LatencyBucket]int64, len(buckets))
	c.terms.Purge()
	c.recent.Purge()
	c.start = time.Now()
	c.mu.Unlock()
}

// summarize computes nearest-rank percentiles.
func summarize(samples []time.Duration) LatencySummary {
	if len(samples) == 0 {
		return LatencySummary{}
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return LatencySummary{
		Samples: len(sorted),
		P50:     percentile(sorted, 0.50),
		P95:     percentile(sorted, 0.95),
		Max:     sorted[len(sorted)-1],
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

var _ search.Observer = (*Collector)(nil)
