package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS query_stats (
	date TEXT PRIMARY KEY,
	queries INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	zero_results INTEGER NOT NULL DEFAULT 0,
	cache_hits INTEGER NOT NULL DEFAULT 0,
	cache_misses INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS backend_outcomes (
	date TEXT NOT NULL,
	backend TEXT NOT NULL,
	outcome TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, backend, outcome)
);

CREATE TABLE IF NOT EXISTS query_latency_stats (
	date TEXT NOT NULL,
	bucket TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, bucket)
);

CREATE TABLE IF NOT EXISTS query_terms (
	term TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 0,
	last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);
`

// Store persists collector aggregates per day in SQLite. Each Save writes
// the growth since the previous Save, so a long-running collector can be
// flushed repeatedly without double counting.
type Store struct {
	db *sql.DB

	mu   sync.Mutex
	last *Snapshot
}

// OpenStore opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry database: %w", err)
	}
	// One connection keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save adds the difference between snap and the previously saved snapshot
// to the rows of date.
func (s *Store) Save(date string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := delta(s.last, snap)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO query_stats (date, queries, failed, zero_results, cache_hits, cache_misses)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			queries = queries + excluded.queries,
			failed = failed + excluded.failed,
			zero_results = zero_results + excluded.zero_results,
			cache_hits = cache_hits + excluded.cache_hits,
			cache_misses = cache_misses + excluded.cache_misses
	`, date, d.Queries, d.Failed, d.ZeroResults, d.CacheHits, d.CacheMisses); err != nil {
		return fmt.Errorf("upsert query stats: %w", err)
	}

	for backend, counts := range d.Outcomes {
		for outcome, n := range counts {
			if n == 0 {
				continue
			}
			if _, err := tx.Exec(`
				INSERT INTO backend_outcomes (date, backend, outcome, count)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(date, backend, outcome) DO UPDATE SET count = count + excluded.count
			`, date, backend, outcome, n); err != nil {
				return fmt.Errorf("upsert backend outcome: %w", err)
			}
		}
	}

	for bucket, n := range d.Latency {
		if n == 0 {
			continue
		}
		if _, err := tx.Exec(`
			INSERT INTO query_latency_stats (date, bucket, count)
			VALUES (?, ?, ?)
			ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count
		`, date, string(bucket), n); err != nil {
			return fmt.Errorf("upsert latency count: %w", err)
		}
	}

	for term, n := range d.Terms {
		if n <= 0 {
			continue
		}
		if _, err := tx.Exec(`
			INSERT INTO query_terms (term, count, last_seen)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(term) DO UPDATE SET
				count = count + excluded.count,
				last_seen = CURRENT_TIMESTAMP
		`, term, n); err != nil {
			return fmt.Errorf("upsert term count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.last = &snap
	return nil
}

// Flush saves the collector's current snapshot under the day of now.
func (s *Store) Flush(c *Collector, now time.Time) error {
	return s.Save(now.Format(dateLayout), c.Snapshot())
}

// Run flushes c every interval until ctx is done, then flushes once more.
func (s *Store) Run(ctx context.Context, c *Collector, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := s.Flush(c, time.Now()); err != nil {
				logger.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
			}
			return
		case <-ticker.C:
			if err := s.Flush(c, time.Now()); err != nil {
				logger.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Totals are persisted aggregates over a date range.
type Totals struct {
	Queries     int64                       `json:"queries"`
	Failed      int64                       `json:"failed"`
	ZeroResults int64                       `json:"zero_results"`
	CacheHits   int64                       `json:"cache_hits"`
	CacheMisses int64                       `json:"cache_misses"`
	Outcomes    map[string]map[string]int64 `json:"outcomes"`
	Latency     map[LatencyBucket]int64     `json:"latency_distribution"`
}

// Totals sums the rows between from and to (inclusive, YYYY-MM-DD).
func (s *Store) Totals(from, to string) (Totals, error) {
	t := Totals{
		Outcomes: make(map[string]map[string]int64),
		Latency:  make(map[LatencyBucket]int64),
	}
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(queries), 0), COALESCE(SUM(failed), 0), COALESCE(SUM(zero_results), 0),
		       COALESCE(SUM(cache_hits), 0), COALESCE(SUM(cache_misses), 0)
		FROM query_stats WHERE date >= ? AND date <= ?
	`, from, to).Scan(&t.Queries, &t.Failed, &t.ZeroResults, &t.CacheHits, &t.CacheMisses)
	if err != nil {
		return t, fmt.Errorf("query stats: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT backend, outcome, SUM(count) FROM backend_outcomes
		WHERE date >= ? AND date <= ? GROUP BY backend, outcome
	`, from, to)
	if err != nil {
		return t, fmt.Errorf("query backend outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var backend, outcome string
		var n int64
		if err := rows.Scan(&backend, &outcome, &n); err != nil {
			return t, fmt.Errorf("scan row: %w", err)
		}
		if t.Outcomes[backend] == nil {
			t.Outcomes[backend] = make(map[string]int64)
		}
		t.Outcomes[backend][outcome] = n
	}
	if err := rows.Err(); err != nil {
		return t, err
	}

	lrows, err := s.db.Query(`
		SELECT bucket, SUM(count) FROM query_latency_stats
		WHERE date >= ? AND date <= ? GROUP BY bucket
	`, from, to)
	if err != nil {
		return t, fmt.Errorf("query latency counts: %w", err)
	}
	defer lrows.Close()
	for lrows.Next() {
		var bucket string
		var n int64
		if err := lrows.Scan(&bucket, &n); err != nil {
			return t, fmt.Errorf("scan row: %w", err)
		}
		t.Latency[LatencyBucket(bucket)] = n
	}
	return t, lrows.Err()
}

// TopTerms returns the limit most frequent persisted terms.
func (s *Store) TopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`
		SELECT term, count FROM query_terms
		ORDER BY count DESC, term ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

type snapshotDelta struct {
	Queries, Failed, ZeroResults, CacheHits, CacheMisses int64

	Outcomes map[string]map[string]int64
	Latency  map[LatencyBucket]int64
	Terms    map[string]int64
}

// delta returns cur minus prev. A counter that went down means the
// collector was reset; its current value is then taken whole.
func delta(prev *Snapshot, cur Snapshot) snapshotDelta {
	if prev == nil || cur.Queries < prev.Queries {
		prev = &Snapshot{}
	}
	sub := func(a, b int64) int64 {
		if a < b {
			return a
		}
		return a - b
	}

	d := snapshotDelta{
		Queries:     sub(cur.Queries, prev.Queries),
		Failed:      sub(cur.Failed, prev.Failed),
		ZeroResults: sub(cur.ZeroResults, prev.ZeroResults),
		CacheHits:   sub(cur.CacheHits, prev.CacheHits),
		CacheMisses: sub(cur.CacheMisses, prev.CacheMisses),
		Outcomes:    make(map[string]map[string]int64),
		Latency:     make(map[LatencyBucket]int64),
		Terms:       make(map[string]int64),
	}

	prevOutcomes := make(map[string]map[string]int64)
	for _, b := range prev.Backends {
		prevOutcomes[b.Backend] = b.Outcomes
	}
	for _, b := range cur.Backends {
		counts := make(map[string]int64, len(b.Outcomes))
		for outcome, n := range b.Outcomes {
			counts[outcome] = sub(n, prevOutcomes[b.Backend][outcome])
		}
		d.Outcomes[b.Backend] = counts
	}

	for bucket, n := range cur.LatencyDistribution {
		d.Latency[bucket] = sub(n, prev.LatencyDistribution[bucket])
	}

	prevTerms := make(map[string]int64, len(prev.TopTerms))
	for _, tc := range prev.TopTerms {
		prevTerms[tc.Term] = tc.Count
	}
	for _, tc := range cur.TopTerms {
		d.Terms[tc.Term] = sub(tc.Count, prevTerms[tc.Term])
	}
	return d
}
