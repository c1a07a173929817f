package telemetry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fusesearch/internal/search"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(c *Collector, query string, results int) {
	c.CacheLookup("id", false)
	c.BackendFinished("id", search.BackendReport{Backend: search.MatchExact, Outcome: search.OutcomeSuccess, Latency: 5 * time.Millisecond, Matches: results})
	c.BackendFinished("id", search.BackendReport{Backend: search.MatchSemantic, Outcome: search.OutcomeTimeout, Latency: 600 * time.Millisecond})
	c.QueryFinished("id", search.QuerySummary{Query: query, Latency: 20 * time.Millisecond, Results: results})
}

func TestStore_SaveAndTotals(t *testing.T) {
	// Given: a store and a collector with two queries
	s := openTestStore(t)
	c := NewCollector(Config{})
	record(c, "parse config", 2)
	record(c, "nothing here", 0)

	// When: the snapshot is saved
	require.NoError(t, s.Save("2026-01-06", c.Snapshot()))

	// Then: totals reflect it
	totals, err := s.Totals("2026-01-06", "2026-01-06")
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Queries)
	assert.Equal(t, int64(1), totals.ZeroResults)
	assert.Equal(t, int64(2), totals.CacheMisses)
	assert.Equal(t, int64(2), totals.Outcomes["exact"]["success"])
	assert.Equal(t, int64(2), totals.Outcomes["semantic"]["timeout"])
	assert.Equal(t, int64(2), totals.Latency[BucketP50])
}

func TestStore_SaveWritesOnlyGrowth(t *testing.T) {
	// Given: a snapshot already saved
	s := openTestStore(t)
	c := NewCollector(Config{})
	record(c, "parse config", 1)
	require.NoError(t, s.Save("2026-01-06", c.Snapshot()))

	// When: one more query arrives and the collector is saved again twice
	record(c, "parse tokens", 1)
	require.NoError(t, s.Save("2026-01-06", c.Snapshot()))
	require.NoError(t, s.Save("2026-01-06", c.Snapshot()))

	// Then: nothing is counted twice
	totals, err := s.Totals("2026-01-06", "2026-01-06")
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Queries)
	assert.Equal(t, int64(2), totals.Outcomes["exact"]["success"])

	terms, err := s.TopTerms(10)
	require.NoError(t, err)
	require.NotEmpty(t, terms)
	assert.Equal(t, TermCount{Term: "parse", Count: 2}, terms[0])
}

func TestStore_SaveAfterReset(t *testing.T) {
	s := openTestStore(t)
	c := NewCollector(Config{})
	record(c, "one", 1)
	record(c, "two", 1)
	require.NoError(t, s.Save("2026-01-06", c.Snapshot()))

	c.Reset()
	record(c, "three", 1)
	require.NoError(t, s.Save("2026-01-06", c.Snapshot()))

	totals, err := s.Totals("2026-01-06", "2026-01-06")
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.Queries)
}

func TestStore_TotalsFiltersByDate(t *testing.T) {
	s := openTestStore(t)
	c := NewCollector(Config{})
	record(c, "first", 1)
	require.NoError(t, s.Save("2026-01-05", c.Snapshot()))
	record(c, "second", 1)
	require.NoError(t, s.Save("2026-01-07", c.Snapshot()))

	day, err := s.Totals("2026-01-07", "2026-01-07")
	require.NoError(t, err)
	all, err := s.Totals("2026-01-01", "2026-01-31")
	require.NoError(t, err)
	none, err := s.Totals("2025-01-01", "2025-01-31")
	require.NoError(t, err)

	assert.Equal(t, int64(1), day.Queries)
	assert.Equal(t, int64(2), all.Queries)
	assert.Zero(t, none.Queries)
}

func TestStore_RunFlushesOnCancel(t *testing.T) {
	// Given: a flusher with a long interval
	s := openTestStore(t)
	c := NewCollector(Config{})
	record(c, "flushed on exit", 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, c, time.Hour, nil)
	}()

	// When: the context is cancelled
	cancel()
	<-done

	// Then: the final flush landed under today
	today := time.Now().Format(dateLayout)
	totals, err := s.Totals(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.Queries)
}

func TestOpenStore_InMemory(t *testing.T) {
	s, err := OpenStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	totals, err := s.Totals("2026-01-01", "2026-12-31")
	require.NoError(t, err)
	assert.Zero(t, totals.Queries)
	assert.Empty(t, totals.Outcomes)
}
