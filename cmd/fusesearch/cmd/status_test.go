package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fusesearch/internal/index"
	"github.com/Aman-CERP/fusesearch/internal/telemetry"
)

func TestStatusCmd_JSON(t *testing.T) {
	// Given: an indexed project
	root := indexedProject(t)

	// When: asking for status as JSON
	out, err := run(t, "status", root, "--json")

	// Then: the counts and sizes come from the index on disk
	require.NoError(t, err)
	var doc statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, root, doc.Root)
	assert.Equal(t, 2, doc.Files)
	assert.Positive(t, doc.Chunks)
	assert.Positive(t, doc.FullTextSize)
	assert.Positive(t, doc.TermsSize)
	assert.False(t, doc.Locked)
	assert.Len(t, doc.Backends, 4)
	assert.Nil(t, doc.Telemetry, "nothing was persisted yet")
}

func TestStatusCmd_Text(t *testing.T) {
	// Given: an indexed project
	root := indexedProject(t)

	// When: printing status
	out, err := run(t, "status", root)

	// Then: the rendered summary names the project
	require.NoError(t, err)
	assert.Contains(t, out, root)
}

func TestStatusCmd_Check(t *testing.T) {
	// Given: an indexed project
	root := indexedProject(t)

	// When: running the consistency check
	out, err := run(t, "status", root, "--json", "--check")

	// Then: a fresh build is consistent
	require.NoError(t, err)
	var doc statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Zero(t, doc.Inconsistencies)
	assert.Zero(t, doc.Orphans)
}

func TestStatusCmd_Repair(t *testing.T) {
	// Given: an indexed project
	root := indexedProject(t)

	// When: repairing a consistent index
	out, err := run(t, "status", root, "--repair")

	// Then: the check ran and nothing needed removing
	require.NoError(t, err)
	assert.Contains(t, out, "consistent")
	assert.NotContains(t, out, "Repaired")
}

func TestStatusCmd_NotIndexed(t *testing.T) {
	// Given: a project that was never indexed
	isolate(t)
	root := newProject(t, sampleFiles)

	// When: asking for status
	_, err := run(t, "status", root)

	// Then: the error tells the user what to run
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fusesearch index")
}

func TestStatusCmd_ReportsHeldLock(t *testing.T) {
	// Given: an indexed project whose write lock is held
	root := indexedProject(t)
	lock := index.NewFileLock(index.LayoutFor(root).Lock)
	ok, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = lock.Unlock() }()

	// When: asking for status
	out, err := run(t, "status", root, "--json")

	// Then: the lock shows as held
	require.NoError(t, err)
	var doc statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.True(t, doc.Locked)
}

func TestLoadTotals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, TelemetryFile)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// Given: no telemetry database
	totals, err := loadTotals(path, 7, now)

	// Then: there is nothing to show
	require.NoError(t, err)
	assert.Nil(t, totals)

	// Given: a day of persisted statistics inside the window
	st, err := telemetry.OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, st.Save("2026-03-09", telemetry.Snapshot{Queries: 4, ZeroResults: 1, CacheHits: 1, CacheMisses: 3}))
	require.NoError(t, st.Save("2026-02-01", telemetry.Snapshot{Queries: 100}))
	require.NoError(t, st.Close())

	// When: loading the last week
	totals, err = loadTotals(path, 7, now)

	// Then: only the day inside the window counts
	require.NoError(t, err)
	require.NotNil(t, totals)
	assert.Equal(t, int64(4), totals.Queries)
	assert.Equal(t, int64(1), totals.ZeroResults)
}

func TestRenderTotals(t *testing.T) {
	// Given: a week of totals
	totals := telemetry.Totals{
		Queries:     10,
		Failed:      1,
		ZeroResults: 2,
		CacheHits:   3,
		CacheMisses: 1,
		Outcomes: map[string]map[string]int64{
			"exact":    {"success": 10},
			"semantic": {"success": 8, "timeout": 2},
		},
	}

	// When: rendering
	var buf bytes.Buffer
	renderTotals(&buf, totals, 7)

	// Then: queries, cache hit rate and outcomes are listed
	out := buf.String()
	assert.Contains(t, out, "Queries (last 7 days): 10 (1 failed, 2 without results)")
	assert.Contains(t, out, "75%")
	assert.Contains(t, out, "success 8, timeout 2")
}
