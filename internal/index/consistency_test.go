package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInconsistencyType_String(t *testing.T) {
	tests := []struct {
		typ  InconsistencyType
		want string
	}{
		{InconsistencyOrphanFullText, "orphan_fulltext"},
		{InconsistencyOrphanVector, "orphan_vector"},
		{InconsistencyMissingFullText, "missing_fulltext"},
		{InconsistencyMissingVector, "missing_vector"},
		{InconsistencyType(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}

func TestConsistencyChecker_CleanIndex(t *testing.T) {
	// Given: a freshly built index
	p, _ := builtProject(t, map[string]string{"a.txt": "alpha\n", "b.txt": "beta\n"})
	c := NewConsistencyChecker(p.stores, nil)

	// When: checking
	res, err := c.Check(context.Background())

	// Then: every chunk agrees across the indexes
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.True(t, res.Consistent())
	assert.True(t, c.QuickCheck())
}

func TestConsistencyChecker_DetectsAndRepairsOrphans(t *testing.T) {
	// Given: a file dropped from the catalog only
	ctx := context.Background()
	p, _ := builtProject(t, map[string]string{"a.txt": "alpha\n", "b.txt": "beta\n"})
	require.NoError(t, p.stores.Terms.DeletePaths(ctx, []string{"b.txt"}))
	c := NewConsistencyChecker(p.stores, nil)
	assert.False(t, c.QuickCheck())

	// When: checking
	res, err := c.Check(ctx)

	// Then: its full-text document and vector are orphans
	require.NoError(t, err)
	assert.Equal(t, []Inconsistency{
		{Type: InconsistencyOrphanFullText, ChunkID: "b.txt#0"},
		{Type: InconsistencyOrphanVector, ChunkID: "b.txt#0"},
	}, res.Inconsistencies)

	// And: repair removes both
	removed, err := c.Repair(ctx, res.Inconsistencies)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	res, err = c.Check(ctx)
	require.NoError(t, err)
	assert.True(t, res.Consistent())
}

func TestConsistencyChecker_MissingEntriesAreReported(t *testing.T) {
	// Given: a chunk removed from the full-text index only
	ctx := context.Background()
	p, _ := builtProject(t, map[string]string{"a.txt": "alpha\n"})
	require.NoError(t, p.stores.FullText.DeleteIDs(ctx, []string{"a.txt#0"}))
	c := NewConsistencyChecker(p.stores, nil)

	// When: checking and repairing
	res, err := c.Check(ctx)
	require.NoError(t, err)
	removed, err := c.Repair(ctx, res.Inconsistencies)

	// Then: the gap is reported but left for a rebuild
	require.NoError(t, err)
	assert.Equal(t, []Inconsistency{
		{Type: InconsistencyMissingFullText, ChunkID: "a.txt#0"},
	}, res.Inconsistencies)
	assert.Zero(t, removed)
}
