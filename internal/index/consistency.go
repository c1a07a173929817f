package index

import (
	"context"
	"log/slog"
	"time"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanFullText is a full-text document without a catalog entry.
	InconsistencyOrphanFullText InconsistencyType = iota
	// InconsistencyOrphanVector is a vector without a catalog entry.
	InconsistencyOrphanVector
	// InconsistencyMissingFullText is a cataloged chunk absent from the full-text index.
	InconsistencyMissingFullText
	// InconsistencyMissingVector is a cataloged chunk absent from the vector store.
	InconsistencyMissingVector
)

// String returns the snake_case name of the type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanFullText:
		return "orphan_fulltext"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingFullText:
		return "missing_fulltext"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// Inconsistency is one cross-index disagreement about a chunk.
type Inconsistency struct {
	Type    InconsistencyType
	ChunkID string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// Consistent reports whether no issue was found.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// ConsistencyChecker compares the full-text index and the vector store
// against the term index's chunk catalog, which is the source of truth.
type ConsistencyChecker struct {
	stores *Stores
	logger *slog.Logger
}

// NewConsistencyChecker creates a checker over stores.
func NewConsistencyChecker(stores *Stores, logger *slog.Logger) *ConsistencyChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsistencyChecker{stores: stores, logger: logger}
}

// Check lists every orphaned and missing entry.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	catalogIDs, err := c.stores.Terms.AllIDs(ctx)
	if err != nil {
		return nil, err
	}
	fullTextIDs, err := c.stores.FullText.AllIDs(ctx)
	if err != nil {
		return nil, err
	}
	vectorIDs := c.stores.Vectors.IDs()

	catalog := toSet(catalogIDs)
	fullText := toSet(fullTextIDs)
	vectors := toSet(vectorIDs)

	var issues []Inconsistency
	for _, id := range fullTextIDs {
		if !catalog[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanFullText, ChunkID: id})
		}
	}
	for _, id := range vectorIDs {
		if !catalog[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanVector, ChunkID: id})
		}
	}
	for _, id := range catalogIDs {
		if !fullText[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingFullText, ChunkID: id})
		}
		if !vectors[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingVector, ChunkID: id})
		}
	}

	return &CheckResult{
		Checked:         len(catalogIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair deletes orphans. Missing entries need a rebuild and are only
// logged. It returns the number of orphans removed.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) (int, error) {
	var orphanFullText, orphanVector []string
	missing := 0
	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphanFullText:
			orphanFullText = append(orphanFullText, issue.ChunkID)
		case InconsistencyOrphanVector:
			orphanVector = append(orphanVector, issue.ChunkID)
		default:
			missing++
		}
	}

	if err := c.stores.FullText.DeleteIDs(ctx, orphanFullText); err != nil {
		return 0, err
	}
	if err := c.stores.Vectors.Delete(ctx, orphanVector); err != nil {
		return len(orphanFullText), err
	}
	removed := len(orphanFullText) + len(orphanVector)
	if removed > 0 {
		c.logger.Info("index_orphans_removed",
			slog.Int("fulltext", len(orphanFullText)),
			slog.Int("vectors", len(orphanVector)))
	}
	if missing > 0 {
		c.logger.Warn("index_entries_missing",
			slog.Int("count", missing),
			slog.String("hint", "run 'fusesearch index' to rebuild"))
	}
	return removed, nil
}

// QuickCheck compares counts only.
func (c *ConsistencyChecker) QuickCheck() bool {
	counts := c.stores.Counts()
	ok := counts.Terms == counts.FullText && counts.Terms == counts.Vectors
	if !ok {
		c.logger.Debug("index_counts_mismatch",
			slog.Int("terms", counts.Terms),
			slog.Int("fulltext", counts.FullText),
			slog.Int("vectors", counts.Vectors))
	}
	return ok
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
