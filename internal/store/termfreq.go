package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go driver with FTS5
)

// TermIndex is a SQLite database holding the chunk catalog and an FTS5
// table of pre-tokenized chunk terms ranked with bm25(). It is the source of
// truth for chunk metadata: other indexes resolve ids through Documents.
type TermIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	stop   map[string]struct{}
	closed bool
}

var (
	_ TextIndex      = (*TermIndex)(nil)
	_ DocumentSource = (*TermIndex)(nil)
)

const termSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	path        TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	start_line  INTEGER NOT NULL,
	end_line    INTEGER NOT NULL,
	content     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);

-- terms holds identifier-split tokens, space separated
CREATE VIRTUAL TABLE IF NOT EXISTS fts_terms USING fts5(
	doc_id UNINDEXED,
	terms,
	tokenize='unicode61'
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// NewTermIndex opens the database at path, creating it if needed. An empty
// path opens an in-memory database.
func NewTermIndex(path string) (*TermIndex, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		if verr := checkTermIntegrity(path); verr != nil {
			slog.Warn("termfreq_index_corrupted",
				slog.String("path", path),
				slog.String("error", verr.Error()))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("remove corrupt index %s: %w (cause: %v)", path, err, verr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: a single writer, and an in-memory database must not
	// be split across connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(termSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &TermIndex{db: db, path: path, stop: StopWordSet(DefaultStopWords)}, nil
}

func checkTermIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name IN ('chunks', 'fts_terms')`).Scan(&n)
	if err != nil {
		return fmt.Errorf("query schema: %w", err)
	}
	if n != 2 {
		return fmt.Errorf("schema incomplete: %d of 2 tables", n)
	}
	return nil
}

func (t *TermIndex) terms(text string) []string {
	return withoutStopWords(Tokenize(text), t.stop)
}

// Index adds or replaces documents in one transaction.
func (t *TermIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 tables do not support REPLACE.
	delTerms, err := tx.PrepareContext(ctx, `DELETE FROM fts_terms WHERE doc_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer delTerms.Close()

	insTerms, err := tx.PrepareContext(ctx, `INSERT INTO fts_terms(doc_id, terms) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare terms insert: %w", err)
	}
	defer insTerms.Close()

	insChunk, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunks(id, path, chunk_index, start_line, end_line, content) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer insChunk.Close()

	for _, d := range docs {
		if _, err := delTerms.ExecContext(ctx, d.ID); err != nil {
			return fmt.Errorf("delete terms of %s: %w", d.ID, err)
		}
		if _, err := insTerms.ExecContext(ctx, d.ID, strings.Join(t.terms(d.Content), " ")); err != nil {
			return fmt.Errorf("index terms of %s: %w", d.ID, err)
		}
		if _, err := insChunk.ExecContext(ctx, d.ID, d.Path, d.ChunkIndex, d.StartLine, d.EndLine, d.Content); err != nil {
			return fmt.Errorf("catalog %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// Search ranks chunks containing any query term by bm25. Scores are negated
// so higher is better.
func (t *TermIndex) Search(ctx context.Context, text string, limit int) ([]*TextResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrClosed
	}

	tokens := uniqueTokens(t.terms(text))
	if len(tokens) == 0 || limit <= 0 {
		return []*TextResult{}, nil
	}

	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT c.id, c.path, c.chunk_index, c.start_line, c.end_line, c.content, bm25(fts_terms) AS score
		FROM fts_terms
		JOIN chunks c ON c.id = fts_terms.doc_id
		WHERE fts_terms MATCH ?
		ORDER BY score, c.id
		LIMIT ?`, strings.Join(quoted, " OR "), limit)
	if err != nil {
		return nil, fmt.Errorf("term search: %w", err)
	}
	defer rows.Close()

	out := make([]*TextResult, 0, limit)
	for rows.Next() {
		var d Document
		var score float64
		if err := rows.Scan(&d.ID, &d.Path, &d.ChunkIndex, &d.StartLine, &d.EndLine, &d.Content, &score); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, &TextResult{
			Doc:          &d,
			Score:        -score,
			MatchedTerms: presentTerms(tokens, t.terms(d.Content)),
		})
	}
	return out, rows.Err()
}

func presentTerms(query, doc []string) []string {
	have := make(map[string]struct{}, len(doc))
	for _, d := range doc {
		have[d] = struct{}{}
	}
	var out []string
	for _, q := range query {
		if _, ok := have[q]; ok {
			out = append(out, q)
		}
	}
	return out
}

// DeletePaths removes every chunk of the given files.
func (t *TermIndex) DeletePaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range paths {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fts_terms WHERE doc_id IN (SELECT id FROM chunks WHERE path = ?)`, p); err != nil {
			return fmt.Errorf("delete terms of %s: %w", p, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, p); err != nil {
			return fmt.Errorf("delete chunks of %s: %w", p, err)
		}
	}
	return tx.Commit()
}

// IDsForPaths returns the chunk ids of the given files.
func (t *TermIndex) IDsForPaths(ctx context.Context, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrClosed
	}

	rows, err := t.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE path IN (`+placeholders(len(paths))+`) ORDER BY id`,
		stringArgs(paths)...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Paths returns every cataloged file path, sorted.
func (t *TermIndex) Paths(ctx context.Context) ([]string, error) {
	return t.column(ctx, `SELECT DISTINCT path FROM chunks ORDER BY path`)
}

// AllIDs returns every cataloged chunk id, sorted.
func (t *TermIndex) AllIDs(ctx context.Context) ([]string, error) {
	return t.column(ctx, `SELECT id FROM chunks ORDER BY id`)
}

func (t *TermIndex) column(ctx context.Context, q string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrClosed
	}

	rows, err := t.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan catalog: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Documents resolves ids to documents. Unknown ids are absent from the map.
func (t *TermIndex) Documents(ctx context.Context, ids []string) (map[string]*Document, error) {
	docs := make(map[string]*Document, len(ids))
	if len(ids) == 0 {
		return docs, nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrClosed
	}

	rows, err := t.db.QueryContext(ctx,
		`SELECT id, path, chunk_index, start_line, end_line, content FROM chunks WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Path, &d.ChunkIndex, &d.StartLine, &d.EndLine, &d.Content); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs[d.ID] = &d
	}
	return docs, rows.Err()
}

// Count returns the number of cataloged chunks.
func (t *TermIndex) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return 0
	}
	var n int
	if err := t.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close checkpoints the WAL and closes the database.
func (t *TermIndex) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.path != "" {
		_, _ = t.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return t.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}
