package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/Aman-CERP/fusesearch/internal/chunk"
	"github.com/Aman-CERP/fusesearch/internal/embed"
	"github.com/Aman-CERP/fusesearch/internal/scanner"
	"github.com/Aman-CERP/fusesearch/internal/store"
	"github.com/Aman-CERP/fusesearch/internal/ui"
)

// DefaultEmbedBatchSize is the number of chunks embedded per call.
const DefaultEmbedBatchSize = 32

// Dependencies are shared by Builder and Updater.
type Dependencies struct {
	// Scanner enumerates and filters project files (required).
	Scanner *scanner.Scanner

	// Stores are the indexes written to (required).
	Stores *Stores

	// Embedder produces chunk vectors (required).
	Embedder embed.Embedder

	// Renderer receives progress; nil discards it.
	Renderer ui.Renderer

	// ChunkLines is the chunk size; zero means chunk.DefaultLines.
	ChunkLines int

	// BatchSize is the embedding batch size; zero means DefaultEmbedBatchSize.
	BatchSize int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// writer holds the steps common to full builds and incremental updates.
type writer struct {
	scanner    *scanner.Scanner
	stores     *Stores
	embedder   embed.Embedder
	renderer   ui.Renderer
	chunkLines int
	batchSize  int
	logger     *slog.Logger
	lock       *FileLock // nil for in-memory stores
}

func newWriter(deps Dependencies) (*writer, error) {
	switch {
	case deps.Scanner == nil:
		return nil, fmt.Errorf("scanner is required")
	case deps.Stores == nil:
		return nil, fmt.Errorf("stores are required")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("embedder is required")
	}
	w := &writer{
		scanner:    deps.Scanner,
		stores:     deps.Stores,
		embedder:   deps.Embedder,
		renderer:   deps.Renderer,
		chunkLines: deps.ChunkLines,
		batchSize:  deps.BatchSize,
		logger:     deps.Logger,
	}
	if w.renderer == nil {
		w.renderer = ui.NopRenderer{}
	}
	if w.chunkLines <= 0 {
		w.chunkLines = chunk.DefaultLines
	}
	if w.batchSize <= 0 {
		w.batchSize = DefaultEmbedBatchSize
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if !deps.Stores.Layout.InMemory() {
		w.lock = NewFileLock(deps.Stores.Layout.Lock)
	}
	return w, nil
}

func (w *writer) acquire() (func(), error) {
	if w.lock == nil {
		return func() {}, nil
	}
	if err := w.lock.Acquire(); err != nil {
		return nil, err
	}
	return func() {
		if err := w.lock.Unlock(); err != nil {
			w.logger.Warn("index_unlock_failed", slog.String("error", err.Error()))
		}
	}, nil
}

// chunkFiles reads and chunks files. Unreadable files are reported as
// warnings and skipped.
func (w *writer) chunkFiles(ctx context.Context, files []*scanner.File, progress bool) ([]*store.Document, int, error) {
	var (
		docs  []*store.Document
		warns int
	)
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, warns, err
		}
		if progress {
			w.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageChunking,
				Current:     i + 1,
				Total:       len(files),
				CurrentFile: f.Path,
			})
		}
		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			w.renderer.AddError(ui.ErrorEvent{File: f.Path, Err: fmt.Errorf("failed to read: %w", err), IsWarn: true})
			warns++
			continue
		}
		for _, c := range chunk.Split(f.Path, string(content), w.chunkLines) {
			docs = append(docs, store.DocumentFromChunk(c))
		}
	}
	return docs, warns, nil
}

// embed returns one vector per document, in batches.
func (w *writer) embed(ctx context.Context, docs []*store.Document, progress bool) ([][]float32, error) {
	vectors := make([][]float32, 0, len(docs))
	if progress {
		w.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Total: len(docs)})
	}
	for start := 0; start < len(docs); start += w.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("indexing interrupted at %d/%d chunks: %w", start, len(docs), err)
		}
		end := start + w.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		texts := make([]string, end-start)
		for i, d := range docs[start:end] {
			texts[i] = d.Content
		}
		batch, err := w.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings for batch %d-%d: %w", start, end, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
		if progress {
			w.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: end, Total: len(docs)})
		}
	}
	return vectors, nil
}

// removeBatch bounds the number of paths per delete statement.
const removeBatch = 500

// remove deletes every chunk of paths from all three indexes.
func (w *writer) remove(ctx context.Context, paths []string) error {
	for start := 0; start < len(paths); start += removeBatch {
		end := start + removeBatch
		if end > len(paths) {
			end = len(paths)
		}
		if err := w.removeSome(ctx, paths[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) removeSome(ctx context.Context, paths []string) error {
	ids, err := w.stores.Terms.IDsForPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("look up chunks: %w", err)
	}
	if err := w.stores.Vectors.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := w.stores.FullText.DeletePaths(ctx, paths); err != nil {
		return fmt.Errorf("delete from full-text index: %w", err)
	}
	if err := w.stores.Terms.DeletePaths(ctx, paths); err != nil {
		return fmt.Errorf("delete from term index: %w", err)
	}
	return nil
}

// write adds documents and their vectors to all three indexes.
func (w *writer) write(ctx context.Context, docs []*store.Document, vectors [][]float32) error {
	if len(docs) == 0 {
		return nil
	}
	if err := w.stores.FullText.Index(ctx, docs); err != nil {
		return fmt.Errorf("failed to index in full-text index: %w", err)
	}
	if err := w.stores.Terms.Index(ctx, docs); err != nil {
		return fmt.Errorf("failed to index in term index: %w", err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	if err := w.stores.Vectors.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("failed to add to vector store: %w", err)
	}
	return nil
}

// persist saves the vectors and rewrites meta.json.
func (w *writer) persist(ctx context.Context, built bool) (*Meta, error) {
	if err := w.stores.SaveVectors(); err != nil {
		return nil, fmt.Errorf("failed to save vector store: %w", err)
	}
	paths, err := w.stores.Terms.Paths(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	meta := &Meta{
		Version:    MetaVersion,
		Root:       w.scanner.Root(),
		Files:      len(paths),
		Chunks:     w.stores.Terms.Count(),
		ChunkLines: w.chunkLines,
		Model:      w.embedder.ModelName(),
		Dimensions: w.embedder.Dimensions(),
		IndexedAt:  now,
		UpdatedAt:  now,
	}
	if w.stores.Layout.InMemory() {
		return meta, nil
	}
	if !built {
		if prev, err := ReadMeta(w.stores.Layout.Meta); err == nil {
			meta.IndexedAt = prev.IndexedAt
		}
	}
	if err := WriteMeta(w.stores.Layout.Meta, meta); err != nil {
		return nil, fmt.Errorf("failed to write meta: %w", err)
	}
	return meta, nil
}

func pathsOf(files []*scanner.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
