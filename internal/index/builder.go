package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/fusesearch/internal/ui"
)

// Result is the outcome of a full build.
type Result struct {
	Files    int
	Chunks   int
	Removed  int // files dropped because they are gone or now excluded
	Warnings int
	Duration time.Duration
	Meta     *Meta
}

// stageTiming tracks the duration of each build stage.
type stageTiming struct {
	scan  time.Duration
	chunk time.Duration
	embed time.Duration
	index time.Duration
}

// Builder rebuilds a project's index from a full scan.
type Builder struct {
	w *writer
}

// NewBuilder validates deps.
func NewBuilder(deps Dependencies) (*Builder, error) {
	w, err := newWriter(deps)
	if err != nil {
		return nil, err
	}
	return &Builder{w: w}, nil
}

// Build scans the project, re-chunks and re-embeds every file and drops
// files no longer present. It fails with ERR_202_INDEX_LOCKED when another
// writer holds the index lock.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	w := b.w
	release, err := w.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	var timing stageTiming

	// Stage 1: scan
	w.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: fmt.Sprintf("Scanning %s...", w.scanner.Root()),
	})
	w.logger.Info("index_scan_started", slog.String("path", w.scanner.Root()))
	scanStart := time.Now()
	files, err := w.scanner.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	timing.scan = time.Since(scanStart)
	w.logger.Info("index_scan_complete", slog.Int("files", len(files)))

	// Stage 2: chunk
	chunkStart := time.Now()
	docs, warns, err := w.chunkFiles(ctx, files, true)
	if err != nil {
		return nil, err
	}
	timing.chunk = time.Since(chunkStart)

	// Stage 3: embed
	embedStart := time.Now()
	vectors, err := w.embed(ctx, docs, true)
	if err != nil {
		return nil, err
	}
	timing.embed = time.Since(embedStart)

	// Stage 4: replace the indexed content
	w.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageIndexing, Message: "Building search indices..."})
	indexStart := time.Now()
	indexed, err := w.stores.Terms.Paths(ctx)
	if err != nil {
		return nil, err
	}
	scanned := make(map[string]bool, len(files))
	for _, f := range files {
		scanned[f.Path] = true
	}
	removed := 0
	for _, p := range indexed {
		if !scanned[p] {
			removed++
		}
	}

	if err := w.remove(ctx, append(indexed, pathsOf(files)...)); err != nil {
		return nil, err
	}
	if err := w.stores.Vectors.Reset(); err != nil {
		return nil, fmt.Errorf("reset vector store: %w", err)
	}
	if err := w.write(ctx, docs, vectors); err != nil {
		return nil, err
	}
	meta, err := w.persist(ctx, true)
	if err != nil {
		return nil, err
	}
	timing.index = time.Since(indexStart)

	duration := time.Since(start)
	w.renderer.Complete(ui.CompletionStats{
		Files:    len(files),
		Chunks:   len(docs),
		Duration: duration,
		Warnings: warns,
		Stages: ui.StageTimings{
			Scan:  timing.scan,
			Chunk: timing.chunk,
			Embed: timing.embed,
			Index: timing.index,
		},
		Embedder: ui.EmbedderInfo{
			Model:      w.embedder.ModelName(),
			Dimensions: w.embedder.Dimensions(),
		},
	})

	w.logger.Info("index_complete",
		slog.Int("files", len(files)),
		slog.Int("chunks", len(docs)),
		slog.Int("removed", removed),
		slog.Int64("duration_total_ms", duration.Milliseconds()),
		slog.Int64("duration_scan_ms", timing.scan.Milliseconds()),
		slog.Int64("duration_chunk_ms", timing.chunk.Milliseconds()),
		slog.Int64("duration_embed_ms", timing.embed.Milliseconds()),
		slog.Int64("duration_index_ms", timing.index.Milliseconds()),
		slog.String("embedder_model", w.embedder.ModelName()),
		slog.String("path", w.scanner.Root()))

	return &Result{
		Files:    len(files),
		Chunks:   len(docs),
		Removed:  removed,
		Warnings: warns,
		Duration: duration,
		Meta:     meta,
	}, nil
}
