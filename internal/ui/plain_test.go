package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlainRenderer_ProgressWithTotal(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: reporting per-file progress
	r.UpdateProgress(ProgressEvent{Stage: StageChunking, Current: 50, Total: 100, CurrentFile: "src/main.go"})

	// Then: one tagged line is written
	assert.Equal(t, "[CHUNK] 50/100 - src/main.go\n", buf.String())
}

func TestPlainRenderer_ProgressMessageWinsOverFile(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{Stage: StageScanning, Message: "Scanning /src...", CurrentFile: "x.go"})

	assert.Equal(t, "[SCAN] Scanning /src...\n", buf.String())
}

func TestPlainRenderer_ProgressCountOnly(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{Stage: StageEmbedding, Current: 32, Total: 64})

	assert.Equal(t, "[EMBED] 32/64\n", buf.String())
}

func TestPlainRenderer_EmptyEventWritesNothing(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{Stage: StageIndexing})

	assert.Empty(t, buf.String())
}

func TestPlainRenderer_Errors(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: adding a warning and an error
	r.AddError(ErrorEvent{File: "a.go", Err: errors.New("permission denied"), IsWarn: true})
	r.AddError(ErrorEvent{Err: errors.New("disk full")})

	// Then: both are prefixed by severity
	assert.Equal(t, "WARN: a.go: permission denied\nERROR: disk full\n", buf.String())
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing with stage timings
	r.Complete(CompletionStats{
		Files:    10,
		Chunks:   40,
		Duration: 2 * time.Second,
		Warnings: 1,
		Stages: StageTimings{
			Scan:  100 * time.Millisecond,
			Chunk: 200 * time.Millisecond,
			Embed: 2 * time.Second,
			Index: 300 * time.Millisecond,
		},
		Embedder: EmbedderInfo{Model: "static-256", Dimensions: 256},
	})

	// Then: the summary, breakdown and embedder are printed
	out := buf.String()
	assert.Contains(t, out, "Complete: 10 files, 40 chunks indexed in 2s (0 errors, 1 warnings)")
	assert.Contains(t, out, "Stage Breakdown:")
	assert.Contains(t, out, "Embed: 2s (40 chunks @ 20.0/sec)")
	assert.Contains(t, out, "Embedder: static-256 (256 dims)")
	assert.NotContains(t, out, "\x1b[")
}

func TestPlainRenderer_CompleteWithoutTimings(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(CompletionStats{Files: 1, Chunks: 1, Duration: time.Second})

	assert.Equal(t, "Complete: 1 files, 1 chunks indexed in 1s\n", buf.String())
}
