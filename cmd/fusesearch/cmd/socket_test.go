package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fusesearch/internal/async"
	"github.com/Aman-CERP/fusesearch/internal/daemon"
	ferrors "github.com/Aman-CERP/fusesearch/internal/errors"
	"github.com/Aman-CERP/fusesearch/internal/index"
	"github.com/Aman-CERP/fusesearch/pkg/searcher"
)

// serveSocket opens root the way 'fusesearch serve' does and answers on
// its socket until the test ends.
func serveSocket(t *testing.T, root string) *searcher.Engine {
	t.Helper()
	eng, err := searcher.Open(root)
	require.NoError(t, err)

	cfg := daemon.ConfigFor(eng.Stores().Layout.DataDir)
	srv, err := daemon.NewServer(cfg, eng, daemon.WithRoot(root), daemon.WithTelemetry(eng.Telemetry()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("socket server did not stop")
		}
		_ = eng.Close()
	})

	require.Eventually(t, func() bool { return serverClient(root) != nil }, 2*time.Second, 10*time.Millisecond)
	return eng
}

func TestSearchCmd_UsesRunningServer(t *testing.T) {
	// Given: an indexed project held open by a server
	root := indexedProject(t)
	eng := serveSocket(t, root)

	// When: searching from the CLI
	out, err := run(t, "search", "ValidateToken", "--dir", root, "-b", "exact", "--format", "json", "--stats")

	// Then: the server answered, without the CLI opening the index
	require.NoError(t, err)
	var doc searchJSON
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.NotEmpty(t, doc.Results)
	assert.Equal(t, "auth/login.go", doc.Results[0].Path)
	require.NotNil(t, doc.Stats)
	assert.Equal(t, int64(1), doc.Stats.Queries)
	assert.Equal(t, int64(1), eng.Telemetry().Snapshot().Queries)
}

func TestSearchCmd_ServerErrorKeepsCode(t *testing.T) {
	// Given: a running server
	root := indexedProject(t)
	serveSocket(t, root)

	// When: sending a negative timeout, which only the orchestrator rejects
	_, err := run(t, "search", "ValidateToken", "--dir", root, "--timeout", "-1s")

	// Then: the error code survives the socket
	require.Error(t, err)
	assert.Equal(t, ferrors.ErrCodeInvalidQuery, ferrors.GetCode(err))
}

func TestStatusCmd_ReportsServer(t *testing.T) {
	// Given: an indexed project with a running server
	root := indexedProject(t)
	serveSocket(t, root)

	// When: asking for JSON status
	out, err := run(t, "status", root, "--json")

	// Then: the server pid and its breaker states are included
	require.NoError(t, err)
	var doc statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, os.Getpid(), doc.ServerPID)
	for _, b := range doc.Backends {
		if b.Enabled {
			assert.Equal(t, "closed", b.Breaker, b.Name)
		}
	}
}

func TestStatusCmd_ReportsInterruptedBuild(t *testing.T) {
	// Given: an index whose last background build never finished
	root := indexedProject(t)
	marker := filepath.Join(index.LayoutFor(root).DataDir, async.MarkerFile)
	require.NoError(t, os.WriteFile(marker, nil, 0o644))

	// When: printing status
	out, err := run(t, "status", root)

	// Then: the interrupted build is flagged
	require.NoError(t, err)
	assert.Contains(t, out, "interrupted")
}
