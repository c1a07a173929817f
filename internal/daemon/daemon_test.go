package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "github.com/Aman-CERP/fusesearch/internal/errors"
	"github.com/Aman-CERP/fusesearch/internal/search"
)

// fakeHandler answers searches from a fixed list.
type fakeHandler struct {
	mu      sync.Mutex
	results []search.FusedResult
	err     error
	queries []string
	opts    []search.SearchOptions
}

func (f *fakeHandler) Search(_ context.Context, q string, opts search.SearchOptions) ([]search.FusedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	f.opts = append(f.opts, opts)
	return f.results, f.err
}

func (f *fakeHandler) BreakerStates() []search.BreakerStatus {
	return []search.BreakerStatus{{Backend: search.MatchSemantic, State: "open", Failures: 3}}
}

func (f *fakeHandler) CacheStats() search.CacheStats {
	return search.CacheStats{Entries: 2, Hits: 5, Misses: 1}
}

// testConfig keeps the socket short: t.TempDir paths can exceed the
// socket path limit on macOS.
func testConfig(t *testing.T) Config {
	t.Helper()
	dir, err := os.MkdirTemp("", "fsd")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return Config{
		SocketPath: filepath.Join(dir, SocketFile),
		PIDPath:    filepath.Join(dir, PIDFileName),
		Timeout:    5 * time.Second,
	}
}

// startServer runs a server until the test ends and waits for its socket.
func startServer(t *testing.T, cfg Config, h Handler, opts ...ServerOption) *Server {
	t.Helper()
	srv, err := NewServer(cfg, h, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	client := NewClient(cfg)
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)
	return srv
}

func sampleResults(n int) []search.FusedResult {
	out := make([]search.FusedResult, n)
	for i := range out {
		out[i] = search.FusedResult{
			Path:       fmt.Sprintf("pkg/file%d.go", i),
			Location:   search.LineLocation(i*10+1, i*10+10),
			Content:    "func Example() {}",
			Score:      1 / float64(i+1),
			MatchTypes: []search.MatchType{search.MatchExact},
			Rank:       i + 1,
		}
	}
	return out
}

var errInvalidQuery = ferrors.New(ferrors.ErrCodeInvalidQuery, "query is empty", nil)
