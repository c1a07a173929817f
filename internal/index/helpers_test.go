package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fusesearch/internal/embed"
	"github.com/Aman-CERP/fusesearch/internal/scanner"
)

const testDims = 32

// testProject is a temporary project with on-disk indexes.
type testProject struct {
	root    string
	scanner *scanner.Scanner
	stores  *Stores
	deps    Dependencies
}

func newTestProject(t *testing.T, files map[string]string) *testProject {
	t.Helper()
	root := t.TempDir()
	p := &testProject{root: root}
	for rel, content := range files {
		p.write(t, rel, content)
	}

	sc, err := scanner.New(scanner.Options{Root: root, RespectGitignore: true})
	require.NoError(t, err)
	stores, err := Open(root, testDims)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })

	p.scanner = sc
	p.stores = stores
	p.deps = Dependencies{
		Scanner:    sc,
		Stores:     stores,
		Embedder:   embed.NewStaticEmbedder(testDims),
		ChunkLines: 5,
	}
	return p
}

func (p *testProject) write(t *testing.T, rel, content string) {
	t.Helper()
	abs := filepath.Join(p.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func (p *testProject) remove(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(p.root, filepath.FromSlash(rel))))
}
