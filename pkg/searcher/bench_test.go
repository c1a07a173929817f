package searcher

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fusesearch/internal/search"
)

var (
	benchNouns   = []string{"Account", "Invoice", "Session", "Token", "Quota", "Report", "Cache", "Worker"}
	benchVerbs   = []string{"Validate", "Parse", "Render", "Refresh", "Store", "Fetch", "Merge", "Sync"}
	benchDomains = []string{"billing", "auth", "storage", "metrics", "search", "admin"}
)

const benchGoTemplate = `package %[1]s

import (
	"context"
	"fmt"
)

// %[2]s holds %[1]s state.
type %[2]s struct {
	id   string
	name string
}

// %[3]s%[2]s runs the %[1]s operation.
func (s *%[2]s) %[3]s%[2]s(ctx context.Context, input string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return fmt.Sprintf("%%s handled %%s", s.name, input), nil
}

// Name returns the %[1]s name.
func (s *%[2]s) Name() string {
	return s.name
}
`

const benchDocTemplate = `# %[2]s

The %[1]s module uses %[2]s to %[3]s records before they are stored.
Call %[3]s%[2]s with a context; it fails once the context is done.
`

// writeCorpus fills root with n generated Go and Markdown files. The same
// seed always gives the same corpus.
func writeCorpus(tb testing.TB, root string, n int, seed uint64) {
	tb.Helper()
	rng := rand.New(rand.NewPCG(seed, seed))
	pick := func(pool []string) string { return pool[rng.IntN(len(pool))] }

	for i := range n {
		noun, verb, domain := pick(benchNouns), pick(benchVerbs), pick(benchDomains)
		if i%5 == 4 {
			writeFile(tb, root, fmt.Sprintf("docs/%s/%s_%d.md", domain, noun, i),
				fmt.Sprintf(benchDocTemplate, domain, noun, verb))
			continue
		}
		writeFile(tb, root, fmt.Sprintf("%s/%s_%d.go", domain, noun, i),
			fmt.Sprintf(benchGoTemplate, domain, noun, verb))
	}
}

func openCorpus(b *testing.B, n int) *Engine {
	b.Helper()
	b.Setenv("XDG_CONFIG_HOME", b.TempDir())
	root := b.TempDir()
	writeCorpus(b, root, n, 42)

	eng, err := Open(root, WithConfig(testConfig()))
	require.NoError(b, err)
	b.Cleanup(func() { _ = eng.Close() })
	return eng
}

func BenchmarkBuild(b *testing.B) {
	for _, n := range []int{100, 500} {
		b.Run(fmt.Sprintf("files=%d", n), func(b *testing.B) {
			eng := openCorpus(b, n)
			ctx := context.Background()
			for b.Loop() {
				if _, err := eng.Build(ctx, nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearch(b *testing.B) {
	eng := openCorpus(b, 500)
	ctx := context.Background()
	if _, err := eng.Build(ctx, nil); err != nil {
		b.Fatal(err)
	}

	cases := []struct {
		name string
		opts search.SearchOptions
	}{
		{"all/uncached", search.SearchOptions{NoCache: true}},
		{"all/cached", search.SearchOptions{}},
		{"exact", search.SearchOptions{NoCache: true, Backends: []search.MatchType{search.MatchExact}}},
		{"fulltext", search.SearchOptions{NoCache: true, Backends: []search.MatchType{search.MatchFullText}}},
		{"termfreq", search.SearchOptions{NoCache: true, Backends: []search.MatchType{search.MatchTermFrequency}}},
		{"semantic", search.SearchOptions{NoCache: true, Backends: []search.MatchType{search.MatchSemantic}}},
	}
	for _, c := range cases {
		b.Run(c.name, func(b *testing.B) {
			for b.Loop() {
				if _, err := eng.Search(ctx, "ValidateSession context", c.opts); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func TestBuild_GeneratedCorpus(t *testing.T) {
	// Given: a small generated corpus
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := t.TempDir()
	writeCorpus(t, root, 25, 7)
	eng, err := Open(root, WithConfig(testConfig()))
	require.NoError(t, err)
	defer eng.Close()

	// When
	res, err := eng.Build(context.Background(), nil)

	// Then: every file is indexed and the generated docs are found
	require.NoError(t, err)
	assert.Equal(t, 25, res.Files)
	results, err := eng.Search(context.Background(), "context is done", search.SearchOptions{
		Backends: []search.MatchType{search.MatchExact},
		Limit:    10,
	})
	require.NoError(t, err)
	assert.Len(t, results, 5)
}
