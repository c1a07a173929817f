package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// CodeTokenizerName is the bleve registry name of the identifier-aware tokenizer.
	CodeTokenizerName = "fusesearch_code"
	// CodeStopFilterName is the bleve registry name of the code stop-word filter.
	CodeStopFilterName = "fusesearch_code_stop"
	// CodeAnalyzerName is the analyzer applied to chunk content.
	CodeAnalyzerName = "fusesearch_code_analyzer"

	// phraseBoost favors chunks containing the query terms in order.
	phraseBoost = 2.0
)

func init() {
	_ = registry.RegisterTokenizer(CodeTokenizerName, func(map[string]interface{}, *registry.Cache) (analysis.Tokenizer, error) {
		return codeTokenizer{}, nil
	})
	_ = registry.RegisterTokenFilter(CodeStopFilterName, func(map[string]interface{}, *registry.Cache) (analysis.TokenFilter, error) {
		return codeStopFilter{stop: StopWordSet(DefaultStopWords)}, nil
	})
}

// fullTextDoc is the stored form of a Document.
type fullTextDoc struct {
	Path       string `json:"path"`
	ChunkIndex int    `json:"chunk_index"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Content    string `json:"content"`
}

var storedFields = []string{"path", "chunk_index", "start_line", "end_line", "content"}

// FullTextIndex is a bleve index over chunk content. A query matches its
// terms anywhere in a chunk; chunks containing the terms as a phrase score
// higher. Paths are indexed as keywords so a file's chunks can be dropped
// together.
type FullTextIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	stop   map[string]struct{}
	closed bool
}

// NewFullTextIndex opens the index at path, creating it if needed. An empty
// path creates an in-memory index. A corrupt on-disk index is cleared and
// recreated; it must then be rebuilt.
func NewFullTextIndex(path string) (*FullTextIndex, error) {
	m, err := fullTextMapping()
	if err != nil {
		return nil, fmt.Errorf("build index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = openOrCreate(path, m)
	}
	if err != nil {
		return nil, fmt.Errorf("open full-text index: %w", err)
	}
	return &FullTextIndex{index: idx, path: path, stop: StopWordSet(DefaultStopWords)}, nil
}

func openOrCreate(path string, m mapping.IndexMapping) (bleve.Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	if verr := checkIndexMeta(path); verr != nil {
		slog.Warn("fulltext_index_corrupted",
			slog.String("path", path),
			slog.String("error", verr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("remove corrupt index: %w", err)
		}
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		return bleve.New(path, m)
	}
	if err == bleve.ErrorIndexMetaCorrupt {
		slog.Warn("fulltext_index_corrupted", slog.String("path", path), slog.String("error", err.Error()))
		if rerr := os.RemoveAll(path); rerr != nil {
			return nil, fmt.Errorf("remove corrupt index: %w", rerr)
		}
		return bleve.New(path, m)
	}
	return idx, err
}

// checkIndexMeta verifies an existing index directory has readable metadata.
func checkIndexMeta(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("parse index_meta.json: %w", err)
	}
	return nil
}

func fullTextMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(CodeAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     CodeTokenizerName,
		"token_filters": []string{lowercase.Name, CodeStopFilterName},
	})
	if err != nil {
		return nil, err
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = CodeAnalyzerName
	content.IncludeTermVectors = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("path", bleve.NewKeywordFieldMapping())
	doc.AddFieldMappingsAt("chunk_index", bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt("start_line", bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt("end_line", bleve.NewNumericFieldMapping())

	m.DefaultMapping = doc
	m.DefaultAnalyzer = CodeAnalyzerName
	return m, nil
}

// Index adds or replaces documents in one batch.
func (f *FullTextIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	batch := f.index.NewBatch()
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := batch.Index(d.ID, fullTextDoc{
			Path:       d.Path,
			ChunkIndex: d.ChunkIndex,
			StartLine:  d.StartLine,
			EndLine:    d.EndLine,
			Content:    d.Content,
		})
		if err != nil {
			return fmt.Errorf("index %s: %w", d.ID, err)
		}
	}
	if err := f.index.Batch(batch); err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}
	return nil
}

// Search runs a term match plus a boosted phrase match of text.
func (f *FullTextIndex) Search(ctx context.Context, text string, limit int) ([]*TextResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	if len(withoutStopWords(Tokenize(text), f.stop)) == 0 || limit <= 0 {
		return []*TextResult{}, nil
	}

	terms := bleve.NewMatchQuery(text)
	terms.SetField("content")
	phrase := bleve.NewMatchPhraseQuery(text)
	phrase.SetField("content")
	phrase.SetBoost(phraseBoost)

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(terms, phrase), limit, 0, false)
	req.Fields = storedFields
	req.IncludeLocations = true

	res, err := f.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}

	out := make([]*TextResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, &TextResult{
			Doc:          documentFromHit(hit),
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}
	return out, nil
}

// DeletePaths removes every chunk of the given files.
func (f *FullTextIndex) DeletePaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	byPath := make([]query.Query, 0, len(paths))
	for _, p := range paths {
		q := bleve.NewTermQuery(p)
		q.SetField("path")
		byPath = append(byPath, q)
	}

	total, err := f.index.DocCount()
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(byPath...), int(total), 0, false)
	res, err := f.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("find documents by path: %w", err)
	}

	batch := f.index.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	if err := f.index.Batch(batch); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// AllIDs returns every document id, sorted.
func (f *FullTextIndex) AllIDs(ctx context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}

	total, err := f.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if total == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(total), 0, false)
	res, err := f.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteIDs removes documents by id.
func (f *FullTextIndex) DeleteIDs(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	batch := f.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return f.index.Batch(batch)
}

// Count returns the number of documents.
func (f *FullTextIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return 0
	}
	n, err := f.index.DocCount()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close closes the index. It is safe to call twice.
func (f *FullTextIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.index.Close()
}

var _ TextIndex = (*FullTextIndex)(nil)

func documentFromHit(hit *search.DocumentMatch) *Document {
	d := &Document{ID: hit.ID}
	if v, ok := hit.Fields["path"].(string); ok {
		d.Path = v
	}
	if v, ok := hit.Fields["content"].(string); ok {
		d.Content = v
	}
	d.ChunkIndex = intField(hit.Fields["chunk_index"])
	d.StartLine = intField(hit.Fields["start_line"])
	d.EndLine = intField(hit.Fields["end_line"])
	return d
}

func intField(v interface{}) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}

func matchedTerms(hit *search.DocumentMatch) []string {
	var terms []string
	for term := range hit.Locations["content"] {
		terms = append(terms, term)
	}
	return terms
}

// codeTokenizer adapts Tokenize to bleve. The whole-identifier token shares
// the position of its first part so phrase matching still sees parts as
// adjacent.
type codeTokenizer struct{}

func (codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	spans := tokenSpans(string(input))
	stream := make(analysis.TokenStream, 0, len(spans))

	pos := 0
	for _, s := range spans {
		p := 0
		if s.joined {
			for j := len(stream) - 1; j >= 0 && stream[j].Start >= s.start; j-- {
				p = stream[j].Position
			}
		}
		if p == 0 {
			pos++
			p = pos
		}
		stream = append(stream, &analysis.Token{
			Term:     []byte(s.term),
			Start:    s.start,
			End:      s.end,
			Position: p,
			Type:     analysis.AlphaNumeric,
		})
	}
	return stream
}

type codeStopFilter struct {
	stop map[string]struct{}
}

func (f codeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := input[:0]
	for _, tok := range input {
		if _, ok := f.stop[string(tok.Term)]; !ok {
			out = append(out, tok)
		}
	}
	return out
}
