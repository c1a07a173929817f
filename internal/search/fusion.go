package search

import (
	"math"
	"sort"
	"strings"
)

// Fusion merges per-backend match lists into one ranked, deduplicated list.
//
// Matches in the same file whose locations overlap collapse into one result.
// The first match seen (highest priority backend, then highest score) keeps
// its content; every non-exact match adds weight*score to the result and an
// exact match adds a fixed 1.0. Ranking heuristics then scale the summed score:
//   - containment boost when the query text appears in the matched content
//   - position boost when it appears within the first few lines of the chunk
//   - size penalty when every contributing match spans too many lines
//
// Output is sorted by score, ties broken by backend priority, and does not
// depend on map iteration or arrival order.
type Fusion struct {
	weights  map[MatchType]float64
	priority map[MatchType]int
	settings FusionSettings
}

// NewFusion builds a Fusion from the backend table and heuristics in cfg.
func NewFusion(cfg Config) *Fusion {
	f := &Fusion{
		weights:  make(map[MatchType]float64, len(AllMatchTypes)),
		priority: make(map[MatchType]int, len(AllMatchTypes)),
		settings: cfg.Fusion,
	}
	for _, spec := range DefaultConfig().Backends {
		f.weights[spec.Type] = spec.Weight
		f.priority[spec.Type] = spec.Priority
	}
	for _, spec := range cfg.Backends {
		f.weights[spec.Type] = spec.Weight
		f.priority[spec.Type] = spec.Priority
	}
	return f
}

// fusedGroup accumulates every match that landed on one location.
type fusedGroup struct {
	rep      RawMatch
	score    float64
	types    map[MatchType]bool
	contains bool
	early    bool
	minSpan  int
}

// Fuse combines byBackend into at most limit results (limit <= 0 keeps all).
// Empty input yields an empty, non-nil slice.
func (f *Fusion) Fuse(query string, byBackend map[MatchType][]RawMatch, limit int) []FusedResult {
	types := make([]MatchType, 0, len(byBackend))
	for t, ms := range byBackend {
		if len(ms) > 0 {
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		return []FusedResult{}
	}
	sort.Slice(types, func(i, j int) bool { return f.less(types[i], types[j]) })

	needle := strings.ToLower(query)
	byPath := make(map[string][]*fusedGroup)
	var groups []*fusedGroup

	for _, t := range types {
		for _, m := range canonical(byBackend[t]) {
			m.Type = t

			var g *fusedGroup
			for _, existing := range byPath[m.Path] {
				if existing.rep.Location.Overlaps(m.Location) {
					g = existing
					break
				}
			}
			if g == nil {
				g = &fusedGroup{rep: m, types: make(map[MatchType]bool, 2), minSpan: math.MaxInt}
				byPath[m.Path] = append(byPath[m.Path], g)
				groups = append(groups, g)
			}

			g.score += f.contribution(m)
			g.types[t] = true
			f.observe(g, m, needle)
		}
	}

	for _, g := range groups {
		g.score = f.adjust(g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.rep.Type != b.rep.Type {
			return f.less(a.rep.Type, b.rep.Type)
		}
		if a.rep.Path != b.rep.Path {
			return a.rep.Path < b.rep.Path
		}
		if a.rep.Location.StartLine != b.rep.Location.StartLine {
			return a.rep.Location.StartLine < b.rep.Location.StartLine
		}
		return a.rep.Location.ChunkIndex < b.rep.Location.ChunkIndex
	})

	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}

	results := make([]FusedResult, len(groups))
	for i, g := range groups {
		results[i] = FusedResult{
			Path:       g.rep.Path,
			Location:   g.rep.Location,
			Content:    g.rep.Content,
			Window:     g.rep.Window,
			Score:      g.score,
			MatchTypes: f.sortedTypes(g.types),
			Rank:       i + 1,
		}
	}
	return results
}

// contribution is the weighted base score of one match. Exact matches add
// a fixed 1.0 whatever their configured weight.
func (f *Fusion) contribution(m RawMatch) float64 {
	if m.Type == MatchExact {
		return 1.0
	}
	score := m.Score
	if math.IsNaN(score) || score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}
	return score * f.weights[m.Type]
}

// observe records the heuristic signals m brings to g.
func (f *Fusion) observe(g *fusedGroup, m RawMatch, needle string) {
	body := m.Content
	if m.Window != nil && m.Window.Current != "" {
		body = m.Window.Current
	}
	lower := strings.ToLower(body)

	if needle != "" {
		if strings.Contains(lower, needle) || strings.Contains(strings.ToLower(m.Content), needle) {
			g.contains = true
		}
		if strings.Contains(firstLines(lower, f.settings.PositionLines), needle) {
			g.early = true
		}
	}

	span := m.Location.LineCount()
	if span == 0 && m.Window != nil && m.Window.EndLine >= m.Window.StartLine && m.Window.StartLine > 0 {
		span = m.Window.EndLine - m.Window.StartLine + 1
	}
	if span > 0 && span < g.minSpan {
		g.minSpan = span
	}
}

// adjust applies the ranking heuristics to g's summed score.
func (f *Fusion) adjust(g *fusedGroup) float64 {
	score := g.score
	if g.contains && f.settings.ContainmentBoost > 0 {
		score *= f.settings.ContainmentBoost
	}
	if g.early && f.settings.PositionBoost > 0 {
		score *= f.settings.PositionBoost
	}
	if f.settings.SizeThresholdLines > 0 && g.minSpan != math.MaxInt &&
		g.minSpan > f.settings.SizeThresholdLines && f.settings.SizePenalty > 0 {
		score *= f.settings.SizePenalty
	}
	return score
}

func (f *Fusion) less(a, b MatchType) bool {
	pa, pb := f.rank(a), f.rank(b)
	if pa != pb {
		return pa < pb
	}
	return a < b
}

func (f *Fusion) rank(t MatchType) int {
	if p, ok := f.priority[t]; ok {
		return p
	}
	return int(t) + 1000
}

func (f *Fusion) sortedTypes(set map[MatchType]bool) []MatchType {
	out := make([]MatchType, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return f.less(out[i], out[j]) })
	return out
}

// canonical returns a copy of ms in a fixed order: score descending, then
// path, lines, chunk and content.
func canonical(ms []RawMatch) []RawMatch {
	out := make([]RawMatch, len(ms))
	copy(out, ms)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Location.StartLine != b.Location.StartLine {
			return a.Location.StartLine < b.Location.StartLine
		}
		if a.Location.EndLine != b.Location.EndLine {
			return a.Location.EndLine < b.Location.EndLine
		}
		if a.Location.ChunkIndex != b.Location.ChunkIndex {
			return a.Location.ChunkIndex < b.Location.ChunkIndex
		}
		return a.Content < b.Content
	})
	return out
}

// firstLines returns the first n lines of s.
func firstLines(s string, n int) string {
	if n <= 0 {
		return ""
	}
	idx := 0
	for i := 0; i < n; i++ {
		next := strings.IndexByte(s[idx:], '\n')
		if next < 0 {
			return s
		}
		idx += next + 1
	}
	return s[:idx]
}
