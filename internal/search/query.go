package search

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	ferrors "github.com/Aman-CERP/fusesearch/internal/errors"
)

// NormalizeQuery trims the query, drops control characters and collapses
// internal whitespace runs to a single space. Empty, malformed or over-long
// input is rejected with InvalidQuery.
func NormalizeQuery(raw string, maxLen int) (string, error) {
	if !utf8.ValidString(raw) {
		return "", ferrors.InvalidQuery("query is not valid UTF-8")
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	normalized := strings.Join(strings.Fields(cleaned), " ")

	if normalized == "" {
		return "", ferrors.InvalidQuery("query is empty").
			WithSuggestion("provide a search term or phrase")
	}
	if maxLen > 0 && utf8.RuneCountInString(normalized) > maxLen {
		return "", ferrors.InvalidQuery("query exceeds " + strconv.Itoa(maxLen) + " characters")
	}
	return normalized, nil
}

// clampLimit applies the default for non-positive limits and caps at max.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}

// dedupeTypes returns the distinct types of ts ordered by priority.
func dedupeTypes(ts []MatchType, priority func(MatchType) int) []MatchType {
	seen := make(map[MatchType]bool, len(ts))
	out := make([]MatchType, 0, len(ts))
	for _, t := range ts {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priority(out[i]), priority(out[j])
		if pi != pj {
			return pi < pj
		}
		return out[i] < out[j]
	})
	return out
}

// CacheKey fingerprints everything that determines a fused result list:
// normalized text, limit and the active backend set.
func CacheKey(q Query) string {
	names := make([]string, len(q.Backends))
	for i, b := range q.Backends {
		names[i] = b.String()
	}
	sort.Strings(names)

	h := sha256.New()
	h.Write([]byte(q.Text))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(q.Limit)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(names, ",")))
	return hex.EncodeToString(h.Sum(nil))
}
