package store

import (
	"regexp"
	"strings"
	"unicode"
)

// wordPattern matches identifier-like runs; punctuation separates words.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// minTokenLen drops single-character noise such as loop variables.
const minTokenLen = 2

// DefaultStopWords are keywords too common in source code to rank on.
var DefaultStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while", "the", "and",
	"err", "ctx", "tmp",
}

// Tokenize splits text into lowercase search terms. Identifiers are broken
// at snake_case underscores and camelCase humps, so "parseHTTPRequest"
// yields parse, http, request. The whole identifier is kept as well when it
// was split, which lets exact identifier queries rank first.
func Tokenize(text string) []string {
	spans := tokenSpans(text)
	tokens := make([]string, len(spans))
	for i, s := range spans {
		tokens[i] = s.term
	}
	return tokens
}

// tokenSpan is a term with its byte range in the source text. joined marks
// the whole-identifier token emitted after its parts.
type tokenSpan struct {
	term       string
	start, end int
	joined     bool
}

func tokenSpans(text string) []tokenSpan {
	var spans []tokenSpan
	for _, loc := range wordPattern.FindAllStringIndex(text, -1) {
		word := text[loc[0]:loc[1]]
		parts := SplitIdentifier(word)

		cursor := 0
		for _, p := range parts {
			i := strings.Index(word[cursor:], p)
			if i < 0 {
				continue
			}
			start := loc[0] + cursor + i
			cursor += i + len(p)
			if lower := strings.ToLower(p); len(lower) >= minTokenLen {
				spans = append(spans, tokenSpan{term: lower, start: start, end: start + len(p)})
			}
		}
		if len(parts) > 1 {
			joined := strings.ToLower(strings.ReplaceAll(word, "_", ""))
			spans = append(spans, tokenSpan{term: joined, start: loc[0], end: loc[1], joined: true})
		}
	}
	return spans
}

// SplitIdentifier splits snake_case and camelCase identifiers.
func SplitIdentifier(word string) []string {
	var out []string
	for _, part := range strings.Split(word, "_") {
		if part != "" {
			out = append(out, splitHumps(part)...)
		}
	}
	return out
}

// splitHumps splits at lower-to-upper transitions and before the last
// capital of an acronym followed by lowercase ("HTTPServer" -> HTTP, Server).
func splitHumps(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
		acronymEnd := unicode.IsUpper(runes[i-1]) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if prevLower || acronymEnd {
			out = append(out, string(runes[start:i]))
			start = i
		}
	}
	return append(out, string(runes[start:]))
}

// StopWordSet builds a lookup set from words.
func StopWordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

// withoutStopWords filters tokens in place.
func withoutStopWords(tokens []string, stop map[string]struct{}) []string {
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := stop[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// uniqueTokens returns tokens without repeats, keeping first occurrences.
func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
