package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "whitespace", input: "hello world", want: []string{"hello", "world"}},
		{name: "punctuation", input: "foo.bar(baz, qux)", want: []string{"foo", "bar", "baz", "qux"}},
		{name: "camel case", input: "parseHTTPRequest", want: []string{"parse", "http", "request", "parsehttprequest"}},
		{name: "snake case", input: "user_id", want: []string{"user", "id", "userid"}},
		{name: "digits stay with their hump", input: "getValue2", want: []string{"get", "value2", "getvalue2"}},
		{name: "lowercases", input: "QUICK Fox", want: []string{"quick", "fox"}},
		{name: "drops single characters", input: "x = y + 1", want: nil},
		{name: "keeps joined form of short parts", input: "a_b", want: []string{"ab"}},
		{name: "unicode letters", input: "größe café", want: []string{"größe", "café"}},
		{name: "empty", input: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"HTTPServer", []string{"HTTP", "Server"}},
		{"XMLHttpRequest", []string{"XML", "Http", "Request"}},
		{"snake_case_name", []string{"snake", "case", "name"}},
		{"__private", []string{"private"}},
		{"ID", []string{"ID"}},
		{"mixed_camelCase", []string{"mixed", "camel", "Case"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitIdentifier(tt.input))
		})
	}
}

func TestTokenSpans_Offsets(t *testing.T) {
	// Given: an identifier followed by a plain word
	text := "fooBar baz"

	// When: computing spans
	spans := tokenSpans(text)

	// Then: parts carry their byte range and the joined form spans the word
	assert.Equal(t, []tokenSpan{
		{term: "foo", start: 0, end: 3},
		{term: "bar", start: 3, end: 6},
		{term: "foobar", start: 0, end: 6, joined: true},
		{term: "baz", start: 7, end: 10},
	}, spans)
	for _, s := range spans {
		assert.Equal(t, s.term, lowerASCII(text[s.start:s.end]))
	}
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func TestCodeTokenizer_Positions(t *testing.T) {
	// Given: a split identifier and a following word
	stream := codeTokenizer{}.Tokenize([]byte("fooBar baz"))

	// Then: the joined token shares the first part's position
	positions := map[string]int{}
	for _, tok := range stream {
		positions[string(tok.Term)] = tok.Position
	}
	assert.Equal(t, map[string]int{"foo": 1, "bar": 2, "foobar": 1, "baz": 3}, positions)
}

func TestStopWords(t *testing.T) {
	stop := StopWordSet([]string{"The", "func"})

	got := withoutStopWords([]string{"the", "quick", "func", "fox"}, stop)

	assert.Equal(t, []string{"quick", "fox"}, got)
}

func TestUniqueTokens(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, uniqueTokens([]string{"a", "b", "a", "c", "b"}))
}
