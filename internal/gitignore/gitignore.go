// Package gitignore matches slash-separated paths against gitignore rules
// (https://git-scm.com/docs/gitignore). The same syntax is used for the
// configured exclude patterns.
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher holds compiled rules. It is safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	re      *regexp.Regexp
	negate  bool
	dirOnly bool
	base    string // directory of the .gitignore that declared the rule
}

// New returns an empty matcher.
func New() *Matcher {
	return &Matcher{}
}

// FromPatterns compiles root-level patterns.
func FromPatterns(patterns ...string) *Matcher {
	m := New()
	for _, p := range patterns {
		m.Add(p, "")
	}
	return m
}

// Add compiles one line of a .gitignore located in directory base ("" for
// the root). Blank lines and comments are ignored.
func (m *Matcher) Add(line, base string) {
	r, ok := compile(line)
	if !ok {
		return
	}
	r.base = strings.Trim(filepath.ToSlash(base), "/")

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFile compiles every line of the .gitignore at path.
func (m *Matcher) AddFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open gitignore: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.Add(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read gitignore: %w", err)
	}
	return nil
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Match reports whether path is ignored. A path inside an ignored directory
// is ignored even if a later rule re-includes it, as in git.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = strings.Trim(filepath.ToSlash(path), "/")
	if path == "" {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := 0; i < len(path); i++ {
		if path[i] == '/' && m.ignored(path[:i], true) {
			return true
		}
	}
	return m.ignored(path, isDir)
}

// ignored applies the rules to a single path; the last matching rule wins.
func (m *Matcher) ignored(path string, isDir bool) bool {
	result := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		rel := path
		if r.base != "" {
			if !strings.HasPrefix(path, r.base+"/") {
				continue
			}
			rel = path[len(r.base)+1:]
		}
		if r.re.MatchString(rel) {
			result = !r.negate
		}
	}
	return result
}

func compile(line string) (rule, bool) {
	// Trailing spaces are dropped unless escaped.
	escapedSpace := strings.HasSuffix(line, `\ `)
	p := strings.TrimRight(line, " \t\r")
	if escapedSpace {
		p = strings.TrimSuffix(p, `\`) + `\ `
	}
	p = strings.TrimLeft(p, " \t")
	if p == "" || strings.HasPrefix(p, "#") {
		return rule{}, false
	}

	var r rule
	switch {
	case strings.HasPrefix(p, "!"):
		r.negate = true
		p = p[1:]
	case strings.HasPrefix(p, `\!`), strings.HasPrefix(p, `\#`):
		p = p[1:]
	}
	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return rule{}, false
	}

	// A slash anywhere but the end anchors the pattern to its base.
	anchored := strings.Contains(p, "/")
	p = strings.TrimPrefix(p, "/")

	expr := globToRegex(p)
	if anchored || strings.HasPrefix(p, "**/") {
		expr = "^" + expr + "$"
	} else {
		expr = "^(?:.*/)?" + expr + "$"
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return rule{}, false
	}
	r.re = re
	return r, true
}

func globToRegex(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch c {
		case '*':
			if i+1 < len(p) && p[i+1] == '*' {
				switch {
				case i+2 < len(p) && p[i+2] == '/':
					b.WriteString("(?:.*/)?")
					i += 2
				default:
					b.WriteString(".*")
					i++
				}
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			j := strings.IndexByte(p[i+1:], ']')
			if j < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := p[i+1 : i+1+j]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += j + 1
		case '\\':
			if i+1 < len(p) {
				i++
				b.WriteString(regexp.QuoteMeta(string(p[i])))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
