package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/fusesearch/internal/gitignore"
)

// gitignoreCacheSize bounds the number of parsed .gitignore files kept.
const gitignoreCacheSize = 1000

// ErrSkipped is returned by Stat for a file the scanner would not emit.
var ErrSkipped = errors.New("file is not indexable")

// builtinExcludes are never indexed: dependency and build trees, our own
// data directory, lockfiles and files likely to hold secrets.
var builtinExcludes = []string{
	".git/", "node_modules/", "vendor/", "__pycache__/", ".fusesearch/",
	".aws/", ".ssh/",
	"*.min.js", "*.min.css", "package-lock.json", "yarn.lock", "pnpm-lock.yaml", "go.sum",
	".env", ".env.*", "*.pem", "*.key", "*.p12", "*.pfx",
	"*credentials*", "*secrets*", ".netrc", ".npmrc", ".pypirc",
	"id_rsa", "id_dsa", "id_ecdsa", "id_ed25519",
}

// Scanner walks one project root.
type Scanner struct {
	root     string
	opts     Options
	excludes *gitignore.Matcher

	// gitignores caches the matcher of each directory's .gitignore; a nil
	// value records that the directory has none.
	gitignores *lru.Cache[string, *gitignore.Matcher]
	mu         sync.Mutex
}

// New validates opts.Root and compiles the exclude patterns.
func New(opts Options) (*Scanner, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", abs)
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}

	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create gitignore cache: %w", err)
	}

	excludes := gitignore.FromPatterns(builtinExcludes...)
	for _, p := range opts.Exclude {
		excludes.Add(p, "")
	}
	opts.Root = abs

	return &Scanner{root: abs, opts: opts, excludes: excludes, gitignores: cache}, nil
}

// Root returns the absolute project root.
func (s *Scanner) Root() string { return s.root }

// Scan streams indexable files. The channel is closed when the walk ends or
// ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context) <-chan Result {
	results := make(chan Result, 64)
	go func() {
		defer close(results)
		err := filepath.WalkDir(s.root, func(abs string, d fs.DirEntry, err error) error {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			if err != nil {
				return nil // unreadable entries are skipped
			}
			rel, err := s.rel(abs)
			if err != nil || rel == "." {
				return nil
			}

			if d.IsDir() {
				if s.Excluded(rel, true) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 && !s.opts.FollowSymlinks {
				return nil
			}

			f, err := s.file(rel, abs)
			if err != nil {
				return nil
			}
			select {
			case results <- Result{File: f}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			select {
			case results <- Result{Error: err}:
			case <-ctx.Done():
			}
		}
	}()
	return results
}

// Files collects a full scan sorted by path.
func (s *Scanner) Files(ctx context.Context) ([]*File, error) {
	var files []*File
	for r := range s.Scan(ctx) {
		if r.Error != nil {
			return nil, r.Error
		}
		files = append(files, r.File)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Stat returns the file at rel if the scanner would emit it, ErrSkipped if
// it is excluded, binary or too large, or the os error.
func (s *Scanner) Stat(rel string) (*File, error) {
	rel = path.Clean(filepath.ToSlash(rel))
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if s.Excluded(dir, true) {
			return nil, ErrSkipped
		}
	}
	return s.file(rel, filepath.Join(s.root, filepath.FromSlash(rel)))
}

func (s *Scanner) file(rel, abs string) (*File, error) {
	if s.Excluded(rel, false) {
		return nil, ErrSkipped
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.IsDir() || info.Size() > s.opts.MaxFileSize || isBinary(abs) {
		return nil, ErrSkipped
	}
	return &File{
		Path:     rel,
		AbsPath:  abs,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Language: DetectLanguage(rel),
	}, nil
}

// Rel converts an absolute path below the root to the slash-separated
// relative form used in results.
func (s *Scanner) Rel(abs string) (string, bool) {
	rel, err := s.rel(abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "../") || rel == ".." {
		return "", false
	}
	return rel, true
}

func (s *Scanner) rel(abs string) (string, error) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Excluded reports whether rel matches a built-in or configured exclusion
// or, when enabled, a .gitignore rule.
func (s *Scanner) Excluded(rel string, isDir bool) bool {
	if s.excludes.Match(rel, isDir) {
		return true
	}
	return s.opts.RespectGitignore && s.gitignored(rel, isDir)
}

// gitignored consults the .gitignore of the root and of every directory
// between the root and rel.
func (s *Scanner) gitignored(rel string, isDir bool) bool {
	if m := s.matcherFor(""); m != nil && m.Match(rel, isDir) {
		return true
	}
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		base := strings.Join(parts[:i], "/")
		if m := s.matcherFor(base); m != nil && m.Match(rel, isDir) {
			return true
		}
	}
	return false
}

func (s *Scanner) matcherFor(base string) *gitignore.Matcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.gitignores.Get(base); ok {
		return m
	}
	file := filepath.Join(s.root, filepath.FromSlash(base), ".gitignore")
	var m *gitignore.Matcher
	if _, err := os.Stat(file); err == nil {
		m = gitignore.New()
		if err := m.AddFile(file, base); err != nil {
			m = nil
		}
	}
	s.gitignores.Add(base, m)
	return m
}

// InvalidateGitignore drops cached .gitignore rules; call it after a
// .gitignore changes.
func (s *Scanner) InvalidateGitignore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gitignores.Purge()
}

// isBinary looks for a NUL byte in the first 512 bytes.
func isBinary(name string) bool {
	f, err := os.Open(name)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) >= 0
}
