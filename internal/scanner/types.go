// Package scanner discovers the text files of a project that are indexed
// and searched, honoring .gitignore files and configured exclude patterns.
package scanner

import (
	"path"
	"strings"
	"time"
)

// File is a discovered file.
type File struct {
	Path     string // relative to the root, slash separated
	AbsPath  string
	Size     int64
	ModTime  time.Time
	Language string
}

// Options configures a scan.
type Options struct {
	// Root is the project directory.
	Root string

	// Exclude holds gitignore-style patterns applied in addition to the
	// built-in exclusions.
	Exclude []string

	// RespectGitignore applies every .gitignore below Root.
	RespectGitignore bool

	// MaxFileSize skips larger files (0 means DefaultMaxFileSize).
	MaxFileSize int64

	// FollowSymlinks includes symlinked files.
	FollowSymlinks bool
}

// Result is one item of a scan stream: a file or a walk error.
type Result struct {
	File  *File
	Error error
}

// DefaultMaxFileSize is the default size limit (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

var languages = map[string]string{
	".go": "go", ".js": "javascript", ".jsx": "javascript", ".mjs": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".py": "python", ".rb": "ruby",
	".rs": "rust", ".java": "java", ".kt": "kotlin", ".c": "c", ".h": "c",
	".cpp": "cpp", ".cc": "cpp", ".hpp": "cpp", ".cs": "csharp", ".swift": "swift",
	".php": "php", ".scala": "scala", ".ex": "elixir", ".exs": "elixir",
	".lua": "lua", ".sql": "sql", ".sh": "shell", ".bash": "shell", ".zsh": "shell",
	".html": "html", ".css": "css", ".scss": "scss", ".vue": "vue", ".svelte": "svelte",
	".proto": "protobuf", ".graphql": "graphql",
	".json": "json", ".yaml": "yaml", ".yml": "yaml", ".toml": "toml", ".xml": "xml",
	".ini": "ini", ".md": "markdown", ".mdx": "markdown", ".rst": "rst", ".txt": "text",
	"Dockerfile": "dockerfile", "Makefile": "makefile", "makefile": "makefile",
}

// DetectLanguage guesses a file's language from its name; "" if unknown.
func DetectLanguage(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if lang, ok := languages[base]; ok {
		return lang
	}
	return languages[path.Ext(base)]
}
