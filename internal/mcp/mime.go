package mcp

import (
	"path/filepath"
	"strings"
)

// fileType is the MIME type and markdown fence language of a file kind.
type fileType struct {
	mime string
	lang string
}

var plainText = fileType{"text/plain", "text"}

var byExtension = map[string]fileType{
	".go":   {"text/x-go", "go"},
	".mod":  {"text/x-go.mod", "text"},
	".sum":  {"text/x-go.sum", "text"},
	".ts":   {"text/typescript", "typescript"},
	".tsx":  {"text/typescript", "tsx"},
	".js":   {"text/javascript", "javascript"},
	".jsx":  {"text/javascript", "jsx"},
	".mjs":  {"text/javascript", "javascript"},
	".py":   {"text/x-python", "python"},
	".rs":   {"text/x-rust", "rust"},
	".java": {"text/x-java", "java"},
	".rb":   {"text/x-ruby", "ruby"},
	".php":  {"text/x-php", "php"},
	".c":    {"text/x-c", "c"},
	".h":    {"text/x-c", "c"},
	".cpp":  {"text/x-c++", "cpp"},
	".hpp":  {"text/x-c++", "cpp"},
	".sh":   {"text/x-sh", "bash"},
	".bash": {"text/x-sh", "bash"},
	".zsh":  {"text/x-sh", "zsh"},
	".sql":  {"text/x-sql", "sql"},
	".html": {"text/html", "html"},
	".htm":  {"text/html", "html"},
	".css":  {"text/css", "css"},
	".scss": {"text/x-scss", "scss"},
	".json": {"application/json", "json"},
	".yaml": {"text/x-yaml", "yaml"},
	".yml":  {"text/x-yaml", "yaml"},
	".toml": {"text/x-toml", "toml"},
	".xml":  {"text/xml", "xml"},
	".md":   {"text/markdown", "markdown"},
	".mdx":  {"text/markdown", "markdown"},
	".rst":  {"text/x-rst", "rst"},
	".txt":  plainText,
}

var byName = map[string]fileType{
	"Dockerfile":     {"text/x-dockerfile", "dockerfile"},
	"Makefile":       {"text/x-makefile", "makefile"},
	"Jenkinsfile":    {"text/x-groovy", "groovy"},
	"Gemfile":        {"text/x-ruby", "ruby"},
	"Rakefile":       {"text/x-ruby", "ruby"},
	"CMakeLists.txt": {"text/x-cmake", "cmake"},
}

func fileTypeForPath(path string) fileType {
	base := filepath.Base(path)
	if ft, ok := byName[base]; ok {
		return ft
	}
	if ft, ok := byExtension[strings.ToLower(filepath.Ext(base))]; ok {
		return ft
	}
	return plainText
}

// MimeTypeForPath returns the MIME type of path, "text/plain" if unknown.
func MimeTypeForPath(path string) string { return fileTypeForPath(path).mime }

// LanguageForPath returns the markdown fence language of path.
func LanguageForPath(path string) string { return fileTypeForPath(path).lang }
