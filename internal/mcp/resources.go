package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MaxResourceSize is the largest file served as a resource (1MB).
const MaxResourceSize = 1024 * 1024

const (
	statsURI        = "fusesearch://stats"
	fileURIPrefix   = "fusesearch://file/"
	fileURITemplate = fileURIPrefix + "{+path}"
)

// registerResources adds the stats resource and, when a root is set, the
// project file template.
func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "search_stats",
		URI:         statsURI,
		Description: "Backend health, cache counters and query telemetry",
		MIMEType:    "application/json",
	}, s.handleStatsResource)

	if s.root == "" {
		return
	}
	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "project_file",
		URITemplate: fileURITemplate,
		Description: "A file of the searched project, by path relative to its root",
	}, s.handleFileResource)
}

func (s *Server) handleStatsResource(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(s.searchStats(), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: statsURI, MIMEType: "application/json", Text: string(content)}},
	}, nil
}

func (s *Server) handleFileResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, fileURIPrefix) {
		return nil, NewResourceNotFoundError(uri)
	}
	return s.readFile(ctx, strings.TrimPrefix(uri, fileURIPrefix))
}

// readFile returns a project file after path and size checks.
func (s *Server) readFile(_ context.Context, rel string) (*mcp.ReadResourceResult, error) {
	if s.root == "" || !isValidPath(rel) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", rel))
	}

	full := filepath.Join(s.root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{Code: ErrCodeFileNotFound, Message: fmt.Sprintf("file not found: %s", rel)}
		}
		return nil, MapError(err)
	}
	if info.IsDir() {
		return nil, NewInvalidParamsError(fmt.Sprintf("not a file: %s", rel))
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), MaxResourceSize),
		}
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      fileURIPrefix + rel,
			MIMEType: MimeTypeForPath(rel),
			Text:     string(content),
		}},
	}, nil
}

// isValidPath accepts relative, slash separated paths that stay inside the
// root and outside the index directory.
func isValidPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
		return false
	}
	if len(p) >= 2 && p[1] == ':' {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." || part == ".fusesearch" || part == ".git" {
			return false
		}
	}
	return true
}
