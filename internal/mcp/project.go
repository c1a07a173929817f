package mcp

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ProjectInfo identifies the searched project.
type ProjectInfo struct {
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

// ProjectDetector reads project metadata from well-known manifests.
type ProjectDetector struct {
	rootPath string
	logger   *slog.Logger
}

// NewProjectDetector creates a detector for rootPath.
func NewProjectDetector(rootPath string, logger *slog.Logger) *ProjectDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectDetector{rootPath: rootPath, logger: logger}
}

// Detect tries go.mod, package.json, pyproject.toml and Cargo.toml in
// that order and falls back to the directory name.
func (d *ProjectDetector) Detect() *ProjectInfo {
	info := &ProjectInfo{
		RootPath: d.rootPath,
		Name:     filepath.Base(d.rootPath),
		Type:     "unknown",
	}

	detectors := []struct {
		kind   string
		detect func() string
	}{
		{"go", d.detectGoMod},
		{"node", d.detectPackageJSON},
		{"python", d.detectPyproject},
		{"rust", d.detectCargo},
	}
	for _, det := range detectors {
		if name := det.detect(); name != "" {
			info.Name, info.Type = name, det.kind
			break
		}
	}
	d.logger.Debug("project_detected", slog.String("name", info.Name), slog.String("type", info.Type))
	return info
}

// detectGoMod returns the last element of the module path.
func (d *ProjectDetector) detectGoMod() string {
	f, err := os.Open(filepath.Join(d.rootPath, "go.mod"))
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[0] == "module" {
			return path.Base(strings.Trim(fields[1], `"`))
		}
	}
	return ""
}

// detectPackageJSON strips the scope of scoped packages.
func (d *ProjectDetector) detectPackageJSON() string {
	data, err := os.ReadFile(filepath.Join(d.rootPath, "package.json"))
	if err != nil {
		return ""
	}
	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		d.logger.Debug("package_json_invalid", slog.String("error", err.Error()))
		return ""
	}
	if i := strings.LastIndex(pkg.Name, "/"); strings.HasPrefix(pkg.Name, "@") && i > 0 {
		return pkg.Name[i+1:]
	}
	return pkg.Name
}

// detectPyproject reads [project].name, then [tool.poetry].name.
func (d *ProjectDetector) detectPyproject() string {
	var doc struct {
		Project struct {
			Name string `toml:"name"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Name string `toml:"name"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if !d.readTOML("pyproject.toml", &doc) {
		return ""
	}
	if doc.Project.Name != "" {
		return doc.Project.Name
	}
	return doc.Tool.Poetry.Name
}

func (d *ProjectDetector) detectCargo() string {
	var doc struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
	}
	if !d.readTOML("Cargo.toml", &doc) {
		return ""
	}
	return doc.Package.Name
}

func (d *ProjectDetector) readTOML(name string, v any) bool {
	data, err := os.ReadFile(filepath.Join(d.rootPath, name))
	if err != nil {
		return false
	}
	if err := toml.Unmarshal(data, v); err != nil {
		d.logger.Debug("manifest_invalid", slog.String("file", name), slog.String("error", err.Error()))
		return false
	}
	return true
}
