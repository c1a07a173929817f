package mcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectDetector_Detect(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		wantName string
		wantType string
	}{
		{
			name:     "go module",
			files:    map[string]string{"go.mod": "module github.com/test/myapp\n\ngo 1.21\n"},
			wantName: "myapp",
			wantType: "go",
		},
		{
			name:     "node package",
			files:    map[string]string{"package.json": `{"name": "my-node-app", "version": "1.0.0"}`},
			wantName: "my-node-app",
			wantType: "node",
		},
		{
			name:     "scoped node package",
			files:    map[string]string{"package.json": `{"name": "@myorg/my-package"}`},
			wantName: "my-package",
			wantType: "node",
		},
		{
			name:     "pyproject",
			files:    map[string]string{"pyproject.toml": "[project]\nname = \"my-python-app\"\nversion = \"0.1.0\"\n"},
			wantName: "my-python-app",
			wantType: "python",
		},
		{
			name:     "poetry",
			files:    map[string]string{"pyproject.toml": "[tool.poetry]\nname = 'poetry-app'\n"},
			wantName: "poetry-app",
			wantType: "python",
		},
		{
			name:     "cargo",
			files:    map[string]string{"Cargo.toml": "[package]\nname = \"crab\"\nedition = \"2021\"\n"},
			wantName: "crab",
			wantType: "rust",
		},
		{
			name: "go wins over node",
			files: map[string]string{
				"go.mod":       "module github.com/test/go-priority\n",
				"package.json": `{"name": "node-app"}`,
			},
			wantName: "go-priority",
			wantType: "go",
		},
		{
			name: "invalid manifests fall through",
			files: map[string]string{
				"package.json":   "{not json",
				"pyproject.toml": "[project\nname=",
				"Cargo.toml":     "[package]\nname = \"fallback\"\n",
			},
			wantName: "fallback",
			wantType: "rust",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a directory with manifests
			dir := t.TempDir()
			for name, content := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
			}

			// When
			info := NewProjectDetector(dir, nil).Detect()

			// Then
			assert.Equal(t, tt.wantName, info.Name)
			assert.Equal(t, tt.wantType, info.Type)
			assert.Equal(t, dir, info.RootPath)
		})
	}
}

func TestProjectDetector_FallsBackToDirectoryName(t *testing.T) {
	dir := t.TempDir()

	info := NewProjectDetector(dir, nil).Detect()

	assert.Equal(t, filepath.Base(dir), info.Name)
	assert.Equal(t, "unknown", info.Type)
}
