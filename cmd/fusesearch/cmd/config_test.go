package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fusesearch/configs"
	"github.com/Aman-CERP/fusesearch/internal/config"
)

func TestConfigInit_WritesProjectTemplate(t *testing.T) {
	// Given: an empty project
	isolate(t)
	root := t.TempDir()

	// When: running config init
	out, err := run(t, "config", "init", root)

	// Then: the template is written to the project root
	require.NoError(t, err)
	path := filepath.Join(root, ".fusesearch.yaml")
	assert.Contains(t, out, "Created "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, configs.ProjectConfigTemplate, string(data))
}

func TestConfigInit_RefusesToOverwrite(t *testing.T) {
	// Given: a project that already has a config
	isolate(t)
	root := t.TempDir()
	path := filepath.Join(root, ".fusesearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	// When: running config init without --force
	_, err := run(t, "config", "init", root)

	// Then: the existing file is kept
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
	data, _ := os.ReadFile(path)
	assert.Equal(t, "version: 1\n", string(data))

	// When: running with --force
	_, err = run(t, "config", "init", root, "--force")

	// Then: it is replaced
	require.NoError(t, err)
	data, _ = os.ReadFile(path)
	assert.Equal(t, configs.ProjectConfigTemplate, string(data))
}

func TestConfigInit_User(t *testing.T) {
	// Given: an isolated home
	isolate(t)

	// When: writing the user config
	_, err := run(t, "config", "init", "--user")

	// Then: it lands at the user config path
	require.NoError(t, err)
	assert.FileExists(t, config.GetUserConfigPath())
}

func TestConfigShow_JSONReflectsProjectFile(t *testing.T) {
	// Given: a project overriding the default limit
	isolate(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".fusesearch.yaml"), []byte("search:\n  default_limit: 7\n"), 0o644))

	// When: showing the effective config
	out, err := run(t, "config", "show", root, "--json")

	// Then: the override is merged over the defaults
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 7, cfg.Search.DefaultLimit)
	assert.Equal(t, config.NewConfig().Search.MaxLimit, cfg.Search.MaxLimit)
}

func TestConfigShow_YAML(t *testing.T) {
	// Given: a project with no config
	isolate(t)
	root := t.TempDir()

	// When: showing the effective config
	out, err := run(t, "config", "show", root)

	// Then: it is YAML with the top-level sections
	require.NoError(t, err)
	assert.Contains(t, out, "search:")
	assert.Contains(t, out, "backends:")
}

func TestConfigShow_ExplicitFile(t *testing.T) {
	// Given: a config file outside the project
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  capacity: 42\n"), 0o644))

	// When: passing it with --config
	out, err := run(t, "config", "show", t.TempDir(), "--json", "--config", path)

	// Then: it is the one loaded
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 42, cfg.Cache.Capacity)
}

func TestConfigPath(t *testing.T) {
	// Given: an isolated home
	isolate(t)

	// When: printing the user config path
	out, err := run(t, "config", "path")

	// Then: it is the XDG location
	require.NoError(t, err)
	assert.Equal(t, config.GetUserConfigPath(), strings.TrimSpace(out))
}
