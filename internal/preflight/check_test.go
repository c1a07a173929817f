package preflight

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fusesearch/internal/async"
	"github.com/Aman-CERP/fusesearch/internal/index"
)

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckResult_IsCritical(t *testing.T) {
	tests := []struct {
		name     string
		result   CheckResult
		expected bool
	}{
		{
			name:     "required pass is not critical",
			result:   CheckResult{Status: StatusPass, Required: true},
			expected: false,
		},
		{
			name:     "required fail is critical",
			result:   CheckResult{Status: StatusFail, Required: true},
			expected: true,
		},
		{
			name:     "optional fail is not critical",
			result:   CheckResult{Status: StatusFail, Required: false},
			expected: false,
		},
		{
			name:     "required warn is not critical",
			result:   CheckResult{Status: StatusWarn, Required: true},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsCritical())
		})
	}
}

func TestCheckStatus_MarshalText(t *testing.T) {
	b, err := StatusWarn.MarshalText()

	require.NoError(t, err)
	assert.Equal(t, "warn", string(b))
}

func TestChecker_SummaryStatus(t *testing.T) {
	c := New()
	pass := CheckResult{Status: StatusPass, Required: true}
	warn := CheckResult{Status: StatusWarn}
	optionalFail := CheckResult{Status: StatusFail}
	critical := CheckResult{Status: StatusFail, Required: true}

	assert.Equal(t, "ready", c.SummaryStatus([]CheckResult{pass}))
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus([]CheckResult{pass, warn}))
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus([]CheckResult{pass, optionalFail}))
	assert.Equal(t, "failed", c.SummaryStatus([]CheckResult{warn, critical}))
	assert.True(t, c.HasCriticalFailures([]CheckResult{pass, critical}))
	assert.False(t, c.HasCriticalFailures([]CheckResult{pass, warn, optionalFail}))
}

func TestChecker_CheckWritePermissions(t *testing.T) {
	// Given: a fresh project
	root := t.TempDir()

	// When
	r := New().CheckWritePermissions(root)

	// Then: the index directory exists and holds no probe file
	assert.Equal(t, StatusPass, r.Status)
	entries, err := os.ReadDir(filepath.Join(root, ".fusesearch"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChecker_CheckWritePermissions_ReadOnly(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := t.TempDir()
	require.NoError(t, os.Chmod(root, 0o555))
	t.Cleanup(func() { _ = os.Chmod(root, 0o755) })

	r := New().CheckWritePermissions(root)

	assert.Equal(t, StatusFail, r.Status)
	assert.True(t, r.IsCritical())
}

func TestChecker_CheckConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	t.Run("defaults", func(t *testing.T) {
		r, cfg := New().CheckConfig(t.TempDir())

		assert.Equal(t, StatusPass, r.Status)
		require.NotNil(t, cfg)
		assert.Equal(t, "4 backends enabled", r.Message)
	})

	t.Run("invalid", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, ".fusesearch.yaml"), []byte("logging:\n  level: loud\n"), 0o644))

		r, cfg := New().CheckConfig(root)

		assert.Equal(t, StatusFail, r.Status)
		assert.Nil(t, cfg)
	})
}

func TestChecker_CheckIndex(t *testing.T) {
	t.Run("not built", func(t *testing.T) {
		r := New().CheckIndex(t.TempDir(), 256)

		assert.Equal(t, StatusWarn, r.Status)
		assert.Equal(t, "not built", r.Message)
		assert.False(t, r.IsCritical())
	})

	t.Run("built", func(t *testing.T) {
		root := t.TempDir()
		layout := index.LayoutFor(root)
		require.NoError(t, os.MkdirAll(layout.DataDir, 0o755))
		require.NoError(t, index.WriteMeta(layout.Meta, &index.Meta{
			Version:   index.MetaVersion,
			Files:     3,
			Chunks:    7,
			UpdatedAt: time.Now(),
		}))

		r := New().CheckIndex(root, 256)

		assert.Equal(t, StatusPass, r.Status)
		assert.Contains(t, r.Message, "3 files, 7 chunks")
	})

	t.Run("other format", func(t *testing.T) {
		root := t.TempDir()
		layout := index.LayoutFor(root)
		require.NoError(t, os.MkdirAll(layout.DataDir, 0o755))
		require.NoError(t, index.WriteMeta(layout.Meta, &index.Meta{Version: index.MetaVersion + 1, UpdatedAt: time.Now()}))

		r := New().CheckIndex(root, 256)

		assert.Equal(t, StatusWarn, r.Status)
		assert.Contains(t, r.Message, "this build reads")
	})

	t.Run("interrupted build", func(t *testing.T) {
		root := t.TempDir()
		layout := index.LayoutFor(root)
		require.NoError(t, os.MkdirAll(layout.DataDir, 0o755))
		require.NoError(t, index.WriteMeta(layout.Meta, &index.Meta{Version: index.MetaVersion, UpdatedAt: time.Now()}))
		require.NoError(t, os.WriteFile(filepath.Join(layout.DataDir, async.MarkerFile), nil, 0o644))

		r := New().CheckIndex(root, 256)

		assert.Equal(t, StatusWarn, r.Status)
		assert.Contains(t, r.Message, "did not finish")
	})
}

func TestChecker_CheckLock(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, StatusPass, New().CheckLock(root).Status)

	// Given: another holder of the index lock
	held := index.NewFileLock(index.LayoutFor(root).Lock)
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Unlock()

	// When
	r := New().CheckLock(root)

	// Then
	assert.Equal(t, StatusWarn, r.Status)
	assert.Equal(t, "held by another process", r.Message)
}

func TestChecker_RunAllAndPrint(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	var buf bytes.Buffer
	c := New(WithOutput(&buf), WithVerbose(true), WithNoColor(true))

	results := c.RunAll(context.Background(), t.TempDir())
	c.PrintResults(results)

	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"disk_space", "write_permissions", "file_descriptors", "config", "index", "index_lock"}, names)
	out := buf.String()
	assert.Contains(t, out, "fusesearch system check")
	assert.Contains(t, out, "! index: not built\n")
	assert.Contains(t, out, "  Run 'fusesearch index' to build it\n")
	assert.Contains(t, out, "Ready with ")
}

func TestChecker_CheckResources(t *testing.T) {
	// Given: a project with a few directories
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "api"), 0o755))
	c := New()

	// When
	disk := c.CheckDiskSpace(root)
	fds := c.CheckFileDescriptors(root)

	// Then: both ran and describe what they measured
	assert.Equal(t, "disk_space", disk.Name)
	assert.True(t, disk.Required)
	assert.Contains(t, disk.Message, "free")
	assert.Equal(t, "file_descriptors", fds.Name)
	assert.Contains(t, fds.Message, "3 directories to watch")
}

func TestChecker_CheckDiskSpace_MissingPath(t *testing.T) {
	r := New().CheckDiskSpace(filepath.Join(t.TempDir(), "missing"))

	assert.Equal(t, StatusFail, r.Status)
	assert.True(t, r.IsCritical())
	assert.NotEmpty(t, r.Details)
}

func TestChecker_PrintResults_Verdicts(t *testing.T) {
	tests := []struct {
		name    string
		results []CheckResult
		want    string
	}{
		{
			name:    "all pass",
			results: []CheckResult{{Name: "config", Status: StatusPass, Message: "ok", Details: "hidden"}},
			want:    "fusesearch system check\n\n✓ config: ok\n\n✓ Ready\n",
		},
		{
			name: "one warning",
			results: []CheckResult{
				{Name: "index", Status: StatusWarn, Message: "stale", Details: "rebuild"},
			},
			want: "fusesearch system check\n\n! index: stale\n  rebuild\n\n! Ready with 1 warning\n",
		},
		{
			name: "critical failures",
			results: []CheckResult{
				{Name: "disk_space", Status: StatusFail, Message: "10 MB free", Required: true},
				{Name: "config", Status: StatusFail, Message: "bad", Required: true},
				{Name: "optional", Status: StatusFail, Message: "off"},
			},
			want: "fusesearch system check\n\n✗ disk_space: 10 MB free\n✗ config: bad\n! optional: off\n\n✗ Not ready: 2 required checks failed\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			New(WithOutput(&buf), WithNoColor(true)).PrintResults(tt.results)

			assert.Equal(t, "• "+tt.want, buf.String())
		})
	}
}
