package preflight

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Aman-CERP/fusesearch/internal/async"
	"github.com/Aman-CERP/fusesearch/internal/config"
	ferrors "github.com/Aman-CERP/fusesearch/internal/errors"
	"github.com/Aman-CERP/fusesearch/internal/index"
	"github.com/Aman-CERP/fusesearch/internal/store"
)

// CheckWritePermissions checks that the index directory is writable,
// creating it when missing.
func (c *Checker) CheckWritePermissions(root string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	dir := index.LayoutFor(root).DataDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckConfig loads the project's configuration. The config is nil when
// the check fails.
func (c *Checker) CheckConfig(root string) (CheckResult, *config.Config) {
	result := CheckResult{
		Name:     "config",
		Required: true,
	}
	cfg, err := config.Load(root)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		var fe *ferrors.FuseError
		if errors.As(err, &fe) && fe.Suggestion != "" {
			result.Details = fe.Suggestion
		}
		return result, nil
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d backends enabled", enabledBackends(cfg))
	return result, cfg
}

func enabledBackends(cfg *config.Config) int {
	n := 0
	for _, b := range cfg.Backends {
		if b.IsEnabled() {
			n++
		}
	}
	return n
}

// CheckIndex warns when the project has no index yet, when it was written
// in another format, or when its vectors were built with other dimensions
// than configured.
func (c *Checker) CheckIndex(root string, dimensions int) CheckResult {
	result := CheckResult{Name: "index"}
	layout := index.LayoutFor(root)

	meta, err := index.ReadMeta(layout.Meta)
	if err != nil {
		result.Status = StatusWarn
		if os.IsNotExist(err) {
			result.Message = "not built"
		} else {
			result.Message = fmt.Sprintf("unreadable: %v", err)
		}
		result.Details = "Run 'fusesearch index' to build it"
		return result
	}

	if meta.Version != index.MetaVersion {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("format %d, this build reads %d", meta.Version, index.MetaVersion)
		result.Details = "Run 'fusesearch index' to rebuild it"
		return result
	}

	saved, err := store.ReadHNSWDimensions(layout.Vectors)
	if err == nil && saved != 0 && saved != dimensions {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("vectors have %d dimensions, config wants %d", saved, dimensions)
		result.Details = "Run 'fusesearch index' to re-embed"
		return result
	}

	if async.Interrupted(layout.DataDir) {
		result.Status = StatusWarn
		result.Message = "last background build did not finish"
		result.Details = "'fusesearch serve' resumes it on start, or run 'fusesearch index'"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d files, %d chunks, updated %s", meta.Files, meta.Chunks,
		meta.UpdatedAt.Local().Format(time.DateTime))
	return result
}

// CheckLock warns when another process is writing the index.
func (c *Checker) CheckLock(root string) CheckResult {
	result := CheckResult{Name: "index_lock"}

	lock := index.NewFileLock(index.LayoutFor(root).Lock)
	ok, err := lock.TryLock()
	switch {
	case err != nil:
		result.Status = StatusWarn
		result.Message = err.Error()
	case !ok:
		result.Status = StatusWarn
		result.Message = "held by another process"
		result.Details = "An index or serve process is running; writes will wait for it"
	default:
		_ = lock.Unlock()
		result.Status = StatusPass
		result.Message = "free"
	}
	return result
}
