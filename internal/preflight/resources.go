package preflight

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/Aman-CERP/fusesearch/internal/ui"
	"github.com/Aman-CERP/fusesearch/internal/watcher"
)

const (
	// MinDiskSpaceBytes is the free space below which indexing is refused.
	MinDiskSpaceBytes = 100 * 1024 * 1024
	// LowDiskSpaceBytes is the free space below which a large index may
	// not fit.
	LowDiskSpaceBytes = 1024 * 1024 * 1024

	// MinFileDescriptors is the smallest descriptor limit accepted.
	MinFileDescriptors = 256
	// fdHeadroom covers the index stores, the socket and clients on top of
	// one descriptor per watched directory.
	fdHeadroom = 128
)

// CheckDiskSpace reports the free space on the filesystem holding root.
func (c *Checker) CheckDiskSpace(root string) CheckResult {
	r := CheckResult{Name: "disk_space", Required: true}

	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		r.Status = StatusFail
		r.Message = "cannot stat filesystem"
		r.Details = err.Error()
		return r
	}

	free := int64(st.Bavail) * int64(st.Bsize) //nolint:gosec // block counts fit in int64
	r.Message = ui.FormatBytes(free) + " free"
	switch {
	case free < MinDiskSpaceBytes:
		r.Status = StatusFail
		r.Details = fmt.Sprintf("At least %s is needed for the index", ui.FormatBytes(MinDiskSpaceBytes))
	case free < LowDiskSpaceBytes:
		r.Status = StatusWarn
		r.Details = "Large repositories may not fit; free some space before indexing them"
	default:
		r.Status = StatusPass
	}
	return r
}

// CheckFileDescriptors compares the open file limit with what watching
// root would take.
func (c *Checker) CheckFileDescriptors(root string) CheckResult {
	r := CheckResult{Name: "file_descriptors", Required: true}

	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		r.Status = StatusFail
		r.Message = "cannot read open file limit"
		r.Details = err.Error()
		return r
	}

	dirs, err := watcher.CountDirs(root)
	if err != nil {
		dirs = 0
	}
	need := max(uint64(dirs)+fdHeadroom, MinFileDescriptors) //nolint:gosec // dirs is never negative

	r.Message = fmt.Sprintf("limit %d, %d directories to watch", lim.Cur, dirs)
	switch {
	case lim.Cur < MinFileDescriptors:
		r.Status = StatusFail
		r.Details = fmt.Sprintf("Run 'ulimit -n %d' before starting fusesearch", need)
	case lim.Cur < need:
		// The watcher falls back to polling when it cannot add a directory.
		r.Status = StatusWarn
		r.Details = fmt.Sprintf("Changes will be polled instead of watched; run 'ulimit -n %d'", need)
	default:
		r.Status = StatusPass
	}
	return r
}
