// Package daemon lets CLI commands query a running 'fusesearch serve'
// over a Unix socket. The server keeps the full-text index open, so a
// second process cannot open it; asking the server instead avoids both
// the lock and the cost of loading the index again.
package daemon

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// SocketFile is the socket name inside the data directory.
	SocketFile = "serve.sock"

	// PIDFileName records the process serving the socket.
	PIDFileName = "serve.pid"

	// DefaultTimeout bounds one request, including the search it runs.
	DefaultTimeout = 30 * time.Second
)

// maxSocketPath is the sun_path limit on macOS, the shortest of the
// supported systems.
const maxSocketPath = 103

// Config locates the socket of one project.
type Config struct {
	// SocketPath is the Unix socket the server listens on.
	SocketPath string

	// PIDPath records the serving process.
	PIDPath string

	// Timeout bounds dialing and each request.
	Timeout time.Duration
}

// ConfigFor returns the configuration for the project whose data
// directory is dataDir. Socket paths too long for the OS move to the
// temp directory under a name derived from dataDir.
func ConfigFor(dataDir string) Config {
	socket := filepath.Join(dataDir, SocketFile)
	if len(socket) > maxSocketPath {
		sum := sha256.Sum256([]byte(dataDir))
		socket = filepath.Join(os.TempDir(), fmt.Sprintf("fusesearch-%x.sock", sum[:6]))
	}
	return Config{
		SocketPath: socket,
		PIDPath:    filepath.Join(dataDir, PIDFileName),
		Timeout:    DefaultTimeout,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// EnsureDir creates the directories of the socket and the PID file.
func (c Config) EnsureDir() error {
	for _, dir := range []string{filepath.Dir(c.SocketPath), filepath.Dir(c.PIDPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
