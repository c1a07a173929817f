package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MetaVersion is the current meta.json format.
const MetaVersion = 1

// Meta summarizes an index. It is rewritten after every build or update.
type Meta struct {
	Version    int       `json:"version"`
	Root       string    `json:"root"`
	Files      int       `json:"files"`
	Chunks     int       `json:"chunks"`
	ChunkLines int       `json:"chunk_lines"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	IndexedAt  time.Time `json:"indexed_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReadMeta loads meta.json. A missing file returns an error satisfying
// os.IsNotExist.
func ReadMeta(path string) (*Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &m, nil
}

// WriteMeta replaces meta.json through a temp file and rename.
func WriteMeta(path string, m *Meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".meta-*.json")
	if err != nil {
		return fmt.Errorf("create temp meta: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write meta: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close meta: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
