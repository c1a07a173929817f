// Package index builds and maintains the on-disk indexes behind the search
// backends: a bleve full-text index, a SQLite term index that also catalogs
// every chunk, and an HNSW vector store. Writers serialize on a file lock.
package index

import "path/filepath"

// DataDirName is the per-project data directory.
const DataDirName = ".fusesearch"

// Layout names the files of a project's index.
type Layout struct {
	Root     string
	DataDir  string
	FullText string // bleve directory
	Terms    string // SQLite database
	Vectors  string // HNSW graph; the id maps live at Vectors+".meta"
	Meta     string
	Lock     string
}

// LayoutFor returns the index layout of the project at root.
func LayoutFor(root string) Layout {
	data := filepath.Join(root, DataDirName)
	return Layout{
		Root:     root,
		DataDir:  data,
		FullText: filepath.Join(data, "fulltext.bleve"),
		Terms:    filepath.Join(data, "terms.db"),
		Vectors:  filepath.Join(data, "vectors.hnsw"),
		Meta:     filepath.Join(data, "meta.json"),
		Lock:     filepath.Join(data, "index.lock"),
	}
}

// InMemory reports whether the layout has no backing files.
func (l Layout) InMemory() bool {
	return l.DataDir == ""
}
