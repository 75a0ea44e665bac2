package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/mechbank/internal/mechanism"
)

// Document is one record read from a file, or the error that prevented it.
type Document struct {
	Path   string
	Record mechanism.Record
	Err    error
}

// IsDocumentFile reports whether path has a supported extension.
func IsDocumentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// FindDocuments returns all document files under dir, sorted for
// deterministic processing.
func FindDocuments(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Skip hidden directories
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsDocumentFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile decodes every record in one file.
func (d *Decoder) ReadFile(path string) ([]mechanism.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return d.Records(path, data, FormatForPath(path))
}

// LoadPaths reads each path, expanding directories, and returns one
// Document per record. A document that fails to parse or decode carries its
// error; the rest of the load continues.
func (d *Decoder) LoadPaths(paths ...string) ([]Document, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := FindDocuments(p)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
		files = append(files, found...)
	}

	var docs []Document
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			docs = append(docs, Document{Path: f, Err: err})
			continue
		}
		fileDocs, err := d.documents(f, data, FormatForPath(f))
		if err != nil {
			docs = append(docs, Document{Path: f, Err: err})
			continue
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}
