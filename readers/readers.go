// Package readers turns raw document bytes into plain text.
package readers

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Reader interface {
	CanRead(path string) bool
	ReadText(path string, raw []byte) (string, error)
}

// Registry dispatches to the first registered reader that accepts a path.
type Registry struct {
	readers []Reader
}

func NewRegistry(readers ...Reader) *Registry {
	return &Registry{readers: readers}
}

// Default reads markdown and plain text natively and, when withDocuments is
// set, office and PDF files through docconv.
func Default(withDocuments bool) *Registry {
	r := NewRegistry(&TextReader{})
	if withDocuments {
		r.Register(&UniversalReader{})
	}
	return r
}

func (r *Registry) Register(readers ...Reader) {
	r.readers = append(r.readers, readers...)
}

func (r *Registry) CanRead(path string) bool {
	return r.find(path) != nil
}

func (r *Registry) ReadText(path string, raw []byte) (string, error) {
	reader := r.find(path)
	if reader == nil {
		return "", fmt.Errorf("unable to find reader for file type: %s", filepath.Ext(path))
	}

	return reader.ReadText(path, raw)
}

func (r *Registry) find(path string) Reader {
	for _, reader := range r.readers {
		if reader.CanRead(path) {
			return reader
		}
	}
	return nil
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
