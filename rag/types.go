// Package rag keeps a vector index in sync with a document tree and answers
// questions from the indexed passages.
package rag

import (
	"context"
	"time"
)

// Document is one file selected by a scan. Name is the slash-separated path
// relative to the scanned root and is the key chunks are stored under.
type Document struct {
	Path        string
	Name        string
	Raw         []byte
	Fingerprint string
	ModTime     time.Time
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type TextReader interface {
	ReadText(path string, raw []byte) (string, error)
}
