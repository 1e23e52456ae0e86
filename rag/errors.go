package rag

import "errors"

var (
	// ErrNoCorpus is returned by Scan when the root is unset, missing or not
	// a directory.
	ErrNoCorpus = errors.New("corpus root not found")

	ErrInvalidChunking = errors.New("invalid chunking parameters")
	ErrEmbedding       = errors.New("embedding failed")
	ErrRetrieval       = errors.New("retrieval failed")
	ErrGeneration      = errors.New("generation failed")
)
