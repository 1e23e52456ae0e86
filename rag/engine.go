package rag

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/gamma-omg/brain-rag/docstore"
	"github.com/gamma-omg/brain-rag/llm"
)

// Resources are the long-lived collaborators of an Engine. The caller builds
// them once and owns their lifecycle.
type Resources struct {
	Store     docstore.Store
	Embedder  Embedder
	Generator llm.Client
	Readers   TextReader
	Logger    *slog.Logger
}

type Options struct {
	ChunkSize       int
	ChunkOverlap    int
	Workers         int
	Results         int
	MaxContextChars int
	Extensions      []string
	Exclude         []string
}

// Engine exposes the two consumer operations: indexing a corpus and querying
// it.
type Engine struct {
	log          *slog.Logger
	indexer      *Indexer
	orchestrator *Orchestrator
}

func NewEngine(res Resources, opts Options) (*Engine, error) {
	if res.Store == nil || res.Embedder == nil || res.Readers == nil {
		return nil, errors.New("store, embedder and readers are required")
	}

	log := orDiscard(res.Logger)

	splitter, err := NewSplitter(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	scanner, err := NewScanner(opts.Extensions, opts.Exclude, log)
	if err != nil {
		return nil, err
	}

	return &Engine{
		log:          log,
		indexer:      NewIndexer(scanner, splitter, res.Embedder, res.Store, res.Readers, opts.Workers, log),
		orchestrator: NewOrchestrator(res.Embedder, res.Store, res.Generator, opts.Results, opts.MaxContextChars, log),
	}, nil
}

// Sync runs one indexing pass and returns its full report.
func (e *Engine) Sync(ctx context.Context, root string) (Report, error) {
	return e.indexer.Sync(ctx, root)
}

// IndexCorpus returns the number of chunks written. An absent corpus root is
// a warned zero-work pass.
func (e *Engine) IndexCorpus(ctx context.Context, root string) (int, error) {
	rep, err := e.indexer.Sync(ctx, root)
	if errors.Is(err, ErrNoCorpus) {
		e.log.Warn("nothing to index", slog.String("root", root), slog.Any("error", err))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("index %s: %w", root, err)
	}

	e.log.Info("index pass finished",
		slog.Int("chunks", rep.Chunks),
		slog.Int("added", len(rep.Added)),
		slog.Int("updated", len(rep.Updated)),
		slog.Int("skipped", len(rep.Skipped)),
		slog.Int("deleted", len(rep.Deleted)),
		slog.Int("failed", len(rep.Failed)))

	return rep.Chunks, nil
}

func (e *Engine) Retrieve(ctx context.Context, question string, k int) (Retrieval, error) {
	return e.orchestrator.Retrieve(ctx, question, k)
}

func (e *Engine) Query(ctx context.Context, req Request) Answer {
	if err := e.requireGenerator(); err != nil {
		return Answer{Text: "Error: " + err.Error(), Err: err}
	}
	return e.orchestrator.Ask(ctx, req)
}

func (e *Engine) QueryStream(ctx context.Context, req Request) iter.Seq[Delta] {
	if err := e.requireGenerator(); err != nil {
		return func(yield func(Delta) bool) {
			yield(Delta{Kind: DeltaError, Text: "Error: " + err.Error(), Err: err})
		}
	}
	return e.orchestrator.Stream(ctx, req)
}

func (e *Engine) requireGenerator() error {
	if e.orchestrator.generator == nil {
		return fmt.Errorf("%w: no generation service configured", ErrGeneration)
	}
	return nil
}
