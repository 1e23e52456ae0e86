package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"github.com/gamma-omg/brain-rag/docstore"
	"github.com/gamma-omg/brain-rag/embedder"
	"github.com/gamma-omg/brain-rag/llm"
	"github.com/gamma-omg/brain-rag/rag"
	"github.com/gamma-omg/brain-rag/readers"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// app owns every long-lived resource built from the config.
type app struct {
	cfg       *Config
	log       *slog.Logger
	store     docstore.Store
	embedder  rag.Embedder
	generator llm.Client
	engine    *rag.Engine

	embedPing pinger
	genPing   pinger
}

func newApp(ctx context.Context, cfg *Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	emb, ef, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	a.embedder = embedder.NewLimited(emb, cfg.Embedder.RequestsPerSecond)
	if p, ok := emb.(pinger); ok {
		a.embedPing = p
	}

	gen, err := buildGenerator(cfg.LLM)
	if err != nil {
		return nil, err
	}
	a.generator = gen
	if p, ok := gen.(pinger); ok {
		a.genPing = p
	}

	store, err := buildStore(ctx, cfg.Store, ef)
	if err != nil {
		return nil, err
	}
	a.store = store

	a.engine, err = rag.NewEngine(rag.Resources{
		Store:     store,
		Embedder:  a.embedder,
		Generator: gen,
		Readers:   readers.Default(true),
		Logger:    log,
	}, cfg.engineOptions())
	if err != nil {
		store.Close()
		return nil, err
	}

	return a, nil
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

type namedEmbedder interface {
	rag.Embedder
	Name() string
}

// buildEmbedder also returns the chroma-go embedding function when the
// provider has one, so a Chroma collection can record it.
func buildEmbedder(cfg EmbedderConfig) (namedEmbedder, embeddings.EmbeddingFunction, error) {
	switch cfg.Provider {
	case providerOpenAI:
		f, err := embedder.NewOpenAI(cfg.OpenAI.ApiKey, cfg.OpenAI.Model)
		if err != nil {
			return nil, nil, err
		}
		return f, f.EmbeddingFunction(), nil
	case providerGemini:
		f, err := embedder.NewGemini(cfg.Gemini.ApiKey, cfg.Gemini.Model)
		if err != nil {
			return nil, nil, err
		}
		return f, f.EmbeddingFunction(), nil
	case providerOllama:
		return embedder.NewOllama(embedder.OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
		}), nil, nil
	default:
		return nil, nil, fmt.Errorf("invalid embeddings provider configuration: %q", cfg.Provider)
	}
}

func buildGenerator(cfg LLMConfig) (llm.Client, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second

	switch cfg.Provider {
	case providerOllama:
		return llm.NewOllama(llm.OllamaConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     timeout,
		}), nil
	case providerOpenAI:
		c, err := llm.NewOpenAI(llm.OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			APIKey:      cfg.ApiKey,
			APIKeyEnv:   cfg.ApiKeyEnv,
			Temperature: cfg.Temperature,
			Timeout:     timeout,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("invalid llm provider configuration: %q", cfg.Provider)
	}
}

func buildStore(ctx context.Context, cfg StoreConfig, ef embeddings.EmbeddingFunction) (docstore.Store, error) {
	switch cfg.Type {
	case storeMemory:
		return docstore.NewMemoryStore(), nil
	case storeSQLite:
		store, err := docstore.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store %s: %w", cfg.Path, err)
		}
		if cfg.Reset {
			if err := resetStore(ctx, store); err != nil {
				store.Close()
				return nil, err
			}
		}
		return store, nil
	case storeChroma:
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		store, err := docstore.NewChromaStore(ctx, docstore.ChromaStoreConfig{
			BaseURL:       cfg.ChromaAddr,
			Collection:    cfg.Collection,
			EmbeddingFunc: ef,
			RequestSize:   cfg.RequestSize,
			Reset:         cfg.Reset,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Chroma doc store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

// resetStore empties a store that has no native drop operation.
func resetStore(ctx context.Context, store docstore.Store) error {
	metas, err := store.ListMetadata(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}

	var errs []error
	for name := range rag.Recorded(metas) {
		if err := store.DeleteWhere(ctx, docstore.FilenameIs(name)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}

	return nil
}
