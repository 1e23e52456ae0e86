package embedder

import (
	"context"
	"errors"
	"fmt"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	gemini "github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	openai "github.com/amikos-tech/chroma-go/pkg/embeddings/openai"

	"github.com/gamma-omg/brain-rag/apierr"
)

type documentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error)
}

// Function adapts a chroma-go embedding function (OpenAI, Gemini, ...).
type Function struct {
	name string
	docs documentEmbedder
	ef   embeddings.EmbeddingFunction
}

func NewFunction(name string, ef embeddings.EmbeddingFunction) *Function {
	return &Function{name: name, docs: ef, ef: ef}
}

func NewOpenAI(apiKey, model string) (*Function, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key is required")
	}

	var opts []openai.Option
	if model != "" {
		opts = append(opts, openai.WithModel(openai.EmbeddingModel(model)))
	}

	ef, err := openai.NewOpenAIEmbeddingFunction(apiKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI embedding function: %w", err)
	}

	return NewFunction("openai/"+model, ef), nil
}

func NewGemini(apiKey, model string) (*Function, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required")
	}

	opts := []gemini.Option{gemini.WithAPIKey(apiKey)}
	if model != "" {
		opts = append(opts, gemini.WithDefaultModel(embeddings.EmbeddingModel(model)))
	}

	ef, err := gemini.NewGeminiEmbeddingFunction(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	return NewFunction("gemini/"+model, ef), nil
}

func (f *Function) Name() string {
	return f.name
}

// EmbeddingFunction exposes the wrapped function so a Chroma collection can
// be created with it.
func (f *Function) EmbeddingFunction() embeddings.EmbeddingFunction {
	return f.ef
}

func (f *Function) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embs, err := f.docs.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.name, err)
	}
	if len(embs) != len(texts) {
		return nil, apierr.Malformed(f.name, fmt.Errorf("got %d embeddings for %d texts", len(embs), len(texts)))
	}

	res := make([][]float32, len(embs))
	for i, e := range embs {
		if e == nil {
			return nil, apierr.Empty(f.name, fmt.Sprintf("embedding %d missing", i))
		}
		vec := e.ContentAsFloat32()
		if len(vec) == 0 {
			return nil, apierr.Empty(f.name, fmt.Sprintf("embedding %d is empty", i))
		}
		res[i] = vec
	}

	return res, nil
}
