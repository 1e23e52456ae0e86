// Package embedder turns text into vectors through external embedding services.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gamma-omg/brain-rag/apierr"
)

// Default configuration values.
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "mxbai-embed-large"
	DefaultTimeout     = 30 * time.Second
)

// OllamaConfig holds configuration for the Ollama embedding service.
type OllamaConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model to use (default: mxbai-embed-large).
	Model string

	// Timeout bounds each request (default: 30s).
	Timeout time.Duration
}

// Ollama embeds texts one request at a time through /api/embeddings.
type Ollama struct {
	client  *http.Client
	baseURL string
	model   string
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Ollama{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
	}
}

func (o *Ollama) Name() string {
	return "ollama/" + o.model
}

// Embed returns one vector per text in input order. The first failure aborts
// the whole batch.
func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	res := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := o.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		if len(res) > 0 && len(vec) != len(res[0]) {
			return nil, apierr.Malformed(o.Name(),
				fmt.Errorf("dimension changed from %d to %d", len(res[0]), len(vec)))
		}
		res = append(res, vec)
	}

	return res, nil
}

func (o *Ollama) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, apierr.Unreachable(o.Name(), err)
	}
	defer resp.Body.Close()

	if err := apierr.CheckStatus(o.Name(), resp); err != nil {
		return nil, err
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, apierr.Malformed(o.Name(), err)
	}
	if len(er.Embedding) == 0 {
		return nil, apierr.Empty(o.Name(), "response has no embedding")
	}

	vec := make([]float32, len(er.Embedding))
	for i, v := range er.Embedding {
		vec[i] = float32(v)
	}

	return vec, nil
}

// Ping checks that the server answers on /api/tags without running a model.
func (o *Ollama) Ping(ctx context.Context) error {
	return ping(ctx, o.client, o.baseURL+"/api/tags", o.Name())
}

func ping(ctx context.Context, client *http.Client, url, service string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return apierr.Unreachable(service, err)
	}
	defer resp.Body.Close()

	return apierr.CheckStatus(service, resp)
}
