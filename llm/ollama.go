package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gamma-omg/brain-rag/apierr"
)

var _ Client = (*Ollama)(nil)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3"
	DefaultTimeout     = 120 * time.Second
)

type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Ollama generates through /api/chat. Streaming replies arrive as one JSON
// object per line.
type Ollama struct {
	client       *http.Client
	streamClient *http.Client
	baseURL      string
	model        string
	temperature  float64
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
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

	client, streamClient := newHTTPClients(cfg.Timeout)

	return &Ollama{
		client:       client,
		streamClient: streamClient,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		model:        cfg.Model,
		temperature:  cfg.Temperature,
	}
}

func (o *Ollama) Name() string {
	return "ollama/" + o.model
}

func (o *Ollama) Chat(ctx context.Context, msgs []Message) (string, error) {
	resp, err := o.post(ctx, msgs, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var cr ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", apierr.Malformed(o.Name(), err)
	}
	if cr.Error != "" {
		return "", fmt.Errorf("%s: %s", o.Name(), cr.Error)
	}
	if cr.Message.Content == "" {
		return "", apierr.Empty(o.Name(), "reply has no content")
	}

	return cr.Message.Content, nil
}

func (o *Ollama) ChatStream(ctx context.Context, msgs []Message, onToken func(string) error) error {
	resp, err := o.post(ctx, msgs, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := newLineScanner(resp.Body)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var cr ollamaChatResponse
		if err := json.Unmarshal(line, &cr); err != nil {
			return apierr.Malformed(o.Name(), err)
		}
		if cr.Error != "" {
			return fmt.Errorf("%s: %s", o.Name(), cr.Error)
		}
		if cr.Message.Content != "" {
			if err := onToken(cr.Message.Content); err != nil {
				return err
			}
		}
		if cr.Done {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return apierr.Unreachable(o.Name(), err)
	}

	return apierr.Malformed(o.Name(), errors.New("stream ended before done"))
}

func (o *Ollama) post(ctx context.Context, msgs []Message, stream bool) (*http.Response, error) {
	body := ollamaChatRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   stream,
	}
	if o.temperature > 0 {
		body.Options = &ollamaOptions{Temperature: o.temperature}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := o.client
	if stream {
		client = o.streamClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, apierr.Unreachable(o.Name(), err)
	}

	if err := apierr.CheckStatus(o.Name(), resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return resp, nil
}

// Ping checks that the server answers on /api/tags without running a model.
func (o *Ollama) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return apierr.Unreachable(o.Name(), err)
	}
	defer resp.Body.Close()

	return apierr.CheckStatus(o.Name(), resp)
}
