package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gamma-omg/brain-rag/apierr"
)

var _ Client = (*OpenAI)(nil)

const (
	DefaultOpenAIURL    = "https://api.openai.com/v1"
	DefaultOpenAIModel  = "gpt-4o-mini"
	DefaultOpenAIKeyEnv = "OPENAI_API_KEY"
)

// OpenAIConfig works for any OpenAI-compatible /chat/completions endpoint.
// APIKey wins over APIKeyEnv.
type OpenAIConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	APIKeyEnv   string
	Temperature float64
	Timeout     time.Duration
}

type OpenAI struct {
	client       *http.Client
	streamClient *http.Client
	url          string
	apiKey       string
	model        string
	temperature  float64
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *openAIError `json:"error,omitempty"`
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = DefaultOpenAIKeyEnv
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	key := cfg.APIKey
	if key == "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("openai: missing API key (set %s)", cfg.APIKeyEnv)
	}

	client, streamClient := newHTTPClients(cfg.Timeout)

	return &OpenAI{
		client:       client,
		streamClient: streamClient,
		url:          strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:       key,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
	}, nil
}

func (c *OpenAI) Name() string {
	return "openai/" + c.model
}

func (c *OpenAI) Chat(ctx context.Context, msgs []Message) (string, error) {
	resp, err := c.post(ctx, msgs, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var or openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return "", apierr.Malformed(c.Name(), err)
	}
	if or.Error != nil {
		return "", fmt.Errorf("%s: %s", c.Name(), or.Error.Message)
	}
	if len(or.Choices) == 0 || or.Choices[0].Message.Content == "" {
		return "", apierr.Empty(c.Name(), "reply has no content")
	}

	return or.Choices[0].Message.Content, nil
}

// ChatStream reads server-sent events until the [DONE] marker.
func (c *OpenAI) ChatStream(ctx context.Context, msgs []Message, onToken func(string) error) error {
	resp, err := c.post(ctx, msgs, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := newLineScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil
		}

		var or openAIResponse
		if err := json.Unmarshal([]byte(data), &or); err != nil {
			return apierr.Malformed(c.Name(), err)
		}
		if or.Error != nil {
			return fmt.Errorf("%s: %s", c.Name(), or.Error.Message)
		}
		for _, ch := range or.Choices {
			if ch.Delta.Content == "" {
				continue
			}
			if err := onToken(ch.Delta.Content); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return apierr.Unreachable(c.Name(), err)
	}

	return apierr.Malformed(c.Name(), errors.New("stream ended without [DONE]"))
}

func (c *OpenAI) post(ctx context.Context, msgs []Message, stream bool) (*http.Response, error) {
	jsonBody, err := json.Marshal(openAIRequest{
		Model:       c.model,
		Messages:    msgs,
		Stream:      stream,
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	client := c.client
	if stream {
		client = c.streamClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, apierr.Unreachable(c.Name(), err)
	}

	if err := apierr.CheckStatus(c.Name(), resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return resp, nil
}
