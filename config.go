package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gamma-omg/brain-rag/docstore"
	"github.com/gamma-omg/brain-rag/embedder"
	"github.com/gamma-omg/brain-rag/llm"
	"github.com/gamma-omg/brain-rag/rag"
)

const (
	storeSQLite = "sqlite"
	storeChroma = "chroma"
	storeMemory = "memory"

	providerOllama = "ollama"
	providerOpenAI = "openai"
	providerGemini = "gemini"
)

type ProviderKey struct {
	Model  string `yaml:"model"`
	ApiKey string `yaml:"api_key"`
}

type StoreConfig struct {
	Type        string `yaml:"type"`
	Path        string `yaml:"path"`
	ChromaAddr  string `yaml:"chroma_addr"`
	Collection  string `yaml:"collection"`
	RequestSize int    `yaml:"request_size"`
	Reset       bool   `yaml:"reset"`
}

type EmbedderConfig struct {
	Provider          string       `yaml:"provider"`
	Model             string       `yaml:"model"`
	BaseURL           string       `yaml:"base_url"`
	TimeoutSecs       int          `yaml:"timeout_secs"`
	RequestsPerSecond float64      `yaml:"requests_per_second"`
	OpenAI            *ProviderKey `yaml:"open_ai"`
	Gemini            *ProviderKey `yaml:"gemini"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	ApiKey      string  `yaml:"api_key"`
	ApiKeyEnv   string  `yaml:"api_key_env"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	Temperature float64 `yaml:"temperature"`
}

type Config struct {
	LogFile         string         `yaml:"log"`
	DocRoot         string         `yaml:"doc_root"`
	Extensions      []string       `yaml:"extensions"`
	Exclude         []string       `yaml:"exclude"`
	ChunkSize       int            `yaml:"chunk_size"`
	ChunkOverlap    int            `yaml:"chunk_overlap"`
	Workers         int            `yaml:"workers"`
	Results         int            `yaml:"results"`
	MaxContextChars int            `yaml:"max_context_chars"`
	ServerAddr      string         `yaml:"server_addr"`
	Store           StoreConfig    `yaml:"store"`
	Embedder        EmbedderConfig `yaml:"embedder"`
	LLM             LLMConfig      `yaml:"llm"`
}

func defaultConfig() *Config {
	return &Config{
		DocRoot:         ".",
		Extensions:      slices.Clone(rag.DefaultExtensions),
		ChunkSize:       1000,
		ChunkOverlap:    200,
		Workers:         rag.DefaultWorkers,
		Results:         rag.DefaultResults,
		MaxContextChars: rag.DefaultMaxContextChars,
		ServerAddr:      "localhost:8080",
		Store: StoreConfig{
			Type:        storeSQLite,
			Path:        ".brain-rag/index.db",
			ChromaAddr:  "http://localhost:8000",
			Collection:  docstore.DefaultCollection,
			RequestSize: docstore.DefaultRequestSize,
		},
		Embedder: EmbedderConfig{
			Model:       embedder.DefaultOllamaModel,
			BaseURL:     embedder.DefaultOllamaURL,
			TimeoutSecs: 30,
		},
		LLM: LLMConfig{
			Provider:    providerOllama,
			TimeoutSecs: 120,
		},
	}
}

// readConfig loads .env, then the YAML file on top of the defaults. A missing
// file is only an error when required is set.
func readConfig(cfgPath string, required bool) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	cfgFile, err := os.Open(cfgPath)
	switch {
	case errors.Is(err, os.ErrNotExist) && !required:
	case err != nil:
		return nil, fmt.Errorf("unable to open config file: %w", err)
	default:
		defer cfgFile.Close()

		dec := yaml.NewDecoder(cfgFile)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("unable to parse config file: %w", err)
		}
	}

	cfg.resolve()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// resolve fills values that depend on other keys or on the environment.
func (c *Config) resolve() {
	if c.Embedder.Provider == "" {
		switch {
		case c.Embedder.OpenAI != nil:
			c.Embedder.Provider = providerOpenAI
		case c.Embedder.Gemini != nil:
			c.Embedder.Provider = providerGemini
		default:
			c.Embedder.Provider = providerOllama
		}
	}

	if k := c.Embedder.OpenAI; k != nil {
		k.ApiKey = keyOrEnv(k.ApiKey, "OPENAI_API_KEY")
	}
	if k := c.Embedder.Gemini; k != nil {
		k.ApiKey = keyOrEnv(k.ApiKey, "GEMINI_API_KEY")
	}

	c.LLM.ApiKey = os.ExpandEnv(c.LLM.ApiKey)
	if c.LLM.Provider == providerOpenAI && c.LLM.ApiKeyEnv == "" {
		c.LLM.ApiKeyEnv = llm.DefaultOpenAIKeyEnv
	}
}

func keyOrEnv(key, env string) string {
	if key = os.ExpandEnv(key); key != "" {
		return key
	}
	return os.Getenv(env)
}

func (c *Config) validate() error {
	var errs []error

	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.ChunkOverlap))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.Results <= 0 {
		errs = append(errs, fmt.Errorf("results must be positive, got %d", c.Results))
	}
	if c.MaxContextChars <= 0 {
		errs = append(errs, fmt.Errorf("max_context_chars must be positive, got %d", c.MaxContextChars))
	}

	switch c.Store.Type {
	case storeSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite store"))
		}
	case storeChroma:
		if c.Store.ChromaAddr == "" {
			errs = append(errs, errors.New("store.chroma_addr is required for the chroma store"))
		}
	case storeMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store.type %q", c.Store.Type))
	}

	switch c.Embedder.Provider {
	case providerOllama:
	case providerOpenAI:
		if c.Embedder.OpenAI == nil || c.Embedder.OpenAI.ApiKey == "" {
			errs = append(errs, errors.New("embedder.open_ai.api_key is required"))
		}
	case providerGemini:
		if c.Embedder.Gemini == nil || c.Embedder.Gemini.ApiKey == "" {
			errs = append(errs, errors.New("embedder.gemini.api_key is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedder.provider %q", c.Embedder.Provider))
	}

	switch c.LLM.Provider {
	case providerOllama, providerOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}

	if c.Embedder.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("embedder.requests_per_second must not be negative"))
	}

	return errors.Join(errs...)
}

func (c *Config) engineOptions() rag.Options {
	exts := make([]string, 0, len(c.Extensions))
	for _, e := range c.Extensions {
		exts = append(exts, strings.TrimSpace(e))
	}

	return rag.Options{
		ChunkSize:       c.ChunkSize,
		ChunkOverlap:    c.ChunkOverlap,
		Workers:         c.Workers,
		Results:         c.Results,
		MaxContextChars: c.MaxContextChars,
		Extensions:      exts,
		Exclude:         c.Exclude,
	}
}
