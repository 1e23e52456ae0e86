package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gamma-omg/brain-rag/docstore"
	"github.com/gamma-omg/brain-rag/llm"
	"github.com/gamma-omg/brain-rag/readers"
)

// letterEmbedder maps text to letter frequencies plus a constant component
// so no vector is zero. Texts containing failOn make the call fail.
type letterEmbedder struct {
	mu     sync.Mutex
	calls  int
	texts  int
	failOn string
}

var errEmbedFailed = errors.New("embedding service down")

func (e *letterEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts += len(texts)
	e.mu.Unlock()

	res := make([][]float32, len(texts))
	for i, t := range texts {
		if e.failOn != "" && strings.Contains(t, e.failOn) {
			return nil, errEmbedFailed
		}
		res[i] = letterVector(t)
	}
	return res, nil
}

func letterVector(text string) []float32 {
	vec := make([]float32, 27)
	vec[26] = 1
	for _, r := range strings.ToLower(text) {
		if r < unicode.MaxASCII && r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec
}

type fakeGenerator struct {
	mu     sync.Mutex
	reply  string
	tokens []string
	err    error
	calls  [][]llm.Message
}

func (g *fakeGenerator) record(msgs []llm.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, msgs)
}

func (g *fakeGenerator) Chat(_ context.Context, msgs []llm.Message) (string, error) {
	g.record(msgs)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *fakeGenerator) ChatStream(_ context.Context, msgs []llm.Message, onToken func(string) error) error {
	g.record(msgs)
	for _, t := range g.tokens {
		if err := onToken(t); err != nil {
			return err
		}
	}
	return g.err
}

func (g *fakeGenerator) lastCall() []llm.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.calls) == 0 {
		return nil
	}
	return g.calls[len(g.calls)-1]
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Upsert(ctx context.Context, entries []docstore.Entry) error {
	return m.Called(ctx, entries).Error(0)
}

func (m *mockStore) DeleteWhere(ctx context.Context, filter docstore.Filter) error {
	return m.Called(ctx, filter).Error(0)
}

func (m *mockStore) Query(ctx context.Context, vector []float32, k int) ([]docstore.Match, error) {
	args := m.Called(ctx, vector, k)
	matches, _ := args.Get(0).([]docstore.Match)
	return matches, args.Error(1)
}

func (m *mockStore) ListMetadata(ctx context.Context) ([]docstore.Metadata, error) {
	args := m.Called(ctx)
	metas, _ := args.Get(0).([]docstore.Metadata)
	return metas, args.Error(1)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

func textReaders() *readers.Registry {
	return readers.NewRegistry(&readers.TextReader{})
}

func newTestEngine(t *testing.T, store docstore.Store, emb Embedder, gen llm.Client) *Engine {
	t.Helper()

	e, err := NewEngine(Resources{
		Store:     store,
		Embedder:  emb,
		Generator: gen,
		Readers:   textReaders(),
	}, Options{
		ChunkSize:    1000,
		ChunkOverlap: 100,
		Workers:      4,
	})
	require.NoError(t, err)
	return e
}

func writeFile(t *testing.T, root, name, content string) string {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
