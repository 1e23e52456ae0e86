package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gamma-omg/brain-rag/docstore"
	"github.com/gamma-omg/brain-rag/rag"
)

type mockRagService struct {
	mock.Mock
}

func (m *mockRagService) Retrieve(ctx context.Context, question string, k int) (rag.Retrieval, error) {
	args := m.Called(ctx, question, k)
	return args.Get(0).(rag.Retrieval), args.Error(1)
}

func (m *mockRagService) Query(ctx context.Context, req rag.Request) rag.Answer {
	return m.Called(ctx, req).Get(0).(rag.Answer)
}

func (m *mockRagService) IndexCorpus(ctx context.Context, root string) (int, error) {
	args := m.Called(ctx, root)
	return args.Int(0), args.Error(1)
}

func newTestServer(svc ragService) *ragServer {
	return &ragServer{log: slog.New(slog.DiscardHandler), svc: svc, root: "/notes"}
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()

	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}

func Test_handleSearch(t *testing.T) {
	svc := new(mockRagService)
	svc.On("Retrieve", mock.Anything, "apples", 3).Return(rag.Retrieval{
		Matches: []docstore.Match{
			{Text: "apples are red", Distance: 0.1, Meta: docstore.Metadata{Filename: "a.md"}},
			{Text: "pears", Distance: 0.4, Meta: docstore.Metadata{Filename: "p.md"}},
		},
	}, nil)

	res, err := newTestServer(svc).handleSearch(context.Background(), toolRequest(map[string]any{
		"query": "apples",
		"k":     float64(3),
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	lines := strings.Split(strings.TrimSpace(resultText(t, res)), "\n")
	require.Len(t, lines, 2)

	var hit searchHit
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &hit))
	assert.Equal(t, searchHit{Distance: 0.1, File: "a.md", Text: "apples are red"}, hit)
	svc.AssertExpectations(t)
}

func Test_handleSearch_Errors(t *testing.T) {
	svc := new(mockRagService)
	svc.On("Retrieve", mock.Anything, "boom", 0).Return(rag.Retrieval{}, errors.New("store offline"))
	s := newTestServer(svc)

	res, err := s.handleSearch(context.Background(), toolRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleSearch(context.Background(), toolRequest(map[string]any{"query": "boom"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "store offline")
}

func Test_handleAsk(t *testing.T) {
	svc := new(mockRagService)
	svc.On("Query", mock.Anything, rag.Request{Question: "why?", K: 0}).Return(rag.Answer{
		Text:    "Because.",
		Sources: []string{"a.md"},
	})

	res, err := newTestServer(svc).handleAsk(context.Background(), toolRequest(map[string]any{"question": "why?"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Because.\n\n**Sources:**\n- [[a.md]]", resultText(t, res))
}

func Test_handleAsk_Failure(t *testing.T) {
	svc := new(mockRagService)
	svc.On("Query", mock.Anything, mock.Anything).Return(rag.Answer{
		Text: "Error: the embedding service could not process the question",
		Err:  rag.ErrEmbedding,
	})

	res, err := newTestServer(svc).handleAsk(context.Background(), toolRequest(map[string]any{"question": "q"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "embedding service")
}

func Test_handleReindex(t *testing.T) {
	svc := new(mockRagService)
	svc.On("IndexCorpus", mock.Anything, "/notes").Return(12, nil).Once()
	svc.On("IndexCorpus", mock.Anything, "/notes").Return(0, errors.New("db locked")).Once()
	s := newTestServer(svc)

	res, err := s.handleReindex(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "indexed 12 chunks", resultText(t, res))

	res, err = s.handleReindex(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func Test_handleReindex_Busy(t *testing.T) {
	s := newTestServer(new(mockRagService))
	s.reindexing.Lock()
	defer s.reindexing.Unlock()

	res, err := s.handleReindex(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func Test_newRagServer(t *testing.T) {
	rs := newRagServer(new(mockRagService), "/notes", slog.New(slog.DiscardHandler))
	assert.NotNil(t, rs.mcp)
	assert.Equal(t, "/notes", rs.root)
}

func Test_reindex_BlocksToolWhileRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	svc := new(mockRagService)
	svc.On("IndexCorpus", mock.Anything, "/notes").Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(3, nil).Once()
	s := newTestServer(svc)

	done := make(chan error, 1)
	go func() {
		_, err := s.reindex(context.Background())
		done <- err
	}()
	<-started

	res, err := s.handleReindex(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, errReindexBusy.Error(), resultText(t, res))

	_, err = s.reindex(context.Background())
	assert.ErrorIs(t, err, errReindexBusy)

	close(release)
	require.NoError(t, <-done)
	svc.AssertNumberOfCalls(t, "IndexCorpus", 1)
}
