package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gamma-omg/brain-rag/rag"
)

const serverVersion = "0.1.0"

var errReindexBusy = errors.New("reindex already in progress")

type ragService interface {
	Retrieve(ctx context.Context, question string, k int) (rag.Retrieval, error)
	Query(ctx context.Context, req rag.Request) rag.Answer
	IndexCorpus(ctx context.Context, root string) (int, error)
}

type ragServer struct {
	log  *slog.Logger
	svc  ragService
	root string
	mcp  *server.MCPServer

	// one reindex at a time
	reindexing sync.Mutex
}

type searchHit struct {
	Distance float64 `json:"distance"`
	File     string  `json:"file"`
	Text     string  `json:"text"`
}

func newRagServer(svc ragService, root string, log *slog.Logger) *ragServer {
	rs := &ragServer{log: log, svc: svc, root: root}

	srv := server.NewMCPServer("brain-rag", serverVersion, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Search the user's notes and return the most relevant passages for RAG"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("k",
			mcp.Description("Number of passages to return"),
		),
	), rs.handleSearch)

	srv.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Answer a question using only the user's notes, citing the notes used"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question to answer"),
		),
		mcp.WithNumber("k",
			mcp.Description("Number of passages to retrieve"),
		),
	), rs.handleAsk)

	srv.AddTool(mcp.NewTool("reindex",
		mcp.WithDescription("Synchronize the index with the notes on disk"),
	), rs.handleReindex)

	rs.mcp = srv
	return rs
}

// reindex runs one index pass over root unless another one is in progress.
// The startup pass and the reindex tool share it.
func (rs *ragServer) reindex(ctx context.Context) (int, error) {
	if !rs.reindexing.TryLock() {
		return 0, errReindexBusy
	}
	defer rs.reindexing.Unlock()

	return rs.svc.IndexCorpus(ctx, rs.root)
}

func (rs *ragServer) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := rs.svc.Retrieve(ctx, q, request.GetInt("k", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var sb strings.Builder
	for _, m := range res.Matches {
		raw, err := json.Marshal(searchHit{
			Distance: m.Distance,
			File:     m.Meta.Filename,
			Text:     m.Text,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		sb.Write(raw)
		sb.WriteByte('\n')
	}

	return mcp.NewToolResultText(sb.String()), nil
}

func (rs *ragServer) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ans := rs.svc.Query(ctx, rag.Request{Question: q, K: request.GetInt("k", 0)})
	if ans.Err != nil {
		return mcp.NewToolResultError(ans.Text), nil
	}

	return mcp.NewToolResultText(ans.Text + rag.RenderSources(ans.Sources)), nil
}

func (rs *ragServer) handleReindex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := rs.reindex(ctx)
	if errors.Is(err, errReindexBusy) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		rs.log.Error("reindex failed", slog.Any("error", err))
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("indexed %d chunks", n)), nil
}
