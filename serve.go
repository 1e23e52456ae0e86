package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var (
	serveStdio   bool
	serveNoIndex bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server",
	Long: `Run a Model Context Protocol server exposing the search, ask and reindex
tools. The index is synchronized once at startup unless --no-index is set.

By default the server listens for SSE connections on server_addr; --stdio
serves a single client over standard input and output instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		rs := newRagServer(a.engine, cfg.DocRoot, logger)

		if !serveNoIndex {
			go func() {
				if _, err := rs.reindex(ctx); err != nil {
					logger.Error("initial index failed", slog.Any("error", err))
				}
			}()
		}

		if serveStdio {
			return server.ServeStdio(rs.mcp)
		}

		sse := server.NewSSEServer(rs.mcp, server.WithBaseURL(fmt.Sprintf("http://%s", cfg.ServerAddr)))
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = sse.Shutdown(shutdownCtx)
		}()

		logger.Info("mcp server listening", slog.String("addr", cfg.ServerAddr))
		if err := sse.Start(cfg.ServerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "Serve over stdin/stdout instead of SSE")
	serveCmd.Flags().BoolVar(&serveNoIndex, "no-index", false, "Skip the index pass at startup")
	rootCmd.AddCommand(serveCmd)
}
