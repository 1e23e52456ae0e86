package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gamma-omg/brain-rag/apierr"
	"github.com/gamma-omg/brain-rag/rag"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the embedding service, the LLM and the store are reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		failed := 0
		report := func(what string, err error) {
			if err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %-10s %s (%s)\n", what, err, apierr.Kind(err))
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK    %s\n", what)
		}

		if a.embedPing != nil {
			report("embedder", a.embedPing.Ping(ctx))
		} else {
			_, err := a.embedder.Embed(ctx, []string{"ping"})
			report("embedder", err)
		}

		if a.genPing != nil {
			report("llm", a.genPing.Ping(ctx))
		}

		metas, err := a.store.ListMetadata(ctx)
		report("store", err)
		if err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "      %d chunks from %d documents\n", len(metas), len(rag.Recorded(metas)))
		}

		if failed > 0 {
			return fmt.Errorf("%d checks failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
