package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gamma-omg/brain-rag/rag"
)

var indexCmd = &cobra.Command{
	Use:   "index [root]",
	Short: "Synchronize the index with the document tree",
	Long: `Scan the document root, embed new and changed documents and remove
documents that no longer exist. Unchanged documents are skipped, so running
the command twice in a row does no work the second time.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cfg.DocRoot
		if len(args) == 1 {
			root = args[0]
		}

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.engine.Sync(cmd.Context(), root)
		if errors.Is(err, rag.ErrNoCorpus) {
			logger.Warn("nothing to index", "root", root)
			fmt.Fprintf(cmd.OutOrStdout(), "No documents found at %s\n", root)
			return nil
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Indexed %d chunks (%d added, %d updated, %d unchanged, %d removed)\n",
			rep.Chunks, len(rep.Added), len(rep.Updated), len(rep.Skipped), len(rep.Deleted))
		for _, f := range rep.Failed {
			fmt.Fprintf(out, "  failed: %s: %v\n", f.Name, f.Err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
