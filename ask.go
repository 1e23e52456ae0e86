package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gamma-omg/brain-rag/rag"
)

var (
	askStream bool
	askK      int
)

var askCmd = &cobra.Command{
	Use:   "ask question...",
	Short: "Answer a question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		req := rag.Request{Question: strings.Join(args, " "), K: askK}
		out := cmd.OutOrStdout()

		if !askStream {
			ans := a.engine.Query(cmd.Context(), req)
			fmt.Fprintln(out, ans.Text)
			if ans.Err != nil {
				return ans.Err
			}
			if len(ans.Sources) > 0 {
				fmt.Fprintln(out, strings.TrimPrefix(rag.RenderSources(ans.Sources), "\n"))
			}
			return nil
		}

		for d := range a.engine.QueryStream(cmd.Context(), req) {
			switch d.Kind {
			case rag.DeltaError:
				fmt.Fprintln(out)
				fmt.Fprintln(out, d.Text)
				return d.Err
			default:
				fmt.Fprint(out, d.Text)
			}
		}
		fmt.Fprintln(out)

		return nil
	},
}

func init() {
	askCmd.Flags().BoolVarP(&askStream, "stream", "s", false, "Print the answer as it is generated")
	askCmd.Flags().IntVarP(&askK, "results", "k", 0, "Number of passages to retrieve (default from config)")
	rootCmd.AddCommand(askCmd)
}
