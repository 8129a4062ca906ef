package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Recomputes the quality score of every indexed entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			results, err := a.Scorer.ScoreAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("score index: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scored %d entries\n", len(results))
			return nil
		},
	}
}
