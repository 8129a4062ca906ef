package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspects and seeds crawl sources",
	}
	cmd.AddCommand(newSourcesListCmd())
	cmd.AddCommand(newSourcesSeedCmd())
	return cmd
}

func newSourcesListCmd() *cobra.Command {
	var enabledOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Lists configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := a.SeedSources(cmd.Context()); err != nil {
				return fmt.Errorf("seed sources: %w", err)
			}
			sources, err := a.Stores.Sources.ListSources(cmd.Context(), enabledOnly)
			if err != nil {
				return fmt.Errorf("list sources: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tENABLED\tSCHEDULE\tLAST RUN")
			for _, src := range sources {
				lastRun := "never"
				if src.LastRunAt != nil {
					lastRun = src.LastRunAt.UTC().Format("2006-01-02 15:04:05Z")
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", src.Name, src.Type, src.Enabled, src.Schedule, lastRun)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "only list enabled sources")
	return cmd
}

func newSourcesSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upserts sources from a YAML file, or the built-in defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if file != "" {
				a.Config.Sources.File = file
			}
			n, err := a.SeedSources(cmd.Context())
			if err != nil {
				return fmt.Errorf("seed sources: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d sources\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "sources YAML file (overrides sources.file)")
	return cmd
}
