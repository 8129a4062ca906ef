package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/mcpindex/internal/lock"
	"github.com/JakeFAU/mcpindex/internal/orchestrator"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs crawls in the
// foreground. Each source is guarded by a file lock so two processes never
// crawl it at once.
func newCrawlCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "crawl [source]",
		Short: "Crawls one source, or every enabled source with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case all && len(args) > 0:
				return errors.New("pass a source name or --all, not both")
			case !all && len(args) == 0:
				return errors.New("a source name or --all is required")
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if _, err := a.SeedSources(ctx); err != nil {
				return fmt.Errorf("seed sources: %w", err)
			}

			var names []string
			if all {
				sources, err := a.Stores.Sources.ListSources(ctx, true)
				if err != nil {
					return fmt.Errorf("list sources: %w", err)
				}
				for _, src := range sources {
					names = append(names, src.Name)
				}
			} else {
				src, err := a.Stores.Sources.FindByName(ctx, args[0])
				if err != nil {
					return err
				}
				names = []string{src.Name}
			}

			release, err := lockAll(a.Config.Lock.Dir, names)
			if err != nil {
				return err
			}
			defer release()

			var results []orchestrator.Result
			if all {
				results, err = a.Orchestrator.RunAll(ctx)
				if err != nil {
					return err
				}
			} else {
				res, err := a.Orchestrator.RunForSource(ctx, names[0])
				res.Err = err
				results = []orchestrator.Result{res}
			}
			return report(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "crawl every enabled source")
	return cmd
}

// lockAll takes every source lock or none.
func lockAll(dir string, names []string) (func(), error) {
	releases := make([]func(), 0, len(names))
	release := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, name := range names {
		r, err := lock.Acquire(dir, name)
		if err != nil {
			release()
			return nil, err
		}
		releases = append(releases, r)
	}
	return release, nil
}

func report(w io.Writer, results []orchestrator.Result) error {
	var failed []string
	for _, r := range results {
		status := "completed"
		if r.Err != nil {
			status = "failed: " + r.Err.Error()
			failed = append(failed, r.SourceName)
		}
		fmt.Fprintf(w, "%s\tjob=%s\tfound=%d\tadded=%d\tupdated=%d\terrors=%d\t%s\n",
			r.SourceName, r.JobID, r.Stats.Found, r.Stats.Added, r.Stats.Updated, len(r.Stats.Errors), status)
	}
	if len(failed) > 0 {
		return fmt.Errorf("crawl failed for %s", strings.Join(failed, ", "))
	}
	return nil
}
