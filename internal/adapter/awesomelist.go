package adapter

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/index"
	"github.com/JakeFAU/mcpindex/internal/policy/ratelimit"
)

var (
	markdownHeading = regexp.MustCompile(`^#{1,3}\s+(.+)`)
	markdownEntry   = regexp.MustCompile(`^\s*[-*]\s+\[([^\]]+)\]\(([^)]+)\)\s*[-–—:]?\s*(.*)`)
)

type listConfig struct {
	URLs []string `mapstructure:"urls"`
}

// listItem is one link parsed out of a curated markdown list.
type listItem struct {
	Name        string
	URL         string
	Description string
	Category    string
}

// AwesomeList parses curated markdown lists.
type AwesomeList struct {
	name   string
	cfg    listConfig
	deps   Deps
	logger *zap.Logger
}

func newAwesomeList(src index.Source, deps Deps) (Adapter, error) {
	var cfg listConfig
	if err := decodeConfig(src.Config, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("urls required")
	}
	return &AwesomeList{
		name:   src.Name,
		cfg:    cfg,
		deps:   deps,
		logger: deps.logger().Named("awesome-list").With(zap.String("source", src.Name)),
	}, nil
}

// Name implements Adapter.
func (a *AwesomeList) Name() string { return a.name }

// Candidates implements Adapter.
func (a *AwesomeList) Candidates(ctx context.Context) iter.Seq2[index.Candidate, error] {
	return func(yield func(index.Candidate, error) bool) {
		seen := make(map[string]struct{})
		var (
			failed  int
			lastErr error
		)
		for _, docURL := range a.cfg.URLs {
			if err := ctx.Err(); err != nil {
				yield(index.Candidate{}, err)
				return
			}
			a.logger.Info("fetching curated list", zap.String("url", docURL))
			markdown, err := a.deps.Fetcher.FetchText(ctx, docURL, a.deps.limiter(ratelimit.UpstreamWeb)...)
			if err != nil {
				if ctx.Err() != nil {
					yield(index.Candidate{}, ctx.Err())
					return
				}
				a.logger.Error("curated list fetch failed", zap.String("url", docURL), zap.Error(err))
				failed++
				lastErr = err
				continue
			}
			items := parseMarkdownList(markdown)
			a.logger.Info("parsed curated list", zap.String("url", docURL), zap.Int("count", len(items)))
			for _, item := range items {
				candidate := listCandidate(item, docURL)
				if _, dup := seen[candidate.Entry.Slug]; dup {
					continue
				}
				seen[candidate.Entry.Slug] = struct{}{}
				if !yield(candidate, nil) {
					return
				}
			}
		}
		if failed == len(a.cfg.URLs) {
			yield(index.Candidate{}, fmt.Errorf("all %d curated lists failed: %w", failed, lastErr))
		}
	}
}

// parseMarkdownList extracts linked entries under their nearest heading.
func parseMarkdownList(markdown string) []listItem {
	var (
		items    []listItem
		category string
	)
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimRight(line, "\r")
		if m := markdownHeading.FindStringSubmatch(line); m != nil {
			category = strings.TrimSpace(m[1])
			continue
		}
		m := markdownEntry.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		link := strings.TrimSpace(m[2])
		if !containsAny(link, "github.com", "npmjs.com", "gitlab.com") {
			continue
		}
		items = append(items, listItem{
			Name:        strings.TrimSpace(m[1]),
			URL:         link,
			Description: strings.TrimSpace(m[3]),
			Category:    category,
		})
	}
	return items
}

func listCandidate(item listItem, docURL string) index.Candidate {
	owner, repo, isGitHub := parseGitHubRepo(item.URL)
	slug := Slugify(item.Name)
	if isGitHub {
		slug = Slugify(owner + "-" + repo)
	}
	repoURL := ""
	if containsAny(item.URL, "github.com", "gitlab.com") {
		repoURL = item.URL
	}
	return index.Candidate{
		Entry: index.Entry{
			Name:          item.Name,
			Slug:          slug,
			Description:   item.Description,
			RepositoryURL: repoURL,
			Author:        owner,
			Metadata: map[string]any{
				"source":           string(index.SourceTypeAwesomeList),
				"sourceUrl":        docURL,
				"originalCategory": item.Category,
			},
		},
	}
}
