package adapter

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/fetcher"
	"github.com/JakeFAU/mcpindex/internal/index"
	"github.com/JakeFAU/mcpindex/internal/manifest"
	"github.com/JakeFAU/mcpindex/internal/policy/ratelimit"
)

const (
	githubPerPage       = 100
	githubSearchCeiling = 1000
)

type githubConfig struct {
	SearchQueries    []string `mapstructure:"searchQueries"`
	MinStars         int      `mapstructure:"minStars"`
	APIBaseURL       string   `mapstructure:"apiBaseUrl"`
	RawBaseURL       string   `mapstructure:"rawBaseUrl"`
	Token            string   `mapstructure:"token"`
	InspectManifests bool     `mapstructure:"inspectManifests"`
}

type githubSearchResponse struct {
	TotalCount int          `json:"total_count"`
	Items      []githubRepo `json:"items"`
}

type githubRepo struct {
	Name            string   `json:"name"`
	FullName        string   `json:"full_name"`
	Description     string   `json:"description"`
	HTMLURL         string   `json:"html_url"`
	Homepage        string   `json:"homepage"`
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	OpenIssuesCount int      `json:"open_issues_count"`
	Language        string   `json:"language"`
	DefaultBranch   string   `json:"default_branch"`
	PushedAt        string   `json:"pushed_at"`
	Topics          []string `json:"topics"`
	Owner           struct {
		Login string `json:"login"`
	} `json:"owner"`
	License *struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
}

// GitHub searches repositories on a code host.
type GitHub struct {
	name   string
	cfg    githubConfig
	deps   Deps
	logger *zap.Logger
}

func newGitHub(src index.Source, deps Deps) (Adapter, error) {
	var cfg githubConfig
	if err := decodeConfig(src.Config, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.SearchQueries) == 0 {
		return nil, fmt.Errorf("searchQueries required")
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.github.com"
	}
	if cfg.RawBaseURL == "" {
		cfg.RawBaseURL = "https://raw.githubusercontent.com"
	}
	if cfg.Token == "" {
		cfg.Token = deps.GitHubToken
	}
	return &GitHub{
		name:   src.Name,
		cfg:    cfg,
		deps:   deps,
		logger: deps.logger().Named("github").With(zap.String("source", src.Name)),
	}, nil
}

// Name implements Adapter.
func (g *GitHub) Name() string { return g.name }

// Candidates implements Adapter.
func (g *GitHub) Candidates(ctx context.Context) iter.Seq2[index.Candidate, error] {
	return func(yield func(index.Candidate, error) bool) {
		seen := make(map[string]struct{})
		var (
			failedQueries int
			yielded       int
			lastErr       error
		)
		for _, query := range g.cfg.SearchQueries {
			g.logger.Info("searching repositories", zap.String("query", query))
			for page := 1; ; page++ {
				if err := ctx.Err(); err != nil {
					yield(index.Candidate{}, err)
					return
				}
				var resp githubSearchResponse
				if err := g.deps.Fetcher.FetchJSON(ctx, g.searchURL(query, page), &resp, g.fetchOptions()...); err != nil {
					if ctx.Err() != nil {
						yield(index.Candidate{}, ctx.Err())
						return
					}
					g.logger.Error("repository search failed",
						zap.String("query", query), zap.Int("page", page), zap.Error(err))
					if page == 1 {
						failedQueries++
						lastErr = err
					}
					break
				}
				if len(resp.Items) == 0 {
					break
				}
				for _, repo := range resp.Items {
					if _, dup := seen[repo.FullName]; dup {
						continue
					}
					seen[repo.FullName] = struct{}{}
					if g.cfg.MinStars > 0 && repo.StargazersCount < g.cfg.MinStars {
						continue
					}
					candidate := g.toCandidate(repo)
					if g.cfg.InspectManifests {
						g.inspectManifest(ctx, repo, &candidate.Entry)
					}
					yielded++
					if !yield(candidate, nil) {
						return
					}
				}
				if page*githubPerPage >= min(resp.TotalCount, githubSearchCeiling) {
					break
				}
			}
		}
		if yielded == 0 && failedQueries == len(g.cfg.SearchQueries) {
			yield(index.Candidate{}, fmt.Errorf("all %d repository searches failed: %w", failedQueries, lastErr))
		}
	}
}

func (g *GitHub) searchURL(query string, page int) string {
	q := url.Values{}
	q.Set("q", query)
	q.Set("sort", "stars")
	q.Set("order", "desc")
	q.Set("per_page", strconv.Itoa(githubPerPage))
	q.Set("page", strconv.Itoa(page))
	return strings.TrimRight(g.cfg.APIBaseURL, "/") + "/search/repositories?" + q.Encode()
}

func (g *GitHub) fetchOptions() []fetcher.Option {
	opts := g.deps.limiter(ratelimit.UpstreamGitHub)
	opts = append(opts, fetcher.WithHeader("Accept", "application/vnd.github+json"))
	if g.cfg.Token != "" {
		opts = append(opts, fetcher.WithHeader("Authorization", "Bearer "+g.cfg.Token))
	}
	return opts
}

func (g *GitHub) toCandidate(repo githubRepo) index.Candidate {
	license := ""
	if repo.License != nil {
		license = repo.License.SPDXID
	}
	return index.Candidate{
		Entry: index.Entry{
			Name:          repo.Name,
			Slug:          Slugify(repo.FullName),
			Description:   repo.Description,
			RepositoryURL: repo.HTMLURL,
			Homepage:      repo.Homepage,
			Author:        repo.Owner.Login,
			License:       license,
			Stars:         repo.StargazersCount,
			Metadata: map[string]any{
				"source":          string(index.SourceTypeGitHub),
				"fullName":        repo.FullName,
				"topics":          repo.Topics,
				"language":        repo.Language,
				"defaultBranch":   repo.DefaultBranch,
				"forksCount":      repo.ForksCount,
				"openIssuesCount": repo.OpenIssuesCount,
				"pushedAt":        repo.PushedAt,
			},
		},
	}
}

// inspectManifest enriches entry from the repository's package.json. Failures
// are expected for non-JavaScript repositories and are ignored.
func (g *GitHub) inspectManifest(ctx context.Context, repo githubRepo, entry *index.Entry) {
	branch := repo.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	rawURL := fmt.Sprintf("%s/%s/%s/package.json", strings.TrimRight(g.cfg.RawBaseURL, "/"), repo.FullName, branch)
	opts := append(g.deps.limiter(ratelimit.UpstreamWeb), fetcher.WithRetries(0))
	body, err := g.deps.Fetcher.FetchText(ctx, rawURL, opts...)
	if err != nil {
		g.logger.Debug("manifest unavailable", zap.String("repo", repo.FullName), zap.Error(err))
		return
	}
	pkg, err := manifest.ParsePackageJSON([]byte(body))
	if err != nil {
		g.logger.Debug("manifest unparseable", zap.String("repo", repo.FullName), zap.Error(err))
		return
	}
	entry.Metadata["hasMcpDependency"] = pkg.HasMcpDependency
	if entry.License == "" {
		entry.License = pkg.License
	}
	entry.Version = pkg.Version
	if pkg.Name != "unknown" {
		entry.Package = pkg.Name
	}
	if pkg.InstallCommand != "" {
		entry.InstallCommand = pkg.InstallCommand
	}
}
