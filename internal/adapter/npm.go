package adapter

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/index"
	"github.com/JakeFAU/mcpindex/internal/policy/ratelimit"
)

const npmPageSize = 250

type npmConfig struct {
	SearchTerms  []string `mapstructure:"searchTerms"`
	RegistryURL  string   `mapstructure:"registryUrl"`
	DownloadsURL string   `mapstructure:"downloadsUrl"`
}

type npmSearchResponse struct {
	Objects []struct {
		Package npmPackage `json:"package"`
		Score   struct {
			Detail map[string]float64 `json:"detail"`
		} `json:"score"`
	} `json:"objects"`
	Total int `json:"total"`
}

type npmPackage struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Links       struct {
		NPM        string `json:"npm"`
		Homepage   string `json:"homepage"`
		Repository string `json:"repository"`
	} `json:"links"`
	Author *struct {
		Name string `json:"name"`
	} `json:"author"`
	Publisher *struct {
		Username string `json:"username"`
	} `json:"publisher"`
}

type npmDownloadsResponse struct {
	Downloads int `json:"downloads"`
}

// NPM searches a package registry and keeps only protocol packages.
type NPM struct {
	name   string
	cfg    npmConfig
	deps   Deps
	logger *zap.Logger
}

func newNPM(src index.Source, deps Deps) (Adapter, error) {
	var cfg npmConfig
	if err := decodeConfig(src.Config, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.SearchTerms) == 0 {
		return nil, fmt.Errorf("searchTerms required")
	}
	if cfg.RegistryURL == "" {
		cfg.RegistryURL = "https://registry.npmjs.org"
	}
	if cfg.DownloadsURL == "" {
		cfg.DownloadsURL = "https://api.npmjs.org"
	}
	return &NPM{
		name:   src.Name,
		cfg:    cfg,
		deps:   deps,
		logger: deps.logger().Named("npm").With(zap.String("source", src.Name)),
	}, nil
}

// Name implements Adapter.
func (n *NPM) Name() string { return n.name }

// Candidates implements Adapter.
func (n *NPM) Candidates(ctx context.Context) iter.Seq2[index.Candidate, error] {
	return func(yield func(index.Candidate, error) bool) {
		seen := make(map[string]struct{})
		var (
			skipped     int
			yielded     int
			failedTerms int
			lastErr     error
		)
		defer func() {
			n.logger.Info("skipped non-protocol packages", zap.Int("skipped", skipped))
		}()
		for _, term := range n.cfg.SearchTerms {
			n.logger.Info("searching packages", zap.String("term", term))
			for from := 0; ; from += npmPageSize {
				if err := ctx.Err(); err != nil {
					yield(index.Candidate{}, err)
					return
				}
				var resp npmSearchResponse
				err := n.deps.Fetcher.FetchJSON(ctx, n.searchURL(term, from), &resp, n.deps.limiter(ratelimit.UpstreamNPM)...)
				if err != nil {
					if ctx.Err() != nil {
						yield(index.Candidate{}, ctx.Err())
						return
					}
					n.logger.Error("package search failed",
						zap.String("term", term), zap.Int("from", from), zap.Error(err))
					if from == 0 {
						failedTerms++
						lastErr = err
					}
					break
				}
				if len(resp.Objects) == 0 {
					break
				}
				for _, obj := range resp.Objects {
					pkg := obj.Package
					if _, dup := seen[pkg.Name]; dup {
						continue
					}
					seen[pkg.Name] = struct{}{}
					if !IsProtocolPackage(pkg.Name, pkg.Description, pkg.Keywords) {
						skipped++
						continue
					}
					candidate := n.toCandidate(pkg, obj.Score.Detail, n.weeklyDownloads(ctx, pkg.Name))
					yielded++
					if !yield(candidate, nil) {
						return
					}
				}
				if from+npmPageSize >= resp.Total {
					break
				}
			}
		}
		if yielded == 0 && failedTerms == len(n.cfg.SearchTerms) {
			yield(index.Candidate{}, fmt.Errorf("all %d package searches failed: %w", failedTerms, lastErr))
		}
	}
}

func (n *NPM) searchURL(term string, from int) string {
	q := url.Values{}
	q.Set("text", term)
	q.Set("size", strconv.Itoa(npmPageSize))
	q.Set("from", strconv.Itoa(from))
	return strings.TrimRight(n.cfg.RegistryURL, "/") + "/-/v1/search?" + q.Encode()
}

// weeklyDownloads returns 0 when the downloads API has no answer, which is
// common for scoped packages.
func (n *NPM) weeklyDownloads(ctx context.Context, name string) int {
	rawURL := strings.TrimRight(n.cfg.DownloadsURL, "/") + "/downloads/point/last-week/" + url.PathEscape(name)
	var resp npmDownloadsResponse
	if err := n.deps.Fetcher.FetchJSON(ctx, rawURL, &resp, n.deps.limiter(ratelimit.UpstreamNPM)...); err != nil {
		n.logger.Debug("download lookup failed", zap.String("package", name), zap.Error(err))
		return 0
	}
	return resp.Downloads
}

func (n *NPM) toCandidate(pkg npmPackage, score map[string]float64, downloads int) index.Candidate {
	author := ""
	switch {
	case pkg.Author != nil && pkg.Author.Name != "":
		author = pkg.Author.Name
	case pkg.Publisher != nil:
		author = pkg.Publisher.Username
	}
	return index.Candidate{
		Entry: index.Entry{
			Name:            pkg.Name,
			Slug:            Slugify(pkg.Name),
			Description:     pkg.Description,
			RepositoryURL:   pkg.Links.Repository,
			Package:         pkg.Name,
			Homepage:        pkg.Links.Homepage,
			Author:          author,
			Version:         pkg.Version,
			InstallCommand:  "npx " + pkg.Name,
			WeeklyDownloads: downloads,
			Metadata: map[string]any{
				"source":   string(index.SourceTypeNPM),
				"keywords": pkg.Keywords,
				"npmUrl":   pkg.Links.NPM,
				"npmScore": score,
			},
		},
	}
}
