package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/fetcher"
	"github.com/JakeFAU/mcpindex/internal/index"
	"github.com/JakeFAU/mcpindex/internal/policy/ratelimit"
)

const (
	officialMetaKey      = "io.modelcontextprotocol.registry/official"
	officialPageTimeout  = 60 * time.Second
	officialDefaultBase  = "https://registry.modelcontextprotocol.io"
	officialDefaultLimit = 100
	officialDefaultPages = 500
)

type officialConfig struct {
	BaseURL      string `mapstructure:"baseUrl"`
	Limit        int    `mapstructure:"limit"`
	MaxPages     int    `mapstructure:"maxPages"`
	UpdatedSince string `mapstructure:"updatedSince"`
}

type officialListResponse struct {
	Servers  []officialServerResponse `json:"servers"`
	Metadata struct {
		Count      int    `json:"count"`
		NextCursor string `json:"nextCursor"`
	} `json:"metadata"`
}

type officialServerResponse struct {
	Server officialServer             `json:"server"`
	Meta   map[string]json.RawMessage `json:"_meta"`
}

type officialRegistryMeta struct {
	Status      string `json:"status"`
	PublishedAt string `json:"publishedAt"`
	UpdatedAt   string `json:"updatedAt"`
	IsLatest    bool   `json:"isLatest"`
}

type officialServer struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
	WebsiteURL  string `json:"websiteUrl"`
	Repository  *struct {
		Source string `json:"source"`
		URL    string `json:"url"`
	} `json:"repository"`
	Packages []officialPackage `json:"packages"`
	Remotes  []struct {
		Type string `json:"type"`
	} `json:"remotes"`
}

type officialPackage struct {
	RegistryType string `json:"registryType"`
	Identifier   string `json:"identifier"`
	Version      string `json:"version"`
	RuntimeHint  string `json:"runtimeHint"`
	Transport    struct {
		Type string `json:"type"`
	} `json:"transport"`
}

// OfficialRegistry pages through the official registry listing API.
type OfficialRegistry struct {
	name   string
	cfg    officialConfig
	deps   Deps
	logger *zap.Logger
}

func newOfficialRegistry(src index.Source, deps Deps) (Adapter, error) {
	var cfg officialConfig
	if err := decodeConfig(src.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = officialDefaultBase
	}
	if cfg.Limit <= 0 {
		cfg.Limit = officialDefaultLimit
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = officialDefaultPages
	}
	return &OfficialRegistry{
		name:   src.Name,
		cfg:    cfg,
		deps:   deps,
		logger: deps.logger().Named("official-registry").With(zap.String("source", src.Name)),
	}, nil
}

// Name implements Adapter.
func (o *OfficialRegistry) Name() string { return o.name }

// Candidates implements Adapter.
func (o *OfficialRegistry) Candidates(ctx context.Context) iter.Seq2[index.Candidate, error] {
	return func(yield func(index.Candidate, error) bool) {
		o.logger.Info("starting registry sync", zap.String("base_url", o.cfg.BaseURL), zap.Int("limit", o.cfg.Limit))
		var (
			cursor       string
			totalFetched int
			page         int
		)
		opts := append(o.deps.limiter(ratelimit.UpstreamRegistry), fetcher.WithTimeout(officialPageTimeout))
		for {
			page++
			if page > o.cfg.MaxPages {
				o.logger.Warn("hit max pages limit, stopping pagination", zap.Int("max_pages", o.cfg.MaxPages))
				break
			}
			if err := ctx.Err(); err != nil {
				yield(index.Candidate{}, err)
				return
			}
			var resp officialListResponse
			if err := o.deps.Fetcher.FetchJSON(ctx, o.pageURL(cursor), &resp, opts...); err != nil {
				o.logger.Error("registry page fetch failed", zap.Int("page", page), zap.Error(err))
				yield(index.Candidate{}, fmt.Errorf("registry page %d: %w", page, err))
				return
			}
			totalFetched += len(resp.Servers)
			o.logger.Info("registry page fetched",
				zap.Int("page", page),
				zap.Int("servers_on_page", len(resp.Servers)),
				zap.Int("total_fetched", totalFetched),
				zap.Bool("has_more", resp.Metadata.NextCursor != ""),
			)
			for _, entry := range resp.Servers {
				candidate, ok := officialCandidate(entry)
				if !ok {
					continue
				}
				if !yield(candidate, nil) {
					return
				}
			}
			cursor = resp.Metadata.NextCursor
			if cursor == "" {
				break
			}
		}
		o.logger.Info("registry sync complete", zap.Int("total_fetched", totalFetched), zap.Int("pages", page))
	}
}

func (o *OfficialRegistry) pageURL(cursor string) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(o.cfg.Limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if o.cfg.UpdatedSince != "" {
		q.Set("updated_since", o.cfg.UpdatedSince)
	}
	return strings.TrimRight(o.cfg.BaseURL, "/") + "/v0/servers?" + q.Encode()
}

// officialCandidate maps a registry record, reporting false for records the
// registry marks deprecated or deleted.
func officialCandidate(entry officialServerResponse) (index.Candidate, bool) {
	srv := entry.Server
	var meta officialRegistryMeta
	raw, hasMeta := entry.Meta[officialMetaKey]
	if hasMeta && json.Unmarshal(raw, &meta) != nil {
		hasMeta = false
	}
	if hasMeta && (meta.Status == "deprecated" || meta.Status == "deleted") {
		return index.Candidate{}, false
	}

	npmPkg := findPackage(srv.Packages, "npm")
	var (
		pkgName string
		install string
	)
	if npmPkg != nil {
		pkgName = npmPkg.Identifier
		runtime := npmPkg.RuntimeHint
		if runtime == "" {
			runtime = "npx"
		}
		install = runtime + " " + npmPkg.Identifier
	} else if pypi := findPackage(srv.Packages, "pypi"); pypi != nil {
		install = "uvx " + pypi.Identifier
	}

	var transport any
	switch {
	case npmPkg != nil && npmPkg.Transport.Type != "":
		transport = npmPkg.Transport.Type
	case len(srv.Packages) > 0 && srv.Packages[0].Transport.Type != "":
		transport = srv.Packages[0].Transport.Type
	case len(srv.Remotes) > 0 && srv.Remotes[0].Type != "":
		transport = srv.Remotes[0].Type
	}

	status := "active"
	var publishedAt, updatedAt any
	if hasMeta {
		if meta.Status != "" {
			status = meta.Status
		}
		if meta.PublishedAt != "" {
			publishedAt = meta.PublishedAt
		}
		if meta.UpdatedAt != "" {
			updatedAt = meta.UpdatedAt
		}
	}
	packageTypes := make([]string, 0, len(srv.Packages))
	for _, p := range srv.Packages {
		packageTypes = append(packageTypes, p.RegistryType)
	}
	name := srv.Title
	if name == "" {
		name = srv.Name
	}
	repoURL := ""
	if srv.Repository != nil {
		repoURL = srv.Repository.URL
	}
	return index.Candidate{
		Entry: index.Entry{
			Name:           name,
			Slug:           Slugify(srv.Name),
			Description:    srv.Description,
			RepositoryURL:  repoURL,
			Package:        pkgName,
			Homepage:       srv.WebsiteURL,
			Version:        srv.Version,
			InstallCommand: install,
			IsOfficial:     true,
			Metadata: map[string]any{
				"source":         string(index.SourceTypeOfficialRegistry),
				"registryName":   srv.Name,
				"transport":      transport,
				"registryStatus": status,
				"publishedAt":    publishedAt,
				"updatedAt":      updatedAt,
				"packageTypes":   packageTypes,
			},
		},
	}, true
}

func findPackage(pkgs []officialPackage, registryType string) *officialPackage {
	for i := range pkgs {
		if pkgs[i].RegistryType == registryType {
			return &pkgs[i]
		}
	}
	return nil
}
