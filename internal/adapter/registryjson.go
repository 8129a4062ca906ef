package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/index"
	"github.com/JakeFAU/mcpindex/internal/policy/ratelimit"
)

type registryJSONConfig struct {
	RegistryURL string `mapstructure:"registryUrl"`
}

type registryJSONEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Repository  string `json:"repository"`
	NPM         string `json:"npm"`
	Homepage    string `json:"homepage"`
	Author      string `json:"author"`
	Tools       []struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema json.RawMessage `json:"inputSchema"`
	} `json:"tools"`
	Resources []struct {
		URI         string `json:"uri"`
		Name        string `json:"name"`
		Description string `json:"description"`
		MimeType    string `json:"mimeType"`
	} `json:"resources"`
	Prompts []struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Arguments   json.RawMessage `json:"arguments"`
	} `json:"prompts"`
}

// RegistryJSON reads a static JSON registry document whose entries already
// describe their capabilities.
type RegistryJSON struct {
	name   string
	cfg    registryJSONConfig
	deps   Deps
	logger *zap.Logger
}

func newRegistryJSON(src index.Source, deps Deps) (Adapter, error) {
	var cfg registryJSONConfig
	if err := decodeConfig(src.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.RegistryURL == "" {
		return nil, fmt.Errorf("registryUrl required")
	}
	return &RegistryJSON{
		name:   src.Name,
		cfg:    cfg,
		deps:   deps,
		logger: deps.logger().Named("registry-json").With(zap.String("source", src.Name)),
	}, nil
}

// Name implements Adapter.
func (r *RegistryJSON) Name() string { return r.name }

// Candidates implements Adapter.
func (r *RegistryJSON) Candidates(ctx context.Context) iter.Seq2[index.Candidate, error] {
	return func(yield func(index.Candidate, error) bool) {
		r.logger.Info("fetching registry document", zap.String("url", r.cfg.RegistryURL))
		var entries []registryJSONEntry
		if err := r.deps.Fetcher.FetchJSON(ctx, r.cfg.RegistryURL, &entries, r.deps.limiter(ratelimit.UpstreamRegistry)...); err != nil {
			r.logger.Error("registry document fetch failed", zap.Error(err))
			yield(index.Candidate{}, fmt.Errorf("fetch registry document: %w", err))
			return
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				yield(index.Candidate{}, err)
				return
			}
			if !yield(registryJSONCandidate(e), nil) {
				return
			}
		}
	}
}

// registryJSONCandidate keeps nil capability slices for kinds the entry omits,
// so the store leaves those collections untouched.
func registryJSONCandidate(e registryJSONEntry) index.Candidate {
	var caps index.Capabilities
	if e.Tools != nil {
		caps.Tools = make([]index.Tool, 0, len(e.Tools))
		for _, t := range e.Tools {
			caps.Tools = append(caps.Tools, index.Tool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
		}
	}
	if e.Resources != nil {
		caps.Resources = make([]index.Resource, 0, len(e.Resources))
		for _, res := range e.Resources {
			caps.Resources = append(caps.Resources, index.Resource{
				URI: res.URI, Name: res.Name, Description: res.Description, MimeType: res.MimeType,
			})
		}
	}
	if e.Prompts != nil {
		caps.Prompts = make([]index.Prompt, 0, len(e.Prompts))
		for _, p := range e.Prompts {
			caps.Prompts = append(caps.Prompts, index.Prompt{Name: p.Name, Description: p.Description, Arguments: p.Arguments})
		}
	}
	return index.Candidate{
		Entry: index.Entry{
			Name:          e.Name,
			Slug:          Slugify(e.Name),
			Description:   e.Description,
			RepositoryURL: e.Repository,
			Package:       e.NPM,
			Homepage:      e.Homepage,
			Author:        e.Author,
			IsOfficial:    true,
			Metadata:      map[string]any{"source": "registry"},
		},
		Capabilities: caps,
	}
}
