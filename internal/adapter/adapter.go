package adapter

import (
	"context"
	"fmt"
	"iter"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/fetcher"
	"github.com/JakeFAU/mcpindex/internal/index"
	"github.com/JakeFAU/mcpindex/internal/policy/ratelimit"
)

// Adapter produces candidates for one crawl source.
//
// The sequence is lazy and single use. A non-nil error ends the sequence and
// signals that enumeration could not continue; items already yielded stand.
type Adapter interface {
	Name() string
	Candidates(ctx context.Context) iter.Seq2[index.Candidate, error]
}

// Fetcher is the subset of *fetcher.Client adapters rely on.
type Fetcher interface {
	FetchJSON(ctx context.Context, rawURL string, dst any, opts ...fetcher.Option) error
	FetchText(ctx context.Context, rawURL string, opts ...fetcher.Option) (string, error)
}

// Deps are the collaborators shared by every adapter.
type Deps struct {
	Fetcher     Fetcher
	Limits      *ratelimit.Registry
	Logger      *zap.Logger
	GitHubToken string
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// limiter returns the fetch options that route a call through the upstream bucket.
func (d Deps) limiter(upstream string) []fetcher.Option {
	if d.Limits == nil {
		return nil
	}
	return []fetcher.Option{fetcher.WithLimiter(d.Limits.For(upstream))}
}

// Constructor builds an adapter for a source.
type Constructor func(src index.Source, deps Deps) (Adapter, error)

// Factory maps source types to constructors. The set is fixed at construction.
type Factory struct {
	deps         Deps
	constructors map[index.SourceType]Constructor
}

// NewFactory returns a Factory with every supported source type registered.
func NewFactory(deps Deps) *Factory {
	return &Factory{
		deps: deps,
		constructors: map[index.SourceType]Constructor{
			index.SourceTypeGitHub:           newGitHub,
			index.SourceTypeNPM:              newNPM,
			index.SourceTypeAwesomeList:      newAwesomeList,
			index.SourceTypeCustomURL:        newCustomURL,
			index.SourceTypeOfficialRegistry: newOfficialRegistry,
			index.SourceTypeRegistryJSON:     newRegistryJSON,
		},
	}
}

// New builds the adapter for src, or returns index.ErrUnknownSourceType.
func (f *Factory) New(src index.Source) (Adapter, error) {
	ctor, ok := f.constructors[src.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", index.ErrUnknownSourceType, src.Type)
	}
	a, err := ctor(src, f.deps)
	if err != nil {
		return nil, fmt.Errorf("build %s adapter for %s: %w", src.Type, src.Name, err)
	}
	return a, nil
}

// Types lists the registered source types in sorted order.
func (f *Factory) Types() []index.SourceType {
	out := make([]index.SourceType, 0, len(f.constructors))
	for t := range f.constructors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// decodeConfig decodes a source's free-form config into dst.
func decodeConfig(raw map[string]any, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("build config decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode source config: %w", err)
	}
	return nil
}
