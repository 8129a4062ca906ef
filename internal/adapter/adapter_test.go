package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/fetcher"
	"github.com/JakeFAU/mcpindex/internal/index"
	"github.com/JakeFAU/mcpindex/internal/policy/ratelimit"
)

func testDeps(logger *zap.Logger) Deps {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Deps{
		Fetcher: fetcher.New(nil, fetcher.Config{
			Retries:   0,
			BaseDelay: time.Millisecond,
			Timeout:   2 * time.Second,
		}, logger),
		Limits: ratelimit.New(ratelimit.Config{Default: ratelimit.BucketConfig{Capacity: 100, RefillPerSecond: 0}}),
		Logger: logger,
	}
}

func collect(t *testing.T, a Adapter) ([]index.Candidate, []error) {
	t.Helper()
	var (
		items []index.Candidate
		errs  []error
	)
	for c, err := range a.Candidates(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items = append(items, c)
	}
	return items, errs
}

func slugs(items []index.Candidate) []string {
	out := make([]string, 0, len(items))
	for _, c := range items {
		out = append(out, c.Entry.Slug)
	}
	return out
}

func TestFactory_UnknownType(t *testing.T) {
	t.Parallel()

	f := NewFactory(testDeps(nil))
	_, err := f.New(index.Source{Name: "x", Type: "carrier-pigeon"})
	require.ErrorIs(t, err, index.ErrUnknownSourceType)
}

func TestFactory_RegistersEveryType(t *testing.T) {
	t.Parallel()

	f := NewFactory(testDeps(nil))
	assert.ElementsMatch(t, []index.SourceType{
		index.SourceTypeGitHub,
		index.SourceTypeNPM,
		index.SourceTypeAwesomeList,
		index.SourceTypeCustomURL,
		index.SourceTypeOfficialRegistry,
		index.SourceTypeRegistryJSON,
	}, f.Types())
}

func TestFactory_InvalidConfig(t *testing.T) {
	t.Parallel()

	f := NewFactory(testDeps(nil))
	_, err := f.New(index.Source{Name: "gh", Type: index.SourceTypeGitHub, Config: map[string]any{}})
	require.ErrorContains(t, err, "searchQueries required")

	_, err = f.New(index.Source{Name: "gh", Type: index.SourceTypeGitHub, Config: map[string]any{
		"searchQueries": "not-a-list-but-weakly-decoded",
		"minStars":      "5",
	}})
	require.NoError(t, err)
}

func TestFactory_BuildsNamedAdapter(t *testing.T) {
	t.Parallel()

	f := NewFactory(testDeps(nil))
	a, err := f.New(index.Source{Name: "official", Type: index.SourceTypeOfficialRegistry})
	require.NoError(t, err)
	assert.Equal(t, "official", a.Name())
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Acme/Weather MCP!":      "acme-weather-mcp",
		"io.github.user/weather": "io-github-user-weather",
		"--already--slugged--":   "already-slugged",
		"@scope/pkg-name":        "scope-pkg-name",
		"":                       "",
		"Ünïcode   Server  2.0 ": "n-code-server-2-0",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "Slugify(%q)", in)
	}
}

func TestIsProtocolPackage(t *testing.T) {
	t.Parallel()

	assert.True(t, IsProtocolPackage("weather-mcp-server", "", nil))
	assert.False(t, IsProtocolPackage("weather-widget", "A widget that shows the weather", []string{"weather", "widget"}))

	assert.True(t, IsProtocolPackage("weather", "", []string{"Model-Context-Protocol"}))
	assert.True(t, IsProtocolPackage("bridge", "An MCP server for Jira", nil))
	assert.True(t, IsProtocolPackage("bridge", "Works with mcp out of the box", nil))
	assert.True(t, IsProtocolPackage("bridge", "Implements the Model Context Protocol", nil))
	assert.False(t, IsProtocolPackage("compactor", "Compacts things", nil))
}

func TestParseGitHubRepo(t *testing.T) {
	t.Parallel()

	owner, repo, ok := parseGitHubRepo("https://github.com/acme/tool.git")
	require.True(t, ok)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "tool", repo)

	_, _, ok = parseGitHubRepo("https://www.npmjs.com/package/tool")
	assert.False(t, ok)
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "héllo", truncateRunes("héllo wörld", 5))
	assert.Equal(t, "short", truncateRunes("short", 10))
}
