package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mcpindex/internal/index"
)

func repoJSON(fullName string, stars int) map[string]any {
	return map[string]any{
		"name":              fullName[len("acme/"):],
		"full_name":         fullName,
		"description":       "repo " + fullName,
		"html_url":          "https://github.com/" + fullName,
		"stargazers_count":  stars,
		"forks_count":       3,
		"open_issues_count": 2,
		"language":          "TypeScript",
		"default_branch":    "main",
		"pushed_at":         "2026-10-01T00:00:00Z",
		"topics":            []string{"mcp-server"},
		"owner":             map[string]any{"login": "acme"},
		"license":           map[string]any{"spdx_id": "MIT"},
	}
}

func newGitHubServer(t *testing.T, pages map[string]map[string]any, manifests map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "stars", r.URL.Query().Get("sort"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		key := r.URL.Query().Get("q") + "#" + r.URL.Query().Get("page")
		body, ok := pages[key]
		if !ok {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		assert.NoError(t, json.NewEncoder(w).Encode(body))
	})
	mux.HandleFunc("/raw/", func(w http.ResponseWriter, r *http.Request) {
		doc, ok := manifests[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(doc))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGitHub_PaginatesDedupesAndFilters(t *testing.T) {
	t.Parallel()

	srv := newGitHubServer(t, map[string]map[string]any{
		"topic:mcp#1": {
			"total_count": 150,
			"items":       []any{repoJSON("acme/alpha", 50), repoJSON("acme/beta", 0)},
		},
		"topic:mcp#2": {
			"total_count": 150,
			"items":       []any{repoJSON("acme/alpha", 50), repoJSON("acme/gamma", 9)},
		},
		"mcp server#1": {
			"total_count": 1,
			"items":       []any{repoJSON("acme/gamma", 9), repoJSON("acme/delta", 4)},
		},
	}, nil)

	a, err := NewFactory(testDeps(nil)).New(index.Source{
		Name: "gh",
		Type: index.SourceTypeGitHub,
		Config: map[string]any{
			"searchQueries": []any{"topic:mcp", "mcp server"},
			"minStars":      1,
			"apiBaseUrl":    srv.URL,
		},
	})
	require.NoError(t, err)

	items, errs := collect(t, a)
	require.Empty(t, errs)
	assert.Equal(t, []string{"acme-alpha", "acme-gamma", "acme-delta"}, slugs(items))

	alpha := items[0].Entry
	assert.Equal(t, "alpha", alpha.Name)
	assert.Equal(t, 50, alpha.Stars)
	assert.Equal(t, "MIT", alpha.License)
	assert.Equal(t, "acme", alpha.Author)
	assert.Equal(t, "github", alpha.Metadata["source"])
	assert.Equal(t, 3, alpha.Metadata["forksCount"])
	assert.Equal(t, "2026-10-01T00:00:00Z", alpha.Metadata["pushedAt"])
	assert.False(t, items[0].Capabilities.Supplied())
}

func TestGitHub_PartialQueryFailureIsSkipped(t *testing.T) {
	t.Parallel()

	srv := newGitHubServer(t, map[string]map[string]any{
		"good#1": {"total_count": 1, "items": []any{repoJSON("acme/one", 5)}},
	}, nil)
	a, err := NewFactory(testDeps(nil)).New(index.Source{
		Name: "gh",
		Type: index.SourceTypeGitHub,
		Config: map[string]any{
			"searchQueries": []string{"broken", "good"},
			"apiBaseUrl":    srv.URL,
		},
	})
	require.NoError(t, err)

	items, errs := collect(t, a)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"acme-one"}, slugs(items))
}

func TestGitHub_AllQueriesFailing(t *testing.T) {
	t.Parallel()

	srv := newGitHubServer(t, nil, nil)
	a, err := NewFactory(testDeps(nil)).New(index.Source{
		Name:   "gh",
		Type:   index.SourceTypeGitHub,
		Config: map[string]any{"searchQueries": []string{"a", "b"}, "apiBaseUrl": srv.URL},
	})
	require.NoError(t, err)

	items, errs := collect(t, a)
	assert.Empty(t, items)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "all 2 repository searches failed")
}

func TestGitHub_InspectsManifests(t *testing.T) {
	t.Parallel()

	srv := newGitHubServer(t, map[string]map[string]any{
		"q#1": {"total_count": 2, "items": []any{repoJSON("acme/js", 5), repoJSON("acme/go", 5)}},
	}, map[string]string{
		"/raw/acme/js/main/package.json": `{"name":"@acme/js","version":"2.1.0","bin":{"acme-js":"x"},"dependencies":{"@modelcontextprotocol/sdk":"1"}}`,
	})
	a, err := NewFactory(testDeps(nil)).New(index.Source{
		Name: "gh",
		Type: index.SourceTypeGitHub,
		Config: map[string]any{
			"searchQueries":    []string{"q"},
			"apiBaseUrl":       srv.URL,
			"rawBaseUrl":       srv.URL + "/raw",
			"inspectManifests": true,
		},
	})
	require.NoError(t, err)

	items, errs := collect(t, a)
	require.Empty(t, errs)
	require.Len(t, items, 2)
	js := items[0].Entry
	assert.Equal(t, true, js.Metadata["hasMcpDependency"])
	assert.Equal(t, "2.1.0", js.Version)
	assert.Equal(t, "@acme/js", js.Package)
	assert.Equal(t, "npx acme-js", js.InstallCommand)
	_, has := items[1].Entry.Metadata["hasMcpDependency"]
	assert.False(t, has)
}

func TestGitHub_StopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	srv := newGitHubServer(t, nil, nil)
	a, err := NewFactory(testDeps(nil)).New(index.Source{
		Name:   "gh",
		Type:   index.SourceTypeGitHub,
		Config: map[string]any{"searchQueries": []string{"q"}, "apiBaseUrl": srv.URL},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var errs []error
	for _, err := range a.Candidates(ctx) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], context.Canceled)
}
