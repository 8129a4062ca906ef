package adapter

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/mcpindex/internal/index"
)

const linkPage = `<html><body>
<ul>
  <li><a href="https://github.com/acme/files">Files Server</a> reads and writes local files</li>
  <li><a href="//github.com/acme/relative">Relative</a> protocol-relative link</li>
  <li><a href="https://www.npmjs.com/package/fetch-mcp">fetch-mcp</a> fetches URLs</li>
  <li><a href="https://example.com">Elsewhere</a> ignored</li>
  <li><a href="https://github.com/acme/empty"></a> no text</li>
  <li><a href="https://github.com/acme/files-fork">Files Server</a> duplicate name</li>
</ul>
</body></html>`

func TestParseHTMLLinks(t *testing.T) {
	t.Parallel()

	links, err := parseHTMLLinks(linkPage, "https://lists.example.org/servers")
	require.NoError(t, err)
	require.Len(t, links, 4)
	for _, link := range links {
		assert.NotEqual(t, "https://example.com", link.URL)
		assert.NotEqual(t, "https://github.com/acme/empty", link.URL, "anchors without text are skipped")
	}
	assert.Equal(t, "Files Server", links[0].Name)
	assert.Equal(t, "reads and writes local files", links[0].Description)
	assert.Equal(t, "https://github.com/acme/relative", links[1].URL)
	assert.Equal(t, "https://www.npmjs.com/package/fetch-mcp", links[2].URL)
	assert.Equal(t, "https://github.com/acme/files-fork", links[3].URL)
}

func TestParseHTMLLinks_TruncatesDescription(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 900)
	links, err := parseHTMLLinks(`<p><a href="https://github.com/x/y">y</a> `+long+`</p>`, "https://h")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Len(t, links[0].Description, maxLinkDescription)
}

func TestCustomURL_Candidates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(linkPage))
	}))
	defer srv.Close()

	a, err := NewFactory(testDeps(nil)).New(index.Source{
		Name:   "page",
		Type:   index.SourceTypeCustomURL,
		Config: map[string]any{"urls": []string{srv.URL}},
	})
	require.NoError(t, err)

	items, errs := collect(t, a)
	require.Empty(t, errs)
	assert.Equal(t, []string{"files-server", "relative", "fetch-mcp"}, slugs(items))
	assert.Equal(t, "acme", items[0].Entry.Author)
	assert.Equal(t, "https://github.com/acme/files", items[0].Entry.RepositoryURL)
	assert.Empty(t, items[2].Entry.RepositoryURL)
	assert.Equal(t, "custom-url", items[2].Entry.Metadata["source"])
}
