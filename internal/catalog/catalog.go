// Package catalog loads crawl source definitions from YAML and seeds them
// into a source store.
package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/mcpindex/internal/index"
)

type file struct {
	Sources []index.Source `yaml:"sources"`
}

// Load reads the sources file at path.
func Load(path string) ([]index.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a sources document and validates every entry.
func Parse(data []byte) ([]index.Source, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid sources YAML: %w", err)
	}
	seen := make(map[string]bool, len(f.Sources))
	for i, src := range f.Sources {
		if src.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if src.Type == "" {
			return nil, fmt.Errorf("source %s: type is required", src.Name)
		}
		if seen[src.Name] {
			return nil, fmt.Errorf("source %s: duplicate name", src.Name)
		}
		seen[src.Name] = true
	}
	return f.Sources, nil
}

// Defaults returns the built-in sources used when no file is configured.
func Defaults() []index.Source {
	return []index.Source{
		{
			Name:     "github-mcp-topic",
			Type:     index.SourceTypeGitHub,
			Enabled:  true,
			Schedule: "0 */6 * * *",
			Config: map[string]any{
				"searchQueries": []string{
					"topic:mcp-server",
					"topic:model-context-protocol",
					"mcp server in:name,description",
				},
				"minStars": 1,
			},
		},
		{
			Name:     "npm-mcp-packages",
			Type:     index.SourceTypeNPM,
			Enabled:  true,
			Schedule: "0 */6 * * *",
			Config: map[string]any{
				"searchTerms": []string{"mcp-server", "model-context-protocol", "@modelcontextprotocol"},
			},
		},
		{
			Name:     "awesome-mcp-servers",
			Type:     index.SourceTypeAwesomeList,
			Enabled:  true,
			Schedule: "0 0 * * *",
			Config: map[string]any{
				"urls": []string{
					"https://raw.githubusercontent.com/punkpeye/awesome-mcp-servers/main/README.md",
					"https://raw.githubusercontent.com/wong2/awesome-mcp-servers/main/README.md",
				},
			},
		},
	}
}

// Seed upserts sources into store and returns how many were written.
func Seed(ctx context.Context, store index.SourceStore, sources []index.Source) (int, error) {
	for i, src := range sources {
		if _, err := store.UpsertSource(ctx, src); err != nil {
			return i, fmt.Errorf("seed source %s: %w", src.Name, err)
		}
	}
	return len(sources), nil
}
