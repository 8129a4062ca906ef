// Package manifest extracts index signals from package manifests.
package manifest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// protocolDependencyMarkers identify a direct dependency on a protocol SDK.
var protocolDependencyMarkers = []string{"@modelcontextprotocol", "mcp-sdk", "mcp-server"}

// PackageJSON is the subset of package.json fields the index uses.
type PackageJSON struct {
	Name             string
	Version          string
	Description      string
	Author           string
	License          string
	Homepage         string
	Repository       string
	Keywords         []string
	HasMcpDependency bool
	InstallCommand   string
}

type rawPackageJSON struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Description      string            `json:"description"`
	Author           json.RawMessage   `json:"author"`
	License          json.RawMessage   `json:"license"`
	Homepage         string            `json:"homepage"`
	Repository       json.RawMessage   `json:"repository"`
	Keywords         []string          `json:"keywords"`
	Bin              json.RawMessage   `json:"bin"`
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// ParsePackageJSON decodes a package.json document.
func ParsePackageJSON(data []byte) (PackageJSON, error) {
	var raw rawPackageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return PackageJSON{}, fmt.Errorf("parse package.json: %w", err)
	}
	name := raw.Name
	if name == "" {
		name = "unknown"
	}
	version := raw.Version
	if version == "" {
		version = "0.0.0"
	}
	out := PackageJSON{
		Name:        name,
		Version:     version,
		Description: raw.Description,
		Author:      stringOrField(raw.Author, "name"),
		License:     stringOrField(raw.License, "type"),
		Homepage:    raw.Homepage,
		Repository:  normalizeRepository(stringOrField(raw.Repository, "url")),
		Keywords:    raw.Keywords,
	}
	out.HasMcpDependency = hasProtocolDependency(raw.Dependencies, raw.DevDependencies, raw.PeerDependencies)
	if bin := binName(raw.Bin, name); bin != "" {
		out.InstallCommand = "npx " + bin
	}
	return out, nil
}

func hasProtocolDependency(sets ...map[string]string) bool {
	for _, deps := range sets {
		for dep := range deps {
			for _, marker := range protocolDependencyMarkers {
				if strings.Contains(dep, marker) {
					return true
				}
			}
		}
	}
	return false
}

// stringOrField accepts either a JSON string or an object carrying field.
func stringOrField(raw json.RawMessage, field string) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if v, ok := obj[field].(string); ok {
		return v
	}
	return ""
}

func normalizeRepository(repo string) string {
	repo = strings.TrimPrefix(repo, "git+")
	return strings.TrimSuffix(repo, ".git")
}

func binName(raw json.RawMessage, pkgName string) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return pkgName
	}
	var bins map[string]string
	if err := json.Unmarshal(raw, &bins); err != nil || len(bins) == 0 {
		return ""
	}
	names := make([]string, 0, len(bins))
	for k := range bins {
		names = append(names, k)
	}
	sort.Strings(names)
	return names[0]
}
