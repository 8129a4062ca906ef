package adapter

import (
	"regexp"
	"strings"
)

var protocolIndicators = []string{
	"mcp",
	"model-context-protocol",
	"model context protocol",
	"modelcontextprotocol",
	"mcp-server",
	"mcp-tool",
	"mcp-resource",
}

var protocolDescriptionPhrases = []string{
	"model context protocol",
	"mcp server",
	"mcp tool",
	"mcp client",
	"mcp resource",
	"mcp prompt",
}

var mcpWord = regexp.MustCompile(`\bmcp\b`)

// IsProtocolPackage reports whether a registry package plausibly belongs to the
// protocol ecosystem, judged by its name, keywords and description.
func IsProtocolPackage(name, description string, keywords []string) bool {
	name = strings.ToLower(name)
	for _, ind := range protocolIndicators {
		if strings.Contains(name, ind) {
			return true
		}
	}
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		for _, ind := range protocolIndicators {
			if strings.Contains(kw, ind) {
				return true
			}
		}
	}
	desc := strings.ToLower(description)
	for _, phrase := range protocolDescriptionPhrases {
		if strings.Contains(desc, phrase) {
			return true
		}
	}
	return mcpWord.MatchString(desc)
}
