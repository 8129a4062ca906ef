package adapter

import (
	"regexp"
	"strings"
)

var githubRepoPattern = regexp.MustCompile(`github\.com/([^/\s?#]+)/([^/\s?#)]+)`)

// parseGitHubRepo extracts owner and repository from a GitHub URL.
func parseGitHubRepo(rawURL string) (owner, repo string, ok bool) {
	m := githubRepoPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSuffix(m[2], ".git"), true
}

// truncateRunes shortens s to at most n runes.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
