package adapter

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/index"
	"github.com/JakeFAU/mcpindex/internal/policy/ratelimit"
)

const maxLinkDescription = 500

// CustomURL scrapes package links out of arbitrary HTML pages.
type CustomURL struct {
	name   string
	cfg    listConfig
	deps   Deps
	logger *zap.Logger
}

func newCustomURL(src index.Source, deps Deps) (Adapter, error) {
	var cfg listConfig
	if err := decodeConfig(src.Config, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("urls required")
	}
	return &CustomURL{
		name:   src.Name,
		cfg:    cfg,
		deps:   deps,
		logger: deps.logger().Named("custom-url").With(zap.String("source", src.Name)),
	}, nil
}

// Name implements Adapter.
func (c *CustomURL) Name() string { return c.name }

// Candidates implements Adapter.
func (c *CustomURL) Candidates(ctx context.Context) iter.Seq2[index.Candidate, error] {
	return func(yield func(index.Candidate, error) bool) {
		seen := make(map[string]struct{})
		var (
			failed  int
			lastErr error
		)
		for _, pageURL := range c.cfg.URLs {
			if err := ctx.Err(); err != nil {
				yield(index.Candidate{}, err)
				return
			}
			c.logger.Info("fetching page", zap.String("url", pageURL))
			links, err := c.pageLinks(ctx, pageURL)
			if err != nil {
				if ctx.Err() != nil {
					yield(index.Candidate{}, ctx.Err())
					return
				}
				c.logger.Error("page fetch failed", zap.String("url", pageURL), zap.Error(err))
				failed++
				lastErr = err
				continue
			}
			for _, link := range links {
				slug := Slugify(link.Name)
				if slug == "" {
					continue
				}
				if _, dup := seen[slug]; dup {
					continue
				}
				seen[slug] = struct{}{}
				owner, _, isGitHub := parseGitHubRepo(link.URL)
				repoURL := ""
				if isGitHub {
					repoURL = link.URL
				}
				candidate := index.Candidate{
					Entry: index.Entry{
						Name:          link.Name,
						Slug:          slug,
						Description:   link.Description,
						RepositoryURL: repoURL,
						Author:        owner,
						Metadata: map[string]any{
							"source":    string(index.SourceTypeCustomURL),
							"sourceUrl": pageURL,
						},
					},
				}
				if !yield(candidate, nil) {
					return
				}
			}
		}
		if failed == len(c.cfg.URLs) {
			yield(index.Candidate{}, fmt.Errorf("all %d pages failed: %w", failed, lastErr))
		}
	}
}

func (c *CustomURL) pageLinks(ctx context.Context, pageURL string) ([]listItem, error) {
	html, err := c.deps.Fetcher.FetchText(ctx, pageURL, c.deps.limiter(ratelimit.UpstreamWeb)...)
	if err != nil {
		return nil, err
	}
	return parseHTMLLinks(html, pageURL)
}

// parseHTMLLinks returns anchors pointing at code or package hosts, using the
// parent element's remaining text as the description.
func parseHTMLLinks(html, pageURL string) ([]listItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	var links []listItem
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		text := strings.TrimSpace(sel.Text())
		if text == "" || !containsAny(href, "github.com", "npmjs.com") {
			return
		}
		full := href
		if !strings.HasPrefix(href, "http") {
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			full = base.ResolveReference(ref).String()
		}
		desc := strings.TrimSpace(strings.Replace(sel.Parent().Text(), text, "", 1))
		links = append(links, listItem{
			Name:        text,
			URL:         full,
			Description: truncateRunes(desc, maxLinkDescription),
		})
	})
	return links, nil
}
