package agents

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/GraphResearcher/AutoData/sdk/worker"
	"github.com/GraphResearcher/AutoData/types"
)

// Crawler finds the source document on the target page
type Crawler struct {
	worker.Base
	cfg Config
}

// NewCrawler creates the crawl_web worker
func NewCrawler(cfg Config, logw io.Writer) *Crawler {
	return &Crawler{
		Base: worker.NewBase(types.TaskCrawlWeb, "[CRAWLER] ", logw),
		cfg:  cfg.WithDefaults(),
	}
}

func (w *Crawler) Execute(ctx context.Context, st *types.State) (*types.State, error) {
	if !worker.Owns(st, w.TaskType) {
		return st, nil
	}

	target, _ := st.CurrentTask.Input["url"].(string)
	if target == "" {
		return w.Fail(st, "url is required", nil)
	}
	if _, err := url.ParseRequestURI(target); err != nil {
		return w.Fail(st, fmt.Sprintf("invalid url %q: %v", target, err), nil)
	}

	// A direct link to the document needs no crawling
	if isPDFURL(target) {
		st.Document = &types.Document{URL: target, Links: []string{target}}
		return w.Complete(st, map[string]any{
			"pdf_url":   target,
			"pdf_links": 1,
		})
	}

	w.Logger.Printf("Crawling %s", target)
	body, final, err := fetch(ctx, w.cfg, target, w.cfg.MaxPageBytes)
	if err != nil {
		return w.Fail(st, fmt.Sprintf("failed to fetch %s: %v", target, err), map[string]any{"url": target})
	}

	page, err := parsePage(body)
	if err != nil {
		return w.Fail(st, fmt.Sprintf("failed to parse %s: %v", target, err), map[string]any{"url": target})
	}
	links := pdfLinks(final, page)
	if len(links) == 0 {
		return w.Fail(st, "no PDF links found on the page", map[string]any{"url": target})
	}

	title := pageTitle(page)
	st.Document = &types.Document{URL: links[0], Title: title, Links: links}
	w.Logger.Printf("Found %d PDF links, using %s", len(links), links[0])
	return w.Complete(st, map[string]any{
		"pdf_url":   links[0],
		"pdf_links": len(links),
		"title":     title,
	})
}
