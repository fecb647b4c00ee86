package agents

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/GraphResearcher/AutoData/sdk/worker"
	"github.com/GraphResearcher/AutoData/types"
)

// Scraper fetches search result pages and keeps their article text
type Scraper struct {
	worker.Base
	cfg Config
}

// NewScraper creates the scrape_articles worker
func NewScraper(cfg Config, logw io.Writer) *Scraper {
	return &Scraper{
		Base: worker.NewBase(types.TaskScrapeArticles, "[SCRAPER] ", logw),
		cfg:  cfg.WithDefaults(),
	}
}

type scrapeResult struct {
	article types.Article
	err     error
}

func (w *Scraper) Execute(ctx context.Context, st *types.State) (*types.State, error) {
	if !worker.Owns(st, w.TaskType) {
		return st, nil
	}

	var batch []string
	input, _ := st.CurrentTask.Input["urls_to_scrape"].([]string)
	for _, u := range input {
		if !st.ProcessedURLs[u] {
			batch = append(batch, u)
		}
		if len(batch) == w.cfg.ScrapeBatchSize {
			break
		}
	}
	if len(batch) == 0 {
		return w.Skip(st, "no unprocessed urls", map[string]any{"scraped": 0})
	}

	w.Logger.Printf("Scraping %d urls", len(batch))
	now := st.Now()
	results := make([]scrapeResult, len(batch))
	var g errgroup.Group
	g.SetLimit(w.cfg.ScrapeConcurrency)
	for i, u := range batch {
		i, u := i, u
		g.Go(func() error {
			a, err := w.scrape(ctx, u, now)
			results[i] = scrapeResult{article: a, err: err}
			return nil
		})
	}
	_ = g.Wait()

	scraped, failed := 0, 0
	for i, u := range batch {
		st.MarkProcessed(u)
		if err := results[i].err; err != nil {
			failed++
			w.Warn(st, fmt.Sprintf("failed to scrape %s: %v", u, err))
			continue
		}
		st.Articles = append(st.Articles, results[i].article)
		scraped++
	}

	if scraped == 0 {
		return w.Fail(st, fmt.Sprintf("failed to scrape any of %d urls", len(batch)), map[string]any{"failed": failed})
	}
	return w.Complete(st, map[string]any{
		"scraped":        scraped,
		"failed":         failed,
		"remaining":      len(st.UnprocessedURLs()),
		"total_articles": len(st.Articles),
	})
}

func (w *Scraper) scrape(ctx context.Context, rawURL string, now time.Time) (types.Article, error) {
	body, final, err := fetch(ctx, w.cfg, rawURL, w.cfg.MaxPageBytes)
	if err != nil {
		return types.Article{}, err
	}
	page, err := parsePage(body)
	if err != nil {
		return types.Article{}, fmt.Errorf("parse page: %w", err)
	}

	content := strings.Join(paragraphs(page), "\n\n")
	if utf8.RuneCountInString(content) < w.cfg.MinArticleChars {
		return types.Article{}, fmt.Errorf("article content too short (%d chars)", utf8.RuneCountInString(content))
	}

	summary := metaContent(page, "description", "og:description")
	if summary == "" {
		summary = firstSentence(content, maxSummaryLen)
	}
	source := ""
	if final != nil {
		source = final.Hostname()
	} else if u, err := url.Parse(rawURL); err == nil {
		source = u.Hostname()
	}

	return types.Article{
		URL:       rawURL,
		Title:     pageTitle(page),
		Author:    metaContent(page, "author", "article:author"),
		Summary:   summary,
		Content:   content,
		Source:    source,
		ScrapedAt: now,
	}, nil
}
