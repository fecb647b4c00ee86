package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/GraphResearcher/AutoData/sdk/worker"
	"github.com/GraphResearcher/AutoData/types"
)

// DefaultSearchEndpoint is the Google Custom Search JSON API
const DefaultSearchEndpoint = "https://www.googleapis.com/customsearch/v1"

var ErrSearchNotConfigured = errors.New("search engine not configured")

// Searcher runs a web search query
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error)
}

// GoogleSearcher queries the Custom Search JSON API
type GoogleSearcher struct {
	Endpoint  string
	APIKey    string
	EngineID  string
	Client    *http.Client
	UserAgent string
}

type googleResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Snippet     string `json:"snippet"`
		DisplayLink string `json:"displayLink"`
	} `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Search returns at most limit results. The API caps a page at 10.
func (g *GoogleSearcher) Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	if g == nil || g.APIKey == "" || g.EngineID == "" {
		return nil, ErrSearchNotConfigured
	}
	if limit <= 0 || limit > 10 {
		limit = 10
	}
	endpoint := g.Endpoint
	if endpoint == "" {
		endpoint = DefaultSearchEndpoint
	}

	q := url.Values{}
	q.Set("key", g.APIKey)
	q.Set("cx", g.EngineID)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	if g.UserAgent != "" {
		req.Header.Set("User-Agent", g.UserAgent)
	}
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer resp.Body.Close()

	var out googleResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("search %q: %d %s", query, out.Error.Code, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %q: %w: %s", query, ErrUnexpectedHTTP, resp.Status)
	}

	results := make([]types.SearchResult, 0, len(out.Items))
	for _, it := range out.Items {
		if it.Link == "" {
			continue
		}
		results = append(results, types.SearchResult{
			URL:     it.Link,
			Title:   it.Title,
			Snippet: it.Snippet,
			Source:  it.DisplayLink,
		})
	}
	return results, nil
}

// DocumentSearch locates the source document from keywords when no target
// page is given
type DocumentSearch struct {
	worker.Base
	cfg      Config
	searcher Searcher
}

// NewDocumentSearch creates the search_pdf_by_keywords worker
func NewDocumentSearch(cfg Config, searcher Searcher, logw io.Writer) *DocumentSearch {
	return &DocumentSearch{
		Base:     worker.NewBase(types.TaskSearchPDFByKeyword, "[DOCSEARCH] ", logw),
		cfg:      cfg.WithDefaults(),
		searcher: searcher,
	}
}

func (w *DocumentSearch) Execute(ctx context.Context, st *types.State) (*types.State, error) {
	if !worker.Owns(st, w.TaskType) {
		return st, nil
	}

	keywords, _ := st.CurrentTask.Input["keywords"].(string)
	keywords = strings.TrimSpace(keywords)
	if keywords == "" {
		return w.Fail(st, "keywords are required", nil)
	}
	if w.searcher == nil {
		return w.Fail(st, ErrSearchNotConfigured.Error(), map[string]any{"keywords": keywords})
	}

	queries := []string{keywords + " filetype:pdf", keywords}
	var links []string
	seen := map[string]bool{}
	for _, q := range queries {
		results, err := w.searcher.Search(ctx, q, w.cfg.ResultsPerQuery)
		if err != nil {
			w.Warn(st, fmt.Sprintf("search %q failed: %v", q, err))
			continue
		}
		for _, r := range results {
			if isPDFURL(r.URL) && !seen[r.URL] {
				seen[r.URL] = true
				links = append(links, r.URL)
			}
		}
		if len(links) > 0 {
			break
		}
	}

	if len(links) == 0 {
		return w.Fail(st, "no PDF documents found for keywords", map[string]any{"keywords": keywords})
	}

	st.Document = &types.Document{URL: links[0], Links: links}
	return w.Complete(st, map[string]any{
		"pdf_url":   links[0],
		"pdf_links": len(links),
	})
}

// OpinionSearch collects pages discussing the document's topic
type OpinionSearch struct {
	worker.Base
	cfg      Config
	searcher Searcher
}

// NewOpinionSearch creates the search_opinions worker. A nil searcher
// yields no results.
func NewOpinionSearch(cfg Config, searcher Searcher, logw io.Writer) *OpinionSearch {
	return &OpinionSearch{
		Base:     worker.NewBase(types.TaskSearchOpinions, "[SEARCH] ", logw),
		cfg:      cfg.WithDefaults(),
		searcher: searcher,
	}
}

func (w *OpinionSearch) Execute(ctx context.Context, st *types.State) (*types.State, error) {
	if !worker.Owns(st, w.TaskType) {
		return st, nil
	}

	keywords, _ := st.CurrentTask.Input["keywords"].([]string)
	topic, _ := st.CurrentTask.Input["base_topic"].(string)
	queries := BuildQueries(topic, keywords, w.cfg.MaxQueries)
	if len(queries) == 0 {
		return w.Fail(st, "no search queries could be built", nil)
	}

	var found []types.SearchResult
	seen := map[string]bool{}
	calls := 0
	for _, q := range queries {
		if w.searcher == nil || calls == w.cfg.SearchCalls {
			break
		}
		calls++
		results, err := w.searcher.Search(ctx, q, w.cfg.ResultsPerQuery)
		if err != nil {
			w.Warn(st, fmt.Sprintf("search %q failed: %v", q, err))
			continue
		}
		for _, r := range results {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			found = append(found, r)
		}
	}

	final, trusted := RankResults(found, w.cfg.TrustedDomains, w.cfg.MaxResults)
	st.SearchQueries = queries
	st.SearchResults = final
	if len(final) == 0 {
		w.Warn(st, "no search results found")
	}
	w.Logger.Printf("Search results: %d trusted, %d total, %d kept", trusted, len(found), len(final))

	return w.Complete(st, map[string]any{
		"search_queries":  queries,
		"total_results":   len(found),
		"trusted_results": trusted,
		"final_results":   len(final),
	})
}

// BuildQueries derives up to limit distinct queries from the topic and the
// leading keywords
func BuildQueries(topic string, keywords []string, limit int) []string {
	topic = strings.TrimSpace(topic)
	var candidates []string
	if topic != "" {
		candidates = append(candidates,
			topic+" public opinion",
			topic+" comments",
			topic+" discussion",
			"feedback on "+topic,
			"review of "+topic,
		)
	}
	for i, kw := range keywords {
		if i == 5 {
			break
		}
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if topic != "" {
			candidates = append(candidates, topic+" "+kw)
		} else {
			candidates = append(candidates, kw+" opinion")
		}
	}

	var out []string
	seen := map[string]bool{}
	for _, q := range candidates {
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// RankResults puts results from trusted domains first, keeping the input
// order within each group, and caps the total. It returns the ranked slice
// and how many trusted results it contains.
func RankResults(results []types.SearchResult, trusted []string, limit int) ([]types.SearchResult, int) {
	ranked := append([]types.SearchResult(nil), results...)
	isTrusted := func(r types.SearchResult) bool {
		u, err := url.Parse(r.URL)
		if err != nil {
			return false
		}
		host := strings.ToLower(u.Hostname())
		for _, d := range trusted {
			if host == d || strings.HasSuffix(host, "."+d) {
				return true
			}
		}
		return false
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return isTrusted(ranked[i]) && !isTrusted(ranked[j])
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	n := 0
	for _, r := range ranked {
		if isTrusted(r) {
			n++
		}
	}
	return ranked, n
}
