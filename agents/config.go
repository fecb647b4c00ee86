// Package agents contains the data-collection workers driven by the engine.
package agents

import (
	"net/http"
	"path/filepath"
	"time"
)

// Default configuration values
const (
	DefaultDataDir             = "data"
	DefaultUserAgent           = "Mozilla/5.0 (compatible; AutoData/1.0; +https://github.com/GraphResearcher/AutoData)"
	DefaultRequestTimeout      = 30 * time.Second
	DefaultMaxDocumentBytes    = 50 << 20
	DefaultMaxPageBytes        = 5 << 20
	DefaultMinKeywordLength    = 3
	DefaultMinKeywordFrequency = 2
	DefaultMaxKeywords         = 50
	DefaultMaxQueries          = 10
	DefaultSearchCalls         = 3
	DefaultResultsPerQuery     = 10
	DefaultMaxResults          = 30
	DefaultScrapeConcurrency   = 4
	DefaultScrapeBatchSize     = 10
	DefaultMinArticleChars     = 100
)

// DefaultTrustedDomains are news and government sites ranked first in
// opinion search results
var DefaultTrustedDomains = []string{
	"vnexpress.net",
	"tuoitre.vn",
	"thanhnien.vn",
	"dantri.com.vn",
	"vietnamnet.vn",
	"baomoi.com",
	"tienphong.vn",
	"mst.gov.vn",
}

// Config holds the settings shared by the workers. Zero values are
// replaced by defaults.
type Config struct {
	DataDir   string
	UserAgent string

	HTTPClient     *http.Client
	RequestTimeout time.Duration

	MaxDocumentBytes int64
	MaxPageBytes     int64

	MinKeywordLength    int
	MinKeywordFrequency int
	MaxKeywords         int
	Stopwords           []string

	MaxQueries      int
	SearchCalls     int
	ResultsPerQuery int
	MaxResults      int
	TrustedDomains  []string

	ScrapeConcurrency int
	ScrapeBatchSize   int
	MinArticleChars   int
}

// WithDefaults returns a copy with every unset field defaulted
func (c Config) WithDefaults() Config {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.RequestTimeout}
	}
	if c.MaxDocumentBytes <= 0 {
		c.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if c.MaxPageBytes <= 0 {
		c.MaxPageBytes = DefaultMaxPageBytes
	}
	if c.MinKeywordLength <= 0 {
		c.MinKeywordLength = DefaultMinKeywordLength
	}
	if c.MinKeywordFrequency <= 0 {
		c.MinKeywordFrequency = DefaultMinKeywordFrequency
	}
	if c.MaxKeywords <= 0 {
		c.MaxKeywords = DefaultMaxKeywords
	}
	if c.Stopwords == nil {
		c.Stopwords = DefaultStopwords()
	}
	if c.MaxQueries <= 0 {
		c.MaxQueries = DefaultMaxQueries
	}
	if c.SearchCalls <= 0 {
		c.SearchCalls = DefaultSearchCalls
	}
	if c.ResultsPerQuery <= 0 {
		c.ResultsPerQuery = DefaultResultsPerQuery
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.TrustedDomains == nil {
		c.TrustedDomains = append([]string(nil), DefaultTrustedDomains...)
	}
	if c.ScrapeConcurrency <= 0 {
		c.ScrapeConcurrency = DefaultScrapeConcurrency
	}
	if c.ScrapeBatchSize <= 0 {
		c.ScrapeBatchSize = DefaultScrapeBatchSize
	}
	if c.MinArticleChars <= 0 {
		c.MinArticleChars = DefaultMinArticleChars
	}
	return c
}

// PDFDir is where downloaded documents are stored
func (c Config) PDFDir() string {
	return filepath.Join(c.DataDir, "pdfs")
}

// CSVDir is where exports are written
func (c Config) CSVDir() string {
	return filepath.Join(c.DataDir, "csv")
}
