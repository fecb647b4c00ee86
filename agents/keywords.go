package agents

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/GraphResearcher/AutoData/types"
)

const (
	maxPhrases    = 10
	maxEntities   = 10
	maxSummaryLen = 300
)

// DefaultStopwords returns common English and Vietnamese function words
func DefaultStopwords() []string {
	return []string{
		"the", "and", "for", "are", "but", "not", "you", "all", "any", "can",
		"had", "her", "was", "one", "our", "out", "has", "his", "how", "its",
		"may", "new", "now", "own", "who", "did", "get", "let", "put", "say",
		"she", "too", "use", "that", "this", "with", "from", "they", "will",
		"would", "there", "their", "what", "about", "which", "when", "were",
		"been", "have", "into", "more", "other", "than", "then", "them",
		"these", "some", "such", "only", "also", "shall", "must", "each",
		"under", "upon", "where", "while", "those", "being", "should",
		"và", "của", "có", "trong", "được", "cho", "về", "với", "này",
		"đó", "các", "những", "để", "từ", "theo", "trên", "không", "là",
		"thì", "sẽ", "đã", "đang", "khi", "nếu", "hoặc", "nhưng", "vì",
	}
}

// KeywordExtractor ranks terms of a document by frequency
type KeywordExtractor struct {
	MinLength    int
	MinFrequency int
	MaxKeywords  int
	stopwords    map[string]bool
}

// NewKeywordExtractor builds an extractor from the worker configuration
func NewKeywordExtractor(cfg Config) KeywordExtractor {
	cfg = cfg.WithDefaults()
	stop := make(map[string]bool, len(cfg.Stopwords))
	for _, w := range cfg.Stopwords {
		stop[strings.ToLower(w)] = true
	}
	return KeywordExtractor{
		MinLength:    cfg.MinKeywordLength,
		MinFrequency: cfg.MinKeywordFrequency,
		MaxKeywords:  cfg.MaxKeywords,
		stopwords:    stop,
	}
}

type termCount struct {
	term  string
	count int
}

// Extract returns the main keywords, frequent bigrams, capitalised entities
// and a one-sentence summary of text
func (k KeywordExtractor) Extract(text string) types.Keywords {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	words := map[string]int{}
	pairs := map[string]int{}
	entities := map[string]int{}
	prev := ""
	var run []string
	flushRun := func() {
		if len(run) >= 2 {
			entities[strings.Join(run, " ")]++
		}
		run = run[:0]
	}

	for _, tok := range tokens {
		first, _ := utf8.DecodeRuneInString(tok)
		if unicode.IsUpper(first) && utf8.RuneCountInString(tok) > 1 {
			run = append(run, tok)
		} else {
			flushRun()
		}

		lower := strings.ToLower(tok)
		if !k.keep(lower) {
			prev = ""
			continue
		}
		words[lower]++
		if prev != "" {
			pairs[prev+" "+lower]++
		}
		prev = lower
	}
	flushRun()

	return types.Keywords{
		Main:     topTerms(words, k.MinFrequency, k.MaxKeywords),
		Phrases:  topTerms(pairs, k.MinFrequency, maxPhrases),
		Entities: topTerms(entities, 1, maxEntities),
		Summary:  firstSentence(text, maxSummaryLen),
	}
}

func (k KeywordExtractor) keep(word string) bool {
	if utf8.RuneCountInString(word) < k.MinLength || k.stopwords[word] {
		return false
	}
	for _, r := range word {
		if !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// topTerms returns terms seen at least minCount times, most frequent first and
// alphabetical among equals
func topTerms(counts map[string]int, minCount, limit int) []string {
	var ranked []termCount
	for t, c := range counts {
		if c >= minCount {
			ranked = append(ranked, termCount{t, c})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].term < ranked[j].term
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, tc := range ranked {
		out[i] = tc.term
	}
	return out
}

func firstSentence(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		text = text[:i+1]
	}
	if utf8.RuneCountInString(text) > limit {
		text = string([]rune(text)[:limit])
	}
	return text
}
