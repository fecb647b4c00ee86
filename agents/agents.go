package agents

import (
	"io"

	"github.com/GraphResearcher/AutoData/sdk/worker"
)

// Workers returns one handler for every task type of the collection
// workflow, ready to be registered with the engine
func Workers(cfg Config, searcher Searcher, logw io.Writer) []worker.Handler {
	cfg = cfg.WithDefaults()
	return []worker.Handler{
		NewCrawler(cfg, logw),
		NewDocumentSearch(cfg, searcher, logw),
		NewDownloader(cfg, logw),
		NewExtractor(cfg, logw),
		NewOpinionSearch(cfg, searcher, logw),
		NewScraper(cfg, logw),
		NewExporter(cfg, logw),
	}
}
