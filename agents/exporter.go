package agents

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GraphResearcher/AutoData/sdk/worker"
	"github.com/GraphResearcher/AutoData/types"
)

// utf8BOM lets spreadsheet tools detect the encoding
const utf8BOM = "\xEF\xBB\xBF"

var articleColumns = []string{"url", "title", "author", "summary", "content", "source", "scraped_at"}

// Exporter writes the collected articles to CSV
type Exporter struct {
	worker.Base
	cfg Config
}

// NewExporter creates the export_data worker
func NewExporter(cfg Config, logw io.Writer) *Exporter {
	return &Exporter{
		Base: worker.NewBase(types.TaskExportData, "[EXPORTER] ", logw),
		cfg:  cfg.WithDefaults(),
	}
}

func (w *Exporter) Execute(ctx context.Context, st *types.State) (*types.State, error) {
	if !worker.Owns(st, w.TaskType) {
		return st, nil
	}
	if len(st.Articles) == 0 {
		return w.Fail(st, "no articles to export", nil)
	}

	if err := os.MkdirAll(w.cfg.CSVDir(), 0o755); err != nil {
		return w.Fail(st, fmt.Sprintf("failed to create %s: %v", w.cfg.CSVDir(), err), nil)
	}
	name := fmt.Sprintf("%s_articles_%s.csv", slug(st.ProjectName), st.Now().Format("20060102_150405"))
	dest := filepath.Join(w.cfg.CSVDir(), name)

	if err := writeArticles(dest, st.Articles); err != nil {
		return w.Fail(st, fmt.Sprintf("failed to export CSV: %v", err), map[string]any{"path": dest})
	}
	st.CSVOutputPath = dest

	w.Logger.Printf("Exported %d articles to %s", len(st.Articles), dest)
	return w.Complete(st, map[string]any{
		"csv_path": dest,
		"rows":     len(st.Articles),
	})
}

func writeArticles(dest string, articles []types.Article) (err error) {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err := io.WriteString(f, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(articleColumns); err != nil {
		return err
	}
	for _, a := range articles {
		row := []string{a.URL, a.Title, a.Author, a.Summary, a.Content, a.Source, a.ScrapedAt.Format(time.RFC3339)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// slug turns a project name into a file name prefix
func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(unsafeNameRe.ReplaceAllString(strings.ReplaceAll(s, " ", "_"), "_"), "._-")
	if s == "" {
		return "project"
	}
	return s
}
