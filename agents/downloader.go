package agents

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/GraphResearcher/AutoData/sdk/worker"
	"github.com/GraphResearcher/AutoData/types"
)

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Downloader stores the located document under the data directory
type Downloader struct {
	worker.Base
	cfg Config
}

// NewDownloader creates the download_pdf worker
func NewDownloader(cfg Config, logw io.Writer) *Downloader {
	return &Downloader{
		Base: worker.NewBase(types.TaskDownloadPDF, "[PDF] ", logw),
		cfg:  cfg.WithDefaults(),
	}
}

func (w *Downloader) Execute(ctx context.Context, st *types.State) (*types.State, error) {
	if !worker.Owns(st, w.TaskType) {
		return st, nil
	}

	pdfURL, _ := st.CurrentTask.Input["pdf_url"].(string)
	if pdfURL == "" {
		return w.Fail(st, "pdf_url is required", nil)
	}

	w.Logger.Printf("Downloading %s", pdfURL)
	data, _, err := fetch(ctx, w.cfg, pdfURL, w.cfg.MaxDocumentBytes)
	if err != nil {
		return w.Fail(st, fmt.Sprintf("failed to download %s: %v", pdfURL, err), map[string]any{"pdf_url": pdfURL})
	}
	if !isPDF(data) {
		w.Warn(st, fmt.Sprintf("%s does not look like a PDF", pdfURL))
	}

	if err := os.MkdirAll(w.cfg.PDFDir(), 0o755); err != nil {
		return w.Fail(st, fmt.Sprintf("failed to create %s: %v", w.cfg.PDFDir(), err), nil)
	}
	dest := filepath.Join(w.cfg.PDFDir(), documentFileName(pdfURL, st.Now().Format("20060102_150405")))
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return w.Fail(st, fmt.Sprintf("failed to save document: %v", err), map[string]any{"path": dest})
	}

	pages := countPages(data)
	if st.Document == nil {
		st.Document = &types.Document{URL: pdfURL}
	}
	st.Document.LocalPath = dest
	st.Document.FileSize = int64(len(data))
	st.Document.PageCount = pages

	return w.Complete(st, map[string]any{
		"pdf_path":   dest,
		"file_size":  len(data),
		"page_count": pages,
	})
}

// documentFileName derives a safe local file name from the URL path
func documentFileName(raw, stamp string) string {
	name := ""
	if u, err := url.Parse(raw); err == nil {
		name = path.Base(u.Path)
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.Trim(unsafeNameRe.ReplaceAllString(name, "_"), "._-")
	if name == "" {
		name = "document_" + stamp
	}
	return name + ".pdf"
}
