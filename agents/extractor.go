package agents

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/GraphResearcher/AutoData/sdk/worker"
	"github.com/GraphResearcher/AutoData/types"
)

// Extractor reads the downloaded document and extracts its keywords
type Extractor struct {
	worker.Base
	cfg      Config
	keywords KeywordExtractor
}

// NewExtractor creates the extract_content worker
func NewExtractor(cfg Config, logw io.Writer) *Extractor {
	return &Extractor{
		Base:     worker.NewBase(types.TaskExtractContent, "[EXTRACTOR] ", logw),
		cfg:      cfg.WithDefaults(),
		keywords: NewKeywordExtractor(cfg),
	}
}

func (w *Extractor) Execute(ctx context.Context, st *types.State) (*types.State, error) {
	if !worker.Owns(st, w.TaskType) {
		return st, nil
	}

	pdfPath, _ := st.CurrentTask.Input["pdf_path"].(string)
	if pdfPath == "" {
		return w.Fail(st, "pdf_path is required", nil)
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return w.Fail(st, fmt.Sprintf("failed to read document: %v", err), map[string]any{"pdf_path": pdfPath})
	}
	if err := ctx.Err(); err != nil {
		return st, err
	}

	text, err := documentText(data)
	if err != nil {
		return w.Fail(st, fmt.Sprintf("failed to parse document: %v", err), map[string]any{"pdf_path": pdfPath})
	}
	if text = strings.TrimSpace(text); text == "" {
		return w.Fail(st, "no text could be extracted from the document", map[string]any{"pdf_path": pdfPath})
	}

	kw := w.keywords.Extract(text)
	if st.Document == nil {
		st.Document = &types.Document{LocalPath: pdfPath}
	}
	st.Document.Content = text
	st.Keywords = &kw
	if kw.Empty() {
		w.Warn(st, "no keywords extracted from the document")
	}

	w.Logger.Printf("Extracted %d characters, %d keywords", len(text), len(kw.Main))
	return w.Complete(st, map[string]any{
		"text_length":    len(text),
		"keywords_count": len(kw.Main),
		"phrases_count":  len(kw.Phrases),
	})
}
