package agents

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GraphResearcher/AutoData/agents/pdftest"
	"github.com/GraphResearcher/AutoData/types"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestDocumentTextReadsPages(t *testing.T) {
	t.Parallel()
	for _, compress := range []bool{true, false} {
		doc := pdftest.Build(compress,
			"BT /F1 12 Tf 72 712 Td (Science and   technology law ) Tj ET",
			"BT /F1 12 Tf 72 712 Td (Technology transfer ) Tj ET",
		)
		got, err := documentText(doc)
		if err != nil {
			t.Fatalf("documentText: %v", err)
		}
		if got != "Science and technology law\nTechnology transfer" {
			t.Fatalf("compress=%v: documentText = %q", compress, got)
		}
		if n := countPages(doc); n != 2 {
			t.Fatalf("compress=%v: countPages = %d", compress, n)
		}
	}
}

func TestDocumentTextRejectsMalformedPDF(t *testing.T) {
	t.Parallel()
	broken := []byte("%PDF-1.4\n" + strings.Repeat("garbage ", 20) + "\n%%EOF\n")
	if _, err := documentText(broken); err == nil {
		t.Fatalf("expected an error for a PDF without a cross-reference table")
	}
	if n := countPages(broken); n != 0 {
		t.Fatalf("countPages = %d", n)
	}
	if got, err := documentText([]byte("plain notes")); err != nil || got != "plain notes" {
		t.Fatalf("plain text = %q (%v)", got, err)
	}
}

func TestToUTF8Latin1Fallback(t *testing.T) {
	t.Parallel()
	if got := toUTF8([]byte{'c', 0xE9}); got != "cé" {
		t.Fatalf("latin-1 fallback = %q", got)
	}
	if got := toUTF8([]byte("Luật")); got != "Luật" {
		t.Fatalf("utf-8 input changed: %q", got)
	}
}

func TestExtractorBuildsKeywords(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "law.pdf", pdftest.Build(true,
		"BT /F1 12 Tf 72 712 Td (Science and technology law ) Tj 0 -14 Td (Technology transfer and science funding ) Tj ET"))
	st := taskState(t, types.TaskExtractContent, map[string]any{"pdf_path": path})

	st, err := NewExtractor(Config{}, nil).Execute(context.Background(), st)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if st.CurrentTask.Status != types.TaskStatusCompleted {
		t.Fatalf("extract failed: %s", st.CurrentTask.Error)
	}
	if got := st.Keywords.Main; len(got) != 2 || got[0] != "science" || got[1] != "technology" {
		t.Fatalf("unexpected keywords %v", got)
	}
	if !strings.HasPrefix(st.Document.Content, "Science and technology law") {
		t.Fatalf("content not stored: %q", st.Document.Content)
	}
}

func TestExtractorPlainTextWithoutKeywordsWarns(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "note.txt", []byte("A short note."))
	st := taskState(t, types.TaskExtractContent, map[string]any{"pdf_path": path})

	st, _ = NewExtractor(Config{}, nil).Execute(context.Background(), st)
	if st.CurrentTask.Status != types.TaskStatusCompleted {
		t.Fatalf("expected completion, got %s", st.CurrentTask.Status)
	}
	if !st.Keywords.Empty() || len(st.Warnings) != 1 {
		t.Fatalf("expected empty keywords with a warning, got %v %v", st.Keywords, st.Warnings)
	}
}

func TestExtractorFailsOnEmptyDocument(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "empty.pdf", pdftest.Build(false, ""))
	st := taskState(t, types.TaskExtractContent, map[string]any{"pdf_path": path})

	st, _ = NewExtractor(Config{}, nil).Execute(context.Background(), st)
	if st.CurrentTask.Status != types.TaskStatusFailed || st.CurrentTask.Error != "no text could be extracted from the document" {
		t.Fatalf("unexpected task: %+v", st.CurrentTask)
	}

	broken := taskState(t, types.TaskExtractContent, map[string]any{"pdf_path": writeFile(t, "broken.pdf", []byte("%PDF-1.4\nnot a document\n"))})
	broken, _ = NewExtractor(Config{}, nil).Execute(context.Background(), broken)
	if broken.CurrentTask.Status != types.TaskStatusFailed || !strings.HasPrefix(broken.CurrentTask.Error, "failed to parse document") {
		t.Fatalf("unexpected task for a broken PDF: %+v", broken.CurrentTask)
	}

	missing := taskState(t, types.TaskExtractContent, map[string]any{"pdf_path": filepath.Join(t.TempDir(), "nope.pdf")})
	missing, _ = NewExtractor(Config{}, nil).Execute(context.Background(), missing)
	if missing.CurrentTask.Status != types.TaskStatusFailed {
		t.Fatalf("expected failure for a missing file")
	}
}

func TestKeywordExtractor(t *testing.T) {
	t.Parallel()
	text := "The National Assembly passed the law in 2024. The National Assembly debated science policy and science funding."
	kw := NewKeywordExtractor(Config{}).Extract(text)

	want := []string{"assembly", "national", "science"}
	if len(kw.Main) != len(want) {
		t.Fatalf("Main = %v, want %v", kw.Main, want)
	}
	for i := range want {
		if kw.Main[i] != want[i] {
			t.Fatalf("Main = %v, want %v", kw.Main, want)
		}
	}
	if len(kw.Phrases) != 1 || kw.Phrases[0] != "national assembly" {
		t.Fatalf("Phrases = %v", kw.Phrases)
	}
	if len(kw.Entities) == 0 || kw.Entities[0] != "The National Assembly" {
		t.Fatalf("Entities = %v", kw.Entities)
	}
	if kw.Summary != "The National Assembly passed the law in 2024." {
		t.Fatalf("Summary = %q", kw.Summary)
	}
}

func TestKeywordExtractorSkipsStopwordsAndNumbers(t *testing.T) {
	t.Parallel()
	kw := NewKeywordExtractor(Config{MinKeywordFrequency: 1}).Extract("của của 2024 2024 và và luật luật")
	if len(kw.Main) != 1 || kw.Main[0] != "luật" {
		t.Fatalf("Main = %v", kw.Main)
	}
}
