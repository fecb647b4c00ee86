package agents

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

// isPDF reports whether data starts with the PDF header
func isPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), pdfMagic)
}

func openPDF(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("malformed PDF: %v", p)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// countPages returns the page count from the document's page tree. It is
// zero for anything that cannot be read as a PDF.
func countPages(data []byte) int {
	if !isPDF(data) {
		return 0
	}
	r, err := openPDF(data)
	if err != nil {
		return 0
	}
	return r.NumPage()
}

// documentText returns the text of a PDF page by page, or the data itself
// for anything else
func documentText(data []byte) (string, error) {
	if !isPDF(data) {
		return toUTF8(data), nil
	}
	r, err := openPDF(data)
	if err != nil {
		return "", err
	}

	fonts := map[string]*pdf.Font{}
	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if text = normalizeSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n"), nil
}

// normalizeSpace collapses blanks inside each line and drops empty lines
func normalizeSpace(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// toUTF8 reads bytes that are not valid UTF-8 as Latin-1
func toUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
