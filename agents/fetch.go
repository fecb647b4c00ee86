package agents

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

var (
	ErrTooLarge       = errors.New("response exceeds size limit")
	ErrUnexpectedHTTP = errors.New("unexpected HTTP status")

	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
)

// fetch GETs rawURL and returns at most limit bytes of the body together
// with the final URL after redirects.
func fetch(ctx context.Context, cfg Config, rawURL string, limit int64) ([]byte, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")
	// Setting Accept-Encoding turns off the transport's own gzip handling
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnexpectedHTTP, resp.Status)
	}
	if limit > 0 && resp.ContentLength > limit {
		return nil, nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, resp.ContentLength, limit)
	}

	r, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, nil, fmt.Errorf("decode body: %w", err)
	}
	defer r.Close()
	var lr io.Reader = r
	if limit > 0 {
		lr = io.LimitReader(r, limit+1)
	}
	body, err := io.ReadAll(lr)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	if limit > 0 && int64(len(body)) > limit {
		return nil, nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return body, resp.Request.URL, nil
}

// decodeBody unwraps a gzip or deflate content encoding. The limit in
// fetch applies to the decoded bytes.
func decodeBody(body io.Reader, encoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.NopCloser(body), nil
	case "gzip", "x-gzip":
		return gzip.NewReader(body)
	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw
		br := bufio.NewReader(body)
		head, err := br.Peek(2)
		if err == nil && (uint16(head[0])<<8|uint16(head[1]))%31 == 0 && head[0]&0x0f == 8 {
			return zlib.NewReader(br)
		}
		return flate.NewReader(br), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, encoding)
	}
}

// isPDFURL reports whether the URL path names a PDF file
func isPDFURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(raw), ".pdf")
	}
	return strings.EqualFold(path.Ext(u.Path), ".pdf")
}
