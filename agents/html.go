package agents

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// parsePage parses an HTML document. The parser recovers from broken
// markup the way browsers do, so errors are limited to read failures.
func parsePage(body []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(body))
}

// walk visits n and its descendants in document order. Children are
// skipped when fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func isNoise(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template:
		return true
	}
	return false
}

// nodeText returns the visible text below n with whitespace collapsed
func nodeText(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && isNoise(c) {
			return false
		}
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return strings.Join(strings.Fields(sb.String()), " ")
}

// firstElement returns the first element of type a in document order
func firstElement(doc *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(doc, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && n.DataAtom == a {
			found = n
			return false
		}
		return true
	})
	return found
}

// metaContent returns the content of the first meta tag whose name or
// property equals one of keys
func metaContent(doc *html.Node, keys ...string) string {
	var content string
	found := false
	walk(doc, func(n *html.Node) bool {
		if found {
			return false
		}
		if n.Type != html.ElementNode || n.DataAtom != atom.Meta {
			return true
		}
		id := strings.ToLower(attr(n, "name"))
		if id == "" {
			id = strings.ToLower(attr(n, "property"))
		}
		for _, k := range keys {
			if id == k {
				content = strings.Join(strings.Fields(attr(n, "content")), " ")
				found = true
			}
		}
		return false
	})
	return content
}

func pageTitle(doc *html.Node) string {
	if t := metaContent(doc, "og:title"); t != "" {
		return t
	}
	if n := firstElement(doc, atom.Title); n != nil {
		if t := nodeText(n); t != "" {
			return t
		}
	}
	if n := firstElement(doc, atom.H1); n != nil {
		return nodeText(n)
	}
	return ""
}

// pdfLinks returns the distinct PDF links of a page resolved against base
func pdfLinks(base *url.URL, doc *html.Node) []string {
	var links []string
	seen := map[string]bool{}
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.A {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(attr(n, "href")))
		if err != nil || ref.String() == "" {
			return true
		}
		abs := ref
		if base != nil {
			abs = base.ResolveReference(ref)
		}
		abs.Fragment = ""
		link := abs.String()
		if isPDFURL(link) && !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
		return true
	})
	return links
}

// paragraphs returns the non-empty paragraph texts of a page
func paragraphs(doc *html.Node) []string {
	var out []string
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		if isNoise(n) {
			return false
		}
		if n.DataAtom == atom.P {
			if p := nodeText(n); p != "" {
				out = append(out, p)
			}
			return false
		}
		return true
	})
	return out
}
