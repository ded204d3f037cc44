package extract

import (
	"bytes"
	"fmt"
	"net/url"

	"golang.org/x/net/html"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

// Parse parses an HTML document.
func Parse(body []byte) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Render serializes a document.
func Render(doc *html.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

// BaseURL returns the URL relative references in doc resolve against: the
// first <base href> resolved against pageURL, or pageURL itself.
func BaseURL(doc *html.Node, pageURL *url.URL) *url.URL {
	base := findFirst(doc, "base")
	if base == nil {
		return pageURL
	}
	href := Attr(base, "href")
	if href == "" {
		return pageURL
	}
	ref, err := url.Parse(href)
	if err != nil {
		return pageURL
	}
	if pageURL == nil {
		return ref
	}
	return pageURL.ResolveReference(ref)
}

// StripBase removes <base> elements, which would otherwise redirect local
// references back to the origin.
func StripBase(doc *html.Node) {
	for {
		base := findFirst(doc, "base")
		if base == nil || base.Parent == nil {
			return
		}
		base.Parent.RemoveChild(base)
	}
}

// HTML returns the deduplicated asset references of doc in document order.
func HTML(doc *html.Node, pageURL *url.URL) []cloner.AssetRef {
	base := BaseURL(doc, pageURL)
	parent := ""
	if pageURL != nil {
		parent = pageURL.String()
	}
	c := newCollector(base, parent)
	RewriteHTML(doc, c.visit)
	return c.refs
}

// CSS returns the deduplicated url() and @import references of a stylesheet,
// resolved against the stylesheet's own URL.
func CSS(css string, cssURL *url.URL) []cloner.AssetRef {
	parent := ""
	if cssURL != nil {
		parent = cssURL.String()
	}
	c := newCollector(cssURL, parent)
	RewriteCSS(css, c.visit)
	return c.refs
}

type collector struct {
	base   *url.URL
	parent string
	seen   map[string]struct{}
	refs   []cloner.AssetRef
}

func newCollector(base *url.URL, parent string) *collector {
	return &collector{base: base, parent: parent, seen: make(map[string]struct{})}
}

func (c *collector) visit(kind cloner.AssetKind, raw string) (string, bool) {
	abs, ok := cloner.ResolveReference(c.base, raw)
	if !ok {
		return "", false
	}
	key := cloner.DedupKey(abs)
	if _, dup := c.seen[key]; dup {
		return "", false
	}
	c.seen[key] = struct{}{}
	c.refs = append(c.refs, cloner.AssetRef{Kind: kind, Raw: raw, URL: abs, Parent: c.parent})
	return "", false
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}
