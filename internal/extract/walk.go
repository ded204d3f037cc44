package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

// Visitor is called with each reference exactly as written in the source.
// Returning ok replaces the reference with replacement.
type Visitor func(kind cloner.AssetKind, raw string) (replacement string, ok bool)

// referenceSelector matches every element that can carry a resource reference.
const referenceSelector = "link[href], script[src], img, source, video, audio, input[type=image], [style], style"

// RewriteHTML walks the document in order and visits every resource
// reference: stylesheet, icon and preload links, script sources, image
// sources and source sets (including lazy-loading data- attributes), media
// sources and posters, inline style attributes and style blocks.
func RewriteHTML(root *html.Node, visit Visitor) {
	doc := goquery.NewDocumentFromNode(root)
	doc.Find(referenceSelector).Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		switch n.Data {
		case "link":
			if kind, ok := linkKind(n); ok {
				visitAttr(n, "href", kind, visit)
			}
		case "script":
			visitAttr(n, "src", cloner.AssetScript, visit)
		case "img", "input":
			visitAttr(n, "src", cloner.AssetImage, visit)
			visitAttr(n, "data-src", cloner.AssetImage, visit)
			visitSrcsetAttr(n, "srcset", cloner.AssetImage, visit)
			visitSrcsetAttr(n, "data-srcset", cloner.AssetImage, visit)
		case "source":
			kind := cloner.AssetImage
			if p := n.Parent; p != nil && (p.Data == "video" || p.Data == "audio") {
				kind = cloner.AssetMedia
			}
			visitAttr(n, "src", kind, visit)
			visitSrcsetAttr(n, "srcset", kind, visit)
			visitSrcsetAttr(n, "data-srcset", kind, visit)
		case "video", "audio":
			visitAttr(n, "src", cloner.AssetMedia, visit)
			visitAttr(n, "poster", cloner.AssetImage, visit)
		case "style":
			visitStyleBlock(n, visit)
		}
		if n.Data != "style" {
			if i := attrIndex(n, "style"); i >= 0 {
				n.Attr[i].Val = RewriteCSS(n.Attr[i].Val, visit)
			}
		}
	})
}

func linkKind(n *html.Node) (cloner.AssetKind, bool) {
	rels := strings.Fields(strings.ToLower(Attr(n, "rel")))
	for _, rel := range rels {
		switch rel {
		case "stylesheet":
			return cloner.AssetStylesheet, true
		case "icon", "apple-touch-icon", "mask-icon":
			return cloner.AssetImage, true
		case "preload", "prefetch":
			switch strings.ToLower(Attr(n, "as")) {
			case "style":
				return cloner.AssetStylesheet, true
			case "font":
				return cloner.AssetFont, true
			case "image":
				return cloner.AssetImage, true
			case "script":
				return cloner.AssetScript, true
			}
		}
	}
	return "", false
}

func visitAttr(n *html.Node, key string, kind cloner.AssetKind, visit Visitor) {
	i := attrIndex(n, key)
	if i < 0 {
		return
	}
	raw := n.Attr[i].Val
	if strings.TrimSpace(raw) == "" {
		return
	}
	if replacement, ok := visit(kind, raw); ok {
		n.Attr[i].Val = replacement
	}
}

func visitSrcsetAttr(n *html.Node, key string, kind cloner.AssetKind, visit Visitor) {
	i := attrIndex(n, key)
	if i < 0 {
		return
	}
	candidates := parseSrcset(n.Attr[i].Val)
	changed := false
	for j := range candidates {
		if replacement, ok := visit(kind, candidates[j].url); ok {
			candidates[j].url = replacement
			changed = true
		}
	}
	if changed {
		n.Attr[i].Val = formatSrcset(candidates)
	}
}

func visitStyleBlock(n *html.Node, visit Visitor) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			c.Data = RewriteCSS(c.Data, visit)
		}
	}
}

// Attr returns the value of key on n, or "".
func Attr(n *html.Node, key string) string {
	if i := attrIndex(n, key); i >= 0 {
		return n.Attr[i].Val
	}
	return ""
}

// SetAttr sets key on n, adding the attribute when missing.
func SetAttr(n *html.Node, key, val string) {
	if i := attrIndex(n, key); i >= 0 {
		n.Attr[i].Val = val
		return
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes key from n.
func RemoveAttr(n *html.Node, key string) {
	if i := attrIndex(n, key); i >= 0 {
		n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
	}
}

func attrIndex(n *html.Node, key string) int {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return i
		}
	}
	return -1
}
