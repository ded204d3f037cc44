package rewrite

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/site-cloner/internal/extract"
)

// animationClasses hide elements until a page-builder script reveals them.
var animationClasses = map[string]bool{
	"animated-slow":       true,
	"animated":            true,
	"elementor-invisible": true,
	"zoomIn":              true,
	"fadeIn":              true,
	"slideInUp":           true,
	"slideInDown":         true,
	"slideInLeft":         true,
	"slideInRight":        true,
	"bounceIn":            true,
	"rotateIn":            true,
	"flipInX":             true,
	"flipInY":             true,
	"lightSpeedIn":        true,
	"hinge":               true,
}

const revealStyle = "opacity: 1 !important; visibility: visible !important;"

// lazySourceAttrs hold the real image source for lazy loaders, in order of
// preference.
var lazySourceAttrs = []string{"data-src", "data-litespeed-src"}

// PromoteLazyImages moves a lazy-loader source into src when src is missing
// or only a placeholder, so the extractor fetches the real image. It runs
// whether or not cleanup is requested.
func PromoteLazyImages(doc *html.Node) int {
	count := 0
	goquery.NewDocumentFromNode(doc).Find("img[data-src], img[data-litespeed-src]").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		var lazy string
		for _, attr := range lazySourceAttrs {
			if lazy = strings.TrimSpace(extract.Attr(n, attr)); lazy != "" {
				break
			}
		}
		if lazy == "" {
			return
		}
		src := extract.Attr(n, "src")
		if src != "" && !isPlaceholder(src) {
			return
		}
		extract.SetAttr(n, "src", lazy)
		for _, attr := range lazySourceAttrs {
			extract.RemoveAttr(n, attr)
		}
		extract.RemoveAttr(n, "data-lazyloaded")
		extract.RemoveAttr(n, "loading")
		count++
	})
	return count
}

func isPlaceholder(src string) bool {
	lower := strings.ToLower(strings.TrimSpace(src))
	return strings.Contains(lower, "svg+xml;base64") || strings.HasPrefix(lower, "data:")
}

// removeLiteSpeed drops the LiteSpeed cache loader and the attributes it
// leaves behind. Delayed scripts are removed too; a clone has no loader to
// run them. Image sources were already promoted by PromoteLazyImages, so a
// leftover data-litespeed-src is only dropped.
func removeLiteSpeed(sel *goquery.Selection) int {
	count := 0
	sel.Find("script").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		typ := strings.ToLower(extract.Attr(n, "type"))
		src := strings.ToLower(extract.Attr(n, "src"))
		remove := typ == "litespeed/javascript" ||
			strings.Contains(src, "litespeed") ||
			strings.Contains(src, "guest.vary.php") ||
			(src == "" && strings.Contains(strings.ToLower(s.Text()), "litespeed"))
		if remove {
			s.Remove()
			count++
		}
	})
	sel.Find("noscript").Each(func(_ int, s *goquery.Selection) {
		if strings.Contains(strings.ToLower(s.Text()), "litespeed") {
			s.Remove()
			count++
		}
	})
	sel.Find("[data-litespeed-src], [data-lazyloaded]").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		extract.RemoveAttr(n, "data-litespeed-src")
		extract.RemoveAttr(n, "data-lazyloaded")
		count++
	})
	return count
}

// revealAnimated strips entrance-animation classes and forces the element
// visible, since the script that would animate it in is gone.
func revealAnimated(sel *goquery.Selection) int {
	count := 0
	sel.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		classes := strings.Fields(extract.Attr(n, "class"))
		kept := classes[:0]
		for _, c := range classes {
			if !animationClasses[c] {
				kept = append(kept, c)
			}
		}
		if len(kept) == len(classes) {
			return
		}
		extract.SetAttr(n, "class", strings.Join(kept, " "))

		style := strings.TrimSpace(extract.Attr(n, "style"))
		if !strings.Contains(style, "opacity") {
			if style != "" && !strings.HasSuffix(style, ";") {
				style += ";"
			}
			if style != "" {
				style += " "
			}
			extract.SetAttr(n, "style", style+revealStyle)
		}
		if strings.Contains(extract.Attr(n, "data-settings"), "animation") {
			extract.RemoveAttr(n, "data-settings")
		}
		extract.RemoveAttr(n, "data-animation")
		count++
	})
	return count
}
