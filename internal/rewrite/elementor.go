package rewrite

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/JakeFAU/site-cloner/internal/extract"
)

const (
	carouselGridClass = "elementor-carousel-fallback"
	carouselGridStyle = "display: grid; grid-template-columns: repeat(auto-fit, minmax(250px, 1fr)); gap: 15px; padding: 20px 0;"
	carouselImgStyle  = "width: 100%; height: auto; max-width: 100%; display: block;"
)

// flattenCarousels replaces multi-slide image carousels with a static grid
// of their images. Without the slider script only the first slide shows.
func flattenCarousels(sel *goquery.Selection) int {
	count := 0
	sel.Find("div.elementor-image-carousel-wrapper").Each(func(_ int, carousel *goquery.Selection) {
		slides := carousel.Find("div.swiper-wrapper div.swiper-slide")
		if slides.Length() <= 1 {
			return
		}
		grid := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
		extract.SetAttr(grid, "class", carouselGridClass)
		extract.SetAttr(grid, "style", carouselGridStyle)
		slides.Find("figure img").Each(func(_ int, img *goquery.Selection) {
			src := img.Get(0)
			copied := &html.Node{
				Type:     html.ElementNode,
				Data:     "img",
				DataAtom: atom.Img,
				Attr:     append([]html.Attribute(nil), src.Attr...),
			}
			extract.SetAttr(copied, "style", carouselImgStyle)
			grid.AppendChild(copied)
		})
		if grid.FirstChild == nil {
			return
		}
		carousel.ReplaceWithNodes(grid)
		count++
	})
	return count
}

type cssFix struct {
	pattern     *regexp.Regexp
	replacement string
}

// elementorCSSFixes undo stylesheet rules that only make sense while the
// page-builder scripts run: unsized carousel slides and elements hidden
// until an entrance animation plays.
var elementorCSSFixes = []cssFix{
	{
		regexp.MustCompile(`(?is)(\.elementor-image-carousel-wrapper(?::not\(\.swiper-initialized\))?\s+\.swiper-slide)\s*\{[^}]*max-width:\s*calc\([^}]*\}`),
		"${1} { width: 100% !important; max-width: 100% !important; }",
	},
	{
		regexp.MustCompile(`(?is)(\.elementor-image-carousel\s+\.swiper-slide)\s*\{[^}]*display:\s*none[^}]*\}`),
		"${1} { display: block !important; }",
	},
	{
		regexp.MustCompile(`(?is)(\.elementor-invisible)\s*\{[^}]*\}`),
		"${1} { opacity: 1 !important; visibility: visible !important; }",
	},
	{
		regexp.MustCompile(`(?is)(\.animated)\s*\{[^}]*opacity:\s*0[^}]*\}`),
		"${1} { opacity: 1 !important; visibility: visible !important; }",
	},
}

// fixElementorCSS applies elementorCSSFixes and counts the rules rewritten.
func fixElementorCSS(css string) (string, int) {
	count := 0
	for _, fix := range elementorCSSFixes {
		n := len(fix.pattern.FindAllStringIndex(css, -1))
		if n == 0 {
			continue
		}
		css = fix.pattern.ReplaceAllString(css, fix.replacement)
		count += n
	}
	return css, count
}
