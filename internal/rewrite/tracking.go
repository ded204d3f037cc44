package rewrite

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var trackingIDPattern = regexp.MustCompile(`(?i)GTM-[A-Z0-9]{7,8}`)

// replaceTrackingIDs swaps tag-manager container IDs in inline scripts, the
// noscript fallback and the script and iframe URLs that load the container.
func replaceTrackingIDs(sel *goquery.Selection, id string) int {
	replace := func(text string) (string, int) {
		return replaceTrackingText(text, id)
	}

	total := 0
	sel.Find("script, noscript").Each(func(_ int, s *goquery.Selection) {
		total += editText(s, replace)
	})
	sel.Find("script[src], iframe[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if updated, n := replace(src); n > 0 {
			s.SetAttr("src", updated)
			total += n
		}
	})
	return total
}

// replaceTrackingText swaps every container ID in text for id.
func replaceTrackingText(text, id string) (string, int) {
	n := len(trackingIDPattern.FindAllStringIndex(text, -1))
	if n == 0 {
		return text, 0
	}
	return trackingIDPattern.ReplaceAllLiteralString(text, strings.ToUpper(strings.TrimSpace(id))), n
}

// editText applies fn to the text children of the selected element. Script
// and noscript bodies are raw text nodes, so this edits their source as is.
func editText(s *goquery.Selection, fn func(string) (string, int)) int {
	total := 0
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.TextNode {
				continue
			}
			updated, count := fn(c.Data)
			if count > 0 {
				c.Data = updated
				total += count
			}
		}
	}
	return total
}
