// Package detector decides when a root document must be rendered in a
// headless browser before it can be cloned.
package detector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

// minVisibleText is the amount of body text below which a page carrying a
// framework mount point is treated as an unrendered shell.
const minVisibleText = 200

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// mountSelectors match the empty containers client-side frameworks render into.
var mountSelectors = []string{
	"#__next",
	"#__nuxt",
	"#root",
	"#app",
	"[data-reactroot]",
	"[ng-app]",
	"[ng-version]",
}

// ShouldPromote reports whether the fetched document looks like a
// script-built shell whose content only exists after rendering.
func (h *Heuristic) ShouldPromote(res cloner.FetchedResource) bool {
	if res.StatusCode != 200 {
		return false
	}
	if ct := strings.ToLower(res.ContentType); ct != "" && !strings.Contains(ct, "html") {
		return false
	}
	body := bytes.TrimSpace(res.Body)
	if len(body) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	text := visibleTextLength(doc)
	if text == 0 && doc.Find("script").Length() > 0 {
		return true
	}
	if text >= minVisibleText {
		return false
	}
	for _, sel := range mountSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func visibleTextLength(doc *goquery.Document) int {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return len(strings.Join(strings.Fields(body.Text()), " "))
}

// scriptDensityHigh reports whether inline scripts cover at least a quarter
// of the document.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	for pos := 0; ; {
		idx := strings.Index(lower[pos:], openTag)
		if idx == -1 {
			break
		}
		start := pos + idx
		end := strings.Index(lower[start:], closeTag)
		if end == -1 {
			// unterminated script runs to the end of the document
			covered += total - start
			break
		}
		pos = start + end + len(closeTag)
		covered += pos - start
	}
	return covered*100/total >= 25
}
