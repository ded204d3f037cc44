// Package rewrite applies content rules to a parsed document: contact-link
// normalization, tracking container substitution, page-builder cleanup and
// navigation neutralization. All edits happen on the DOM; only script bodies
// are edited as text.
package rewrite

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/logging"
	"github.com/JakeFAU/site-cloner/internal/metrics"
)

// Result reports what a Rewrite touched.
type Result struct {
	Counters cloner.RewriteCounters
	Warnings []string
}

// Rewriter applies RewriteRules to documents.
type Rewriter struct {
	logger *zap.Logger
}

// New builds a Rewriter.
func New(logger *zap.Logger) *Rewriter {
	return &Rewriter{logger: logging.OrNop(logger).Named("rewrite")}
}

// Rewrite mutates doc in place. Rules run in a fixed order: cleanup, contact
// links, telephone links, tracking IDs, then neutralization, so a tel: link
// rewritten to the caller's number is still neutralized when neutralization
// is on. A configured rule that matches nothing yields a warning, not an error.
func (r *Rewriter) Rewrite(doc *html.Node, rules cloner.RewriteRules) Result {
	sel := goquery.NewDocumentFromNode(doc).Selection
	var res Result

	if rules.Cleanup {
		res.Counters.CleanupRemovals = removeLiteSpeed(sel) + revealAnimated(sel) + flattenCarousels(sel)
		sel.Find("style").Each(func(_ int, s *goquery.Selection) {
			res.Counters.CleanupRemovals += editText(s, fixElementorCSS)
		})
	}
	if rules.ContactNumber != "" {
		res.Counters.ContactsReplaced = replaceContactLinks(sel, rules.ContactNumber)
		if res.Counters.ContactsReplaced == 0 {
			res.Warnings = append(res.Warnings, "contact_number: no messaging links found to replace")
		}
	}
	if rules.PhoneNumber != "" {
		res.Counters.PhonesReplaced = replacePhoneLinks(sel, rules.PhoneNumber)
		if res.Counters.PhonesReplaced == 0 {
			res.Warnings = append(res.Warnings, "phone_number: no tel: links found to replace")
		}
	}
	if rules.TrackingID != "" {
		res.Counters.TrackingReplaced = replaceTrackingIDs(sel, rules.TrackingID)
		if res.Counters.TrackingReplaced == 0 {
			res.Warnings = append(res.Warnings, "tracking_id: no tracking container IDs found to replace")
		}
	}
	if rules.NeutralizeLinks {
		res.Counters.Neutralized, res.Counters.Preserved = neutralizeLinks(sel)
		if res.Counters.Neutralized+res.Counters.Preserved == 0 {
			res.Warnings = append(res.Warnings, "neutralize_links: no navigable links found")
		}
	}

	for _, w := range res.Warnings {
		r.logger.Warn("rewrite rule matched nothing", zap.String("warning", w))
	}
	r.logger.Debug("rewrite applied",
		zap.Int("neutralized", res.Counters.Neutralized),
		zap.Int("preserved", res.Counters.Preserved),
		zap.Int("contacts", res.Counters.ContactsReplaced),
		zap.Int("phones", res.Counters.PhonesReplaced),
		zap.Int("tracking", res.Counters.TrackingReplaced),
		zap.Int("cleanup", res.Counters.CleanupRemovals),
	)
	metrics.ObserveRewrite("neutralized", res.Counters.Neutralized)
	metrics.ObserveRewrite("preserved", res.Counters.Preserved)
	metrics.ObserveRewrite("contact", res.Counters.ContactsReplaced)
	metrics.ObserveRewrite("phone", res.Counters.PhonesReplaced)
	metrics.ObserveRewrite("tracking", res.Counters.TrackingReplaced)
	metrics.ObserveRewrite("cleanup", res.Counters.CleanupRemovals)
	return res
}

// RewriteStylesheet applies the text-level rules to stylesheet source:
// contact deep links and tracking IDs, which stylesheets carry in content
// strings and url() values, and the page-builder fixes when cleanup is on.
func (r *Rewriter) RewriteStylesheet(css string, rules cloner.RewriteRules) (string, cloner.RewriteCounters) {
	var counters cloner.RewriteCounters
	if rules.Cleanup {
		css, counters.CleanupRemovals = fixElementorCSS(css)
	}
	if rules.ContactNumber != "" {
		css, counters.ContactsReplaced = replaceContactText(css, digitsOnly(rules.ContactNumber))
	}
	if rules.TrackingID != "" {
		css, counters.TrackingReplaced = replaceTrackingText(css, rules.TrackingID)
	}
	metrics.ObserveRewrite("contact", counters.ContactsReplaced)
	metrics.ObserveRewrite("tracking", counters.TrackingReplaced)
	metrics.ObserveRewrite("cleanup", counters.CleanupRemovals)
	return css, counters
}

// Merge adds stylesheet counters to a document result and drops the
// no-match warnings of rules the stylesheets satisfied.
func (res *Result) Merge(c cloner.RewriteCounters) {
	res.Counters.ContactsReplaced += c.ContactsReplaced
	res.Counters.TrackingReplaced += c.TrackingReplaced
	res.Counters.CleanupRemovals += c.CleanupRemovals
	kept := res.Warnings[:0]
	for _, w := range res.Warnings {
		switch {
		case c.ContactsReplaced > 0 && strings.HasPrefix(w, "contact_number:"):
		case c.TrackingReplaced > 0 && strings.HasPrefix(w, "tracking_id:"):
		default:
			kept = append(kept, w)
		}
	}
	res.Warnings = kept
}
