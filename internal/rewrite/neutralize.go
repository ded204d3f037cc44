package rewrite

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// protectedLinkPatterns are the messaging services whose links survive
// neutralization. Matching is case-insensitive substring containment on the
// whole href, so an unrelated URL that merely contains "wa.me" (for example
// in its path) is preserved too.
var protectedLinkPatterns = []string{
	"wa.me",
	"api.whatsapp.com",
	"whatsapp://",
	"web.whatsapp.com",
	"walink.com",
	"chat.whatsapp.com",
}

// IsProtectedLink reports whether href matches the messaging allowlist.
func IsProtectedLink(href string) bool {
	lower := strings.ToLower(href)
	for _, pattern := range protectedLinkPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// neutralizeLinks points every anchor outside the allowlist at "#". Anchors
// whose href is empty or already "#" are not counted.
func neutralizeLinks(sel *goquery.Selection) (neutralized, preserved int) {
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		trimmed := strings.TrimSpace(href)
		if trimmed == "" || trimmed == "#" {
			return
		}
		if IsProtectedLink(trimmed) {
			preserved++
			return
		}
		a.SetAttr("href", "#")
		neutralized++
	})
	return neutralized, preserved
}
