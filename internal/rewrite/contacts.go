package rewrite

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// contactLinkPatterns are the deep-link shapes of the messaging service. The
// first group is kept and the number after it is replaced.
var contactLinkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(https?://wa\.me/)\+?\d+`),
	regexp.MustCompile(`(?i)(https?://api\.whatsapp\.com/send/?\?phone=)\+?\d+`),
	regexp.MustCompile(`(?i)(whatsapp://send\?phone=)\+?\d+`),
	regexp.MustCompile(`(?i)(https?://web\.whatsapp\.com/send\?phone=)\+?\d+`),
}

var telPattern = regexp.MustCompile(`(?i)^\s*tel:`)

// digitsOnly strips everything but digits; deep links take bare numbers.
func digitsOnly(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// replaceContactText rewrites every deep link in s and reports how many it
// replaced.
func replaceContactText(s, digits string) (string, int) {
	count := 0
	for _, re := range contactLinkPatterns {
		s = re.ReplaceAllStringFunc(s, func(match string) string {
			count++
			prefix := re.FindStringSubmatch(match)[1]
			return prefix + digits
		})
	}
	return s, count
}

// replaceContactLinks points messaging deep links in anchors and inline
// scripts (chat widgets keep them in config objects) at number.
func replaceContactLinks(sel *goquery.Selection, number string) int {
	digits := digitsOnly(number)
	total := 0
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		updated, n := replaceContactText(href, digits)
		if n > 0 {
			a.SetAttr("href", updated)
			total += n
		}
	})
	sel.Find("script:not([src])").Each(func(_ int, s *goquery.Selection) {
		total += editText(s, func(text string) (string, int) {
			return replaceContactText(text, digits)
		})
	})
	return total
}

// replacePhoneLinks points every tel: anchor at number.
func replacePhoneLinks(sel *goquery.Selection, number string) int {
	count := 0
	target := "tel:" + strings.TrimSpace(number)
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if telPattern.MatchString(href) {
			a.SetAttr("href", target)
			count++
		}
	})
	return count
}
