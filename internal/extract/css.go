package extract

import (
	"path"
	"regexp"
	"strings"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

// cssRefPattern matches @import targets (groups 1-5) and url() references
// (groups 6-8). Only the captured URL is ever replaced, so quoting and
// surrounding syntax survive a rewrite byte for byte.
var cssRefPattern = regexp.MustCompile(`(?i)@import\s+(?:url\(\s*(?:"([^"]*)"|'([^']*)'|([^)\s'"]*))\s*\)|"([^"]*)"|'([^']*)')|url\(\s*(?:"([^"]*)"|'([^']*)'|([^)\s'"]*))\s*\)`)

// RewriteCSS visits every url() and @import reference in css and returns the
// text with accepted replacements applied.
func RewriteCSS(css string, visit Visitor) string {
	matches := cssRefPattern.FindAllStringSubmatchIndex(css, -1)
	if len(matches) == 0 {
		return css
	}
	var b strings.Builder
	b.Grow(len(css))
	last := 0
	for _, m := range matches {
		group, start, end := firstGroup(m)
		if group < 0 {
			continue
		}
		raw := css[start:end]
		kind := CSSKind(raw)
		if group <= 5 {
			kind = cloner.AssetStylesheet
		}
		replacement, ok := visit(kind, raw)
		if !ok {
			continue
		}
		b.WriteString(css[last:start])
		b.WriteString(replacement)
		last = end
	}
	b.WriteString(css[last:])
	return b.String()
}

// firstGroup returns the index and byte span of the first participating
// capture group of a cssRefPattern match.
func firstGroup(m []int) (int, int, int) {
	for g := 1; g*2+1 < len(m); g++ {
		if m[g*2] >= 0 {
			return g, m[g*2], m[g*2+1]
		}
	}
	return -1, 0, 0
}

var (
	fontExts  = map[string]struct{}{".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {}, ".eot": {}}
	imageExts = map[string]struct{}{
		".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".webp": {},
		".avif": {}, ".ico": {}, ".bmp": {},
	}
	mediaExts = map[string]struct{}{".mp4": {}, ".webm": {}, ".ogg": {}, ".mp3": {}, ".wav": {}}
)

// CSSKind infers the kind of a url() reference from its extension.
func CSSKind(raw string) cloner.AssetKind {
	ext := strings.ToLower(path.Ext(stripQuery(raw)))
	switch {
	case ext == ".css":
		return cloner.AssetStylesheet
	case ext == ".js" || ext == ".mjs":
		return cloner.AssetScript
	}
	if _, ok := fontExts[ext]; ok {
		return cloner.AssetFont
	}
	if _, ok := imageExts[ext]; ok {
		return cloner.AssetImage
	}
	if _, ok := mediaExts[ext]; ok {
		return cloner.AssetMedia
	}
	return cloner.AssetOther
}

func stripQuery(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}
