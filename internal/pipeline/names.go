package pipeline

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/hash"
)

// Reserved names inside a published folder.
const (
	DocumentName = "index.html"
	ManifestName = "manifest.json"
)

// contentTypeExts picks an extension when the URL path carries none.
var contentTypeExts = map[string]string{
	"text/css":                 ".css",
	"text/javascript":          ".js",
	"application/javascript":   ".js",
	"application/x-javascript": ".js",
	"image/png":                ".png",
	"image/jpeg":               ".jpg",
	"image/gif":                ".gif",
	"image/svg+xml":            ".svg",
	"image/webp":               ".webp",
	"image/avif":               ".avif",
	"image/x-icon":             ".ico",
	"image/vnd.microsoft.icon": ".ico",
	"font/woff":                ".woff",
	"font/woff2":               ".woff2",
	"font/ttf":                 ".ttf",
	"font/otf":                 ".otf",
	"video/mp4":                ".mp4",
	"video/webm":               ".webm",
}

var kindExts = map[cloner.AssetKind]string{
	cloner.AssetStylesheet: ".css",
	cloner.AssetScript:     ".js",
}

// namer hands out storage names that are unique within one job. Names come
// from the URL path basename; empty basenames become resource_<hash> and
// collisions get a -<hash> suffix, where hash is a prefix of the SHA-256 of
// the absolute URL, so the same URL always maps to the same name.
type namer struct {
	taken map[string]struct{}
}

func newNamer() *namer {
	return &namer{taken: map[string]struct{}{
		DocumentName: {},
		ManifestName: {},
	}}
}

// assign names rawURL. Re-encoded assets take the extension of their new
// content type, since CDNs derive Content-Type from it.
func (n *namer) assign(rawURL string, kind cloner.AssetKind, contentType string, reencoded bool) string {
	short := hash.SHA256([]byte(rawURL))[:8]
	stem, ext := splitName(basename(rawURL))

	if reencoded && !extensionMatches(ext, contentType) {
		if want := extensionFor(kind, contentType); want != "" {
			ext = want
		}
	}
	if ext == "" {
		ext = extensionFor(kind, contentType)
	} else if want, ok := kindExts[kind]; ok && ext != want && ext != ".mjs" && isTextType(contentType) {
		// Stylesheets served from paths like /css?family=x need the right
		// extension or CDNs serve them as text/plain.
		stem, ext = stem+ext, want
	}
	if stem == "" {
		stem = "resource_" + short
	}

	name := stem + ext
	if n.claim(name) {
		return name
	}
	name = stem + "-" + short + ext
	if n.claim(name) {
		return name
	}
	full := hash.SHA256([]byte(rawURL))
	name = stem + "-" + full[:16] + ext
	n.claim(name)
	return name
}

func (n *namer) claim(name string) bool {
	key := strings.ToLower(name)
	if _, ok := n.taken[key]; ok {
		return false
	}
	n.taken[key] = struct{}{}
	return true
}

func basename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return sanitize(base)
}

// sanitize keeps names safe for every store backend and for unquoted use in
// HTML and CSS.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), ".")
}

func splitName(name string) (string, string) {
	ext := path.Ext(name)
	if len(ext) > 6 || ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), strings.ToLower(ext)
}

func extensionFor(kind cloner.AssetKind, contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := contentTypeExts[strings.ToLower(mediaType)]; ok {
			return ext
		}
	}
	return kindExts[kind]
}

func extensionMatches(ext, contentType string) bool {
	if ext == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	byExt, _, err := mime.ParseMediaType(mime.TypeByExtension(ext))
	return err == nil && strings.EqualFold(byExt, mediaType)
}

func isTextType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.HasPrefix(ct, "text/") || strings.Contains(ct, "javascript")
}
