package extract

import (
	"strings"
	"unicode"
)

type srcsetCandidate struct {
	url        string
	descriptor string
}

// parseSrcset splits a srcset attribute into candidates. URLs may contain
// commas; a candidate URL ends at whitespace, and a trailing comma on the
// URL itself ends the candidate.
func parseSrcset(value string) []srcsetCandidate {
	var out []srcsetCandidate
	s := value
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == ',' })
		if s == "" {
			return out
		}
		end := strings.IndexFunc(s, unicode.IsSpace)
		if end < 0 {
			end = len(s)
		}
		url := s[:end]
		s = s[end:]
		if trimmed := strings.TrimRight(url, ","); trimmed != url {
			out = append(out, srcsetCandidate{url: trimmed})
			continue
		}
		descriptor := s
		if comma := strings.IndexByte(s, ','); comma >= 0 {
			descriptor = s[:comma]
			s = s[comma+1:]
		} else {
			s = ""
		}
		out = append(out, srcsetCandidate{url: url, descriptor: strings.TrimSpace(descriptor)})
	}
}

func formatSrcset(candidates []srcsetCandidate) string {
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.descriptor == "" {
			parts = append(parts, c.url)
			continue
		}
		parts = append(parts, c.url+" "+c.descriptor)
	}
	return strings.Join(parts, ", ")
}
