package cloner

import "strings"

// domainPatternBlocklist matches hosts that must never be cloned. Entries are
// exact hosts or suffixes written as "*.example.com" or ".example.com".
type domainPatternBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newDomainPatternBlocklist(patterns []string) *domainPatternBlocklist {
	bl := &domainPatternBlocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		suffix := strings.TrimPrefix(strings.TrimPrefix(value, "*"), ".")
		switch {
		case value == "" || suffix == "":
			continue
		case suffix != value:
			if !containsString(bl.suffixes, suffix) {
				bl.suffixes = append(bl.suffixes, suffix)
			}
		default:
			bl.exact[value] = struct{}{}
		}
	}
	if len(bl.exact) == 0 && len(bl.suffixes) == 0 {
		return nil
	}
	return bl
}

// IsBlocked reports whether host matches any pattern. A nil list blocks nothing.
func (b *domainPatternBlocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
