package cloner

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

var (
	validSiteName   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,99}$`)
	validNumber     = regexp.MustCompile(`^\+?[0-9]{6,20}$`)
	validTrackingID = regexp.MustCompile(`(?i)^GTM-[A-Z0-9]{4,10}$`)
)

// Validator rejects malformed or unsafe clone requests without touching the
// network.
type Validator struct {
	blocklist    *domainPatternBlocklist
	allowPrivate bool
}

// NewValidator builds a Validator. Blocked patterns accept exact hosts and
// "*.suffix" wildcards.
func NewValidator(blockedDomains []string, allowPrivate bool) *Validator {
	return &Validator{
		blocklist:    newDomainPatternBlocklist(blockedDomains),
		allowPrivate: allowPrivate,
	}
}

// ValidateRequest checks the target URL, site name and rewrite parameters.
func (v *Validator) ValidateRequest(req CloneRequest) error {
	if err := v.ValidateTarget(req.URL); err != nil {
		return err
	}
	if err := ValidateSiteName(req.Name); err != nil {
		return err
	}
	if n := req.Rules.ContactNumber; n != "" && !validNumber.MatchString(n) {
		return &ValidationError{Field: "contact_number", Reason: "must be 6-20 digits with optional leading +"}
	}
	if n := req.Rules.PhoneNumber; n != "" && !validNumber.MatchString(n) {
		return &ValidationError{Field: "phone_number", Reason: "must be 6-20 digits with optional leading +"}
	}
	if id := req.Rules.TrackingID; id != "" && !validTrackingID.MatchString(id) {
		return &ValidationError{Field: "tracking_id", Reason: "must look like GTM-XXXXXXX"}
	}
	switch req.RenderMode {
	case "", RenderAuto, RenderAlways, RenderNever:
	default:
		return &ValidationError{Field: "render_mode", Reason: "must be auto, always or never"}
	}
	return nil
}

// ValidateTarget checks that rawURL is an absolute http(s) URL that does not
// point at a loopback, private, link-local or blocked host.
func (v *Validator) ValidateTarget(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return &ValidationError{Field: "url", Reason: "is required"}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: "url", Reason: "is malformed"}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return &ValidationError{Field: "url", Reason: "only http and https schemes are allowed"}
	}
	if u.User != nil {
		return &ValidationError{Field: "url", Reason: "must not contain credentials"}
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return &ValidationError{Field: "url", Reason: "has no host"}
	}
	if v != nil && v.blocklist.IsBlocked(host) {
		return &ValidationError{Field: "url", Reason: "host is blocked"}
	}
	if v != nil && v.allowPrivate {
		return nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return &ValidationError{Field: "url", Reason: "targets a loopback address"}
	}
	if ip := net.ParseIP(host); ip != nil && IsPrivateIP(ip) {
		return &ValidationError{Field: "url", Reason: "targets a private or loopback address"}
	}
	return nil
}

// ValidateSiteName checks a publish target name.
func ValidateSiteName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if !validSiteName.MatchString(name) || strings.Contains(name, "..") {
		return &ValidationError{Field: "name", Reason: "may contain letters, digits, '.', '_' and '-' only"}
	}
	return nil
}

// IsPrivateIP reports addresses a clone must never reach.
func IsPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsInterfaceLocalMulticast()
}
