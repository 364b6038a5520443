package visibility

import (
	"fmt"
	"regexp"
	"strings"
)

// FindSelf returns the id of the first roster entity whose name equals the
// company name exactly. Nil means the company is not on its own roster.
func FindSelf(companyName string, roster []Entity) *int64 {
	for _, e := range roster {
		if e.Name == companyName {
			id := e.ID
			return &id
		}
	}
	return nil
}

// MarkSelf flags the roster entry matching selfID.
func MarkSelf(roster []Entity, selfID *int64) {
	for i := range roster {
		roster[i].IsSelf = selfID != nil && roster[i].ID == *selfID
	}
}

// IsSelfCompetitor reports whether a competitor row is the tracked company
// itself, by case-insensitive name or by normalized domain. The competitor
// management view hides such rows.
func IsSelfCompetitor(companyName, companyDomain string, c Entity) bool {
	if name := strings.ToLower(strings.TrimSpace(companyName)); name != "" &&
		strings.ToLower(strings.TrimSpace(c.Name)) == name {
		return true
	}
	domain := NormalizeURL(companyDomain)
	return domain != "" && c.Website != "" && NormalizeURL(c.Website) == domain
}

var (
	schemeRe = regexp.MustCompile(`^https?://`)
	domainRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
)

// NormalizeURL lowercases and strips scheme, a leading "www." and one
// trailing slash.
func NormalizeURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = schemeRe.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimSuffix(s, "/")
}

// CanonicalDomain validates a user-entered company domain and returns it
// in the stored https:// form.
func CanonicalDomain(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = schemeRe.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "www.")
	if s == "" || !domainRe.MatchString(s) {
		return "", fmt.Errorf("invalid domain %q", raw)
	}
	return "https://" + s, nil
}

// EnsureScheme prefixes https:// unless the URL already has a scheme.
func EnsureScheme(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return "https://" + s
}
