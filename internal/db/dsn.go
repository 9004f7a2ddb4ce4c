package db

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	kvPairRegex  = regexp.MustCompile(`(?i)\b(host|user|password|dbname|port|sslmode)=`)
	kvPassword   = regexp.MustCompile(`(password=)(\S+)`)
	postgresURLs = []string{"postgres://", "postgresql://"}
)

// NormalizeDSN accepts either a URL style DSN (postgres://...) or a key=value list.
// It trims quotes and whitespace and makes sure a key=value list carries sslmode.
func NormalizeDSN(raw string) string {
	s := strings.Trim(strings.TrimSpace(raw), `"'`)
	if s == "" || isURL(s) || !kvPairRegex.MatchString(s) {
		return s
	}
	cleaned := strings.Join(strings.Fields(s), " ")
	if !strings.Contains(strings.ToLower(cleaned), "sslmode=") {
		cleaned += " sslmode=disable"
	}
	return cleaned
}

// MaskDSN hides the password so the DSN can be logged.
func MaskDSN(dsn string) string {
	if isURL(dsn) {
		u, err := url.Parse(dsn)
		if err != nil {
			return "<unparseable dsn>"
		}
		return u.Redacted()
	}
	return kvPassword.ReplaceAllString(dsn, `${1}***`)
}

func isURL(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range postgresURLs {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
