package logx

import (
	"net/url"
	"strings"
)

// MaskSecret keeps the last four characters of an API key or token.
func MaskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 4) + value[len(value)-4:]
}

// MaskDSN renders a store locator without its password or query string so it
// can be logged. Unparseable input is fully masked.
func MaskDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return ""
	}

	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "****"
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	if u.User != nil {
		b.WriteString(u.User.Username())
		if _, ok := u.User.Password(); ok {
			b.WriteString(":****")
		}
		b.WriteString("@")
	}
	b.WriteString(u.Host)
	b.WriteString(u.Path)
	return b.String()
}
