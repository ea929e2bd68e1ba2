package validate

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var urlPattern = regexp.MustCompile(`(http|https)://(\w+:?\w*@)?(\S+)(:[0-9]+)?(/|/([\w#!:.?+=&%@!\-/]))?`)

// URL reports whether value looks like an http(s) address.
func URL(value string) bool {
	return urlPattern.MatchString(value)
}

// ReservedQueryKeys lists query parameters of rawURL that start with prefix.
func ReservedQueryKeys(rawURL, prefix string) []string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	var keys []string
	for key := range parsed.Query() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// HasQuery reports whether rawURL carries a query string.
func HasQuery(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.RawQuery != ""
}

// Host returns the host name of rawURL without port.
func Host(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

var (
	localHost    = regexp.MustCompile(`(?i)(^localhost|^127\.0\.0\.1|^::1|\.lan|\.local)$`)
	loopbackHost = regexp.MustCompile(`^localhost|127\.0\.0\.1$`)
)

// IsLocalHost reports whether rawURL points to a loopback or private network
// name. iPizza callbacks use this wider check.
func IsLocalHost(rawURL string) bool {
	return localHost.MatchString(strings.TrimSpace(Host(rawURL)))
}

// IsLoopbackHost is the narrower check used by Solo and EC callbacks: the
// host starts with localhost or ends with 127.0.0.1.
func IsLoopbackHost(rawURL string) bool {
	return loopbackHost.MatchString(strings.ToLower(strings.TrimSpace(Host(rawURL))))
}
