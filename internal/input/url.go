// Package input validates and normalizes target URLs before site lookup.
package input

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError reports a URL that cannot be scraped
type ValidationError struct {
	URL string
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid URL %q: %s", e.URL, e.Msg)
}

var validSchemes = map[string]bool{"http": true, "https": true}

// Validate checks that raw is an absolute http(s) URL with a host
func Validate(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return &ValidationError{URL: raw, Msg: "URL cannot be empty or whitespace only"}
	}
	if !strings.Contains(trimmed, "://") {
		return &ValidationError{URL: raw, Msg: "URL must contain a scheme (http:// or https://)"}
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return &ValidationError{URL: raw, Msg: err.Error()}
	}
	if !validSchemes[u.Scheme] {
		return &ValidationError{URL: raw, Msg: fmt.Sprintf("scheme %q not supported, use http:// or https://", u.Scheme)}
	}
	if u.Host == "" {
		return &ValidationError{URL: raw, Msg: "URL must contain a domain/host"}
	}
	return nil
}

// Normalize defaults the scheme to https, validates, and drops trailing
// slashes from the path. Query and fragment are kept.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &ValidationError{URL: raw, Msg: "URL must be a non-empty string"}
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	if err := Validate(trimmed); err != nil {
		return "", err
	}

	u, _ := url.Parse(trimmed)
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Host)
	b.WriteString(strings.TrimRight(u.EscapedPath(), "/"))
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}
	if u.Fragment != "" {
		b.WriteString("#")
		b.WriteString(u.EscapedFragment())
	}
	return b.String(), nil
}

// Domain returns the host of a URL without a leading "www."
func Domain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}
