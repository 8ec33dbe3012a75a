package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	sectionURLPattern   = regexp.MustCompile(`(?i)section_(\d+[a-z]*(?:-\d+)?)`)
	sectionTitlePattern = regexp.MustCompile(`Sec\.\s+(\d+[A-Z]*(?:-\d+)?)`)
)

// UnknownSection is the number assigned when neither the URL nor the title
// carries one.
const UnknownSection = "unknown"

// NormalizeURL standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports, and sorts query parameters.
// It also removes fragments.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	q := u.Query()
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// LeafID returns the identity used to de-duplicate sections across runs.
// Unparseable URLs are used verbatim.
func LeafID(rawURL string) string {
	normalized, err := NormalizeURL(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.TrimSpace(rawURL)
	}
	return normalized
}

// SectionNumber derives a section number from the link URL, falling back to
// a "Sec. N" prefix in the title.
func SectionNumber(rawURL, title string) string {
	if m := sectionURLPattern.FindStringSubmatch(rawURL); m != nil {
		return strings.ToUpper(m[1])
	}
	if m := sectionTitlePattern.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	return UnknownSection
}
