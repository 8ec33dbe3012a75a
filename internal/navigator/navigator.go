// Package navigator finds and classifies hierarchy links on a table of
// contents page.
package navigator

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/irc-crawler/internal/crawler"
)

var (
	rangePattern  = regexp.MustCompile(`\(Sections?\s+(\d+[A-Z]?)\s+to\s+(\d+[A-Z]?)\)`)
	singlePattern = regexp.MustCompile(`\(Section\s+(\d+[A-Z]?)\)`)
)

// Default filter values.
var (
	DefaultDenyList  = []string{"Bloomberg", "Log In", "About Us", "Contact", "Copyright", "Terms", "Privacy", "Request"}
	DefaultFragments = []string{"subtitle-", "chapter-", "subchapter-", "part-", "section_"}
)

// DefaultPathPrefix is the path every hierarchy link lives under.
const DefaultPathPrefix = "/public/uscode/"

// keywordOrder is scanned first to last; the first keyword found in a title
// decides its level. "Subchapter" does not contain "Chapter" and "Subpart"
// does not contain "Part" because matching is case-sensitive.
var keywordOrder = []struct {
	keyword string
	level   crawler.Level
}{
	{"Subtitle", crawler.LevelSubtitle},
	{"Chapter", crawler.LevelChapter},
	{"Subchapter", crawler.LevelSubchapter},
	{"Part", crawler.LevelPart},
	{"Subpart", crawler.LevelSubpart},
}

// Config controls link filtering.
type Config struct {
	PathPrefix     string
	Fragments      []string
	DenyList       []string
	MinTitleLength int
}

// Navigator implements crawler.Navigator.
type Navigator struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Navigator, filling unset fields with defaults.
func New(cfg Config, logger *zap.Logger) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = DefaultPathPrefix
	}
	if len(cfg.Fragments) == 0 {
		cfg.Fragments = DefaultFragments
	}
	if cfg.DenyList == nil {
		cfg.DenyList = DefaultDenyList
	}
	if cfg.MinTitleLength <= 0 {
		cfg.MinTitleLength = 5
	}
	return &Navigator{cfg: cfg, logger: logger}
}

// Classify returns the hierarchy links on page in document order. Each
// target appears once; links to the page itself are dropped.
func (n *Navigator) Classify(page crawler.Page) []crawler.Unit {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		n.logger.Warn("parse page", zap.String("url", page.URL), zap.Error(err))
		return nil
	}
	base := pageBase(page)
	self := crawler.LeafID(base.String())

	seen := map[string]struct{}{self: {}}
	var units []crawler.Unit
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		title := normalizeText(sel.Text())
		target, ok := n.accept(base, href, title)
		if !ok {
			return
		}
		level, ok := ClassifyTitle(title, target)
		if !ok {
			n.logger.Debug("unclassified hierarchy link", zap.String("title", title), zap.String("url", target))
			return
		}
		id := crawler.LeafID(target)
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		units = append(units, crawler.Unit{
			Title: title,
			URL:   target,
			Level: level,
			Range: ParseSectionRange(title),
		})
	})
	return units
}

// accept applies the text and URL filters and returns the absolute target.
func (n *Navigator) accept(base *url.URL, href, title string) (string, bool) {
	if len([]rune(title)) < n.cfg.MinTitleLength {
		return "", false
	}
	for _, deny := range n.cfg.DenyList {
		if deny != "" && strings.Contains(title, deny) {
			return "", false
		}
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	if ref.Host != "" && !strings.EqualFold(ref.Hostname(), base.Hostname()) {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	if !strings.Contains(resolved.Path, n.cfg.PathPrefix) {
		return "", false
	}
	for _, fragment := range n.cfg.Fragments {
		if strings.Contains(resolved.Path, fragment) {
			return resolved.String(), true
		}
	}
	return "", false
}

// ClassifyTitle assigns a level to a link. Hierarchy keywords are scanned in
// fixed order and the first one present wins, even when a later keyword is
// more specific. Links without a keyword are sections when the title
// contains "Sec." or the URL path contains "section".
func ClassifyTitle(title, rawURL string) (crawler.Level, bool) {
	for _, kw := range keywordOrder {
		if strings.Contains(title, kw.keyword) {
			return kw.level, true
		}
	}
	if strings.Contains(title, "Sec.") {
		return crawler.LevelSection, true
	}
	if u, err := url.Parse(rawURL); err == nil && strings.Contains(strings.ToLower(u.Path), "section") {
		return crawler.LevelSection, true
	}
	return "", false
}

// ParseSectionRange extracts "(Sections X to Y)" or "(Section X)" from a title.
func ParseSectionRange(title string) *crawler.SectionRange {
	if m := rangePattern.FindStringSubmatch(title); m != nil {
		return &crawler.SectionRange{Start: m[1], End: m[2]}
	}
	if m := singlePattern.FindStringSubmatch(title); m != nil {
		return &crawler.SectionRange{Start: m[1], End: m[1]}
	}
	return nil
}

func pageBase(page crawler.Page) *url.URL {
	raw := page.FinalURL
	if raw == "" {
		raw = page.URL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}

// normalizeText folds compatibility characters (ligatures, full-width
// digits) and collapses whitespace.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
