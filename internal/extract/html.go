// Package extract is the default content extractor: it turns a section page
// into a title, a citation, and ordered subsection records.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/irc-crawler/internal/crawler"
)

// Defaults for Config.
const (
	DefaultCitationFormat  = "26 U.S.C. § %s"
	DefaultContentSelector = "p"
)

var (
	markerPattern = regexp.MustCompile(`^\(([A-Za-z0-9]+)\)`)
	romanPattern  = regexp.MustCompile(`^[ivxl]+$`)
)

// Config controls extraction.
type Config struct {
	// CitationFormat receives the section number.
	CitationFormat string
	// ContentSelector selects the paragraphs that make up the section body.
	ContentSelector string
}

// HTML implements crawler.Extractor with goquery.
type HTML struct {
	cfg Config
}

// New returns an extractor, filling unset fields with defaults.
func New(cfg Config) *HTML {
	if cfg.CitationFormat == "" {
		cfg.CitationFormat = DefaultCitationFormat
	}
	if cfg.ContentSelector == "" {
		cfg.ContentSelector = DefaultContentSelector
	}
	return &HTML{cfg: cfg}
}

// Extract parses page. Paragraphs opening with a "(x)" marker start a new
// subsection whose citation nests under the enclosing markers; other
// paragraphs are appended to the current subsection.
func (h *HTML) Extract(page crawler.Page, sectionNumber string) (crawler.SectionContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return crawler.SectionContent{}, fmt.Errorf("parse section page: %w", err)
	}
	citation := fmt.Sprintf(h.cfg.CitationFormat, sectionNumber)
	content := crawler.SectionContent{
		SectionNumber: sectionNumber,
		Title:         pageTitle(doc),
		Citation:      citation,
		URL:           page.URL,
		Subsections:   []crawler.Subsection{},
	}

	var (
		path    []string
		current *crawler.Subsection
	)
	doc.Find(h.cfg.ContentSelector).Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			return
		}
		markup, _ := goquery.OuterHtml(sel)
		if m := markerPattern.FindStringSubmatch(text); m != nil {
			path = nest(path, m[1])
			parts := nonEmpty(path)
			content.Subsections = append(content.Subsections, crawler.Subsection{
				ID:       strings.Join(parts, "."),
				Citation: citation + "(" + strings.Join(parts, ")(") + ")",
				Text:     text,
				HTML:     markup,
			})
			current = &content.Subsections[len(content.Subsections)-1]
			return
		}
		if current == nil {
			content.Subsections = append(content.Subsections, crawler.Subsection{
				Citation: citation,
				Text:     text,
				HTML:     markup,
			})
			current = &content.Subsections[len(content.Subsections)-1]
			return
		}
		current.Text += "\n" + text
		current.HTML += markup
	})
	return content, nil
}

// markerDepth ranks the statutory paragraph styles: (a), (1), (A), (i).
func markerDepth(marker string, parent int) int {
	switch {
	case marker[0] >= '0' && marker[0] <= '9':
		return 2
	case marker[0] >= 'A' && marker[0] <= 'Z':
		return 3
	case romanPattern.MatchString(marker) && parent >= 3:
		return 4
	default:
		return 1
	}
}

// nest places marker into the citation path, dropping deeper levels.
func nest(path []string, marker string) []string {
	depth := markerDepth(marker, len(path))
	if depth-1 < len(path) {
		path = path[:depth-1]
	}
	for len(path) < depth-1 {
		path = append(path, "")
	}
	out := make([]string, 0, depth)
	out = append(out, path...)
	return append(out, marker)
}

func nonEmpty(path []string) []string {
	out := make([]string, 0, len(path))
	for _, p := range path {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func pageTitle(doc *goquery.Document) string {
	for _, selector := range []string{"h1", "title"} {
		if title := strings.Join(strings.Fields(doc.Find(selector).First().Text()), " "); title != "" {
			return title
		}
	}
	return ""
}
