package crawler

import (
	"net/http"
	"time"
)

// Level names one tier of the code hierarchy.
type Level string

// Hierarchy levels, root first.
const (
	LevelTOC        Level = "toc"
	LevelSubtitle   Level = "subtitle"
	LevelChapter    Level = "chapter"
	LevelSubchapter Level = "subchapter"
	LevelPart       Level = "part"
	LevelSubpart    Level = "subpart"
	LevelSection    Level = "section"
)

// SectionRange is the optional "(Sections X to Y)" annotation on a link.
type SectionRange struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// Unit is a discovered link that the engine may descend into.
type Unit struct {
	Title string
	URL   string
	Level Level
	Range *SectionRange
}

// IsLeaf reports whether the unit is a section rather than a branch with
// undiscovered children.
func (u Unit) IsLeaf() bool {
	return u.Level == LevelSection
}

// Page is a fetched document.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Subsection is one ordered record of a section's text.
type Subsection struct {
	ID       string `json:"id"`
	Citation string `json:"citation"`
	Text     string `json:"text"`
	HTML     string `json:"html"`
}

// SectionContent is the persisted payload for one leaf.
type SectionContent struct {
	SectionNumber string        `json:"section_number"`
	Title         string        `json:"title"`
	LinkTitle     string        `json:"link_title"`
	Citation      string        `json:"citation"`
	URL           string        `json:"url"`
	Range         *SectionRange `json:"section_range,omitempty"`
	Subsections   []Subsection  `json:"subsections"`
	FetchedAt     time.Time     `json:"fetched_at"`
}

// SectionRecord describes a written section for downstream consumers.
type SectionRecord struct {
	RunID         string    `json:"run_id"`
	URL           string    `json:"url"`
	SectionNumber string    `json:"section_number"`
	Title         string    `json:"title"`
	Subtitle      string    `json:"subtitle"`
	Chapter       string    `json:"chapter"`
	Path          string    `json:"path"`
	ContentHash   string    `json:"content_hash,omitempty"`
	WrittenAt     time.Time `json:"written_at"`
}
