package crawler

import (
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var subtitleLetterPattern = regexp.MustCompile(`Subtitle\s+([A-Za-z]+)\b`)

// Session carries the state of one run through the recursion. The persisted
// completion set and the tree are owned by the session, not the engine.
type Session struct {
	RunID   string
	Tracker CompletionTracker
	Tree    *Tree
}

// lineage records the subtitle and chapter titles above the current unit.
type lineage struct {
	subtitle string
	chapter  string
}

func (l lineage) enter(unit Unit) lineage {
	switch unit.Level {
	case LevelSubtitle:
		l.subtitle = unit.Title
		l.chapter = ""
	case LevelChapter:
		l.chapter = unit.Title
	}
	return l
}

// MatchesSubtitle reports whether title names one of the given subtitle
// letters. An empty filter matches everything.
func MatchesSubtitle(title string, letters []string) bool {
	if len(letters) == 0 {
		return true
	}
	m := subtitleLetterPattern.FindStringSubmatch(title)
	if m == nil {
		return false
	}
	for _, letter := range letters {
		if strings.EqualFold(strings.TrimSpace(letter), m[1]) {
			return true
		}
	}
	return false
}

// Stats holds live counters for the current run. It is safe for concurrent
// readers such as the status server.
type Stats struct {
	pagesFetched    atomic.Int64
	sectionsWritten atomic.Int64
	sectionsSkipped atomic.Int64
	sectionsFailed  atomic.Int64
	unitsFailed     atomic.Int64
	subtitlesDone   atomic.Int64
	subtitlesTotal  atomic.Int64
	running         atomic.Bool

	mu        sync.Mutex
	runID     string
	current   string
	startedAt time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	RunID           string    `json:"run_id"`
	Running         bool      `json:"running"`
	StartedAt       time.Time `json:"started_at"`
	Current         string    `json:"current,omitempty"`
	PagesFetched    int64     `json:"pages_fetched"`
	SectionsWritten int64     `json:"sections_written"`
	SectionsSkipped int64     `json:"sections_skipped"`
	SectionsFailed  int64     `json:"sections_failed"`
	UnitsFailed     int64     `json:"units_failed"`
	SubtitlesDone   int64     `json:"subtitles_done"`
	SubtitlesTotal  int64     `json:"subtitles_total"`
}

func (s *Stats) start(runID string, now time.Time) {
	s.mu.Lock()
	s.runID = runID
	s.startedAt = now
	s.current = ""
	s.mu.Unlock()
	s.pagesFetched.Store(0)
	s.sectionsWritten.Store(0)
	s.sectionsSkipped.Store(0)
	s.sectionsFailed.Store(0)
	s.unitsFailed.Store(0)
	s.subtitlesDone.Store(0)
	s.subtitlesTotal.Store(0)
	s.running.Store(true)
}

func (s *Stats) setCurrent(title string) {
	s.mu.Lock()
	s.current = title
	s.mu.Unlock()
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	runID, current, startedAt := s.runID, s.current, s.startedAt
	s.mu.Unlock()
	return StatsSnapshot{
		RunID:           runID,
		Running:         s.running.Load(),
		StartedAt:       startedAt,
		Current:         current,
		PagesFetched:    s.pagesFetched.Load(),
		SectionsWritten: s.sectionsWritten.Load(),
		SectionsSkipped: s.sectionsSkipped.Load(),
		SectionsFailed:  s.sectionsFailed.Load(),
		UnitsFailed:     s.unitsFailed.Load(),
		SubtitlesDone:   s.subtitlesDone.Load(),
		SubtitlesTotal:  s.subtitlesTotal.Load(),
	}
}
