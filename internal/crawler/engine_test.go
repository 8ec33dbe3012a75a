package crawler_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/irc-crawler/internal/clock/system"
	"github.com/JakeFAU/irc-crawler/internal/crawler"
	"github.com/JakeFAU/irc-crawler/internal/hash/sha256"
	"github.com/JakeFAU/irc-crawler/internal/publisher/memory"
)

const tocURL = "https://irc.test/public/uscode/toc/irc"

func u(level crawler.Level, title, url string) crawler.Unit {
	return crawler.Unit{Title: title, URL: url, Level: level}
}

// site is a two-subtitle hierarchy:
//
//	Subtitle A > Chapter 1 > Sec. 1, Part I > Sec. 2
//	Subtitle B > Chapter 11 > Sec. 2001
func site() map[string][]crawler.Unit {
	return map[string][]crawler.Unit{
		tocURL: {
			u(crawler.LevelSubtitle, "Subtitle A Income Taxes", "https://irc.test/a"),
			u(crawler.LevelChapter, "Chapter 99 stray link", "https://irc.test/stray"),
			u(crawler.LevelSubtitle, "Subtitle B Estate Taxes", "https://irc.test/b"),
		},
		"https://irc.test/a": {
			u(crawler.LevelChapter, "Chapter 1 Normal Taxes", "https://irc.test/a/1"),
		},
		"https://irc.test/a/1": {
			u(crawler.LevelSection, "Sec. 1. Tax imposed", "https://irc.test/section_1"),
			u(crawler.LevelPart, "Part I Definitions", "https://irc.test/a/1/part-i"),
		},
		"https://irc.test/a/1/part-i": {
			u(crawler.LevelSection, "Sec. 2. Definitions", "https://irc.test/section_2"),
		},
		"https://irc.test/b": {
			u(crawler.LevelChapter, "Chapter 11 Estate Tax", "https://irc.test/b/11"),
		},
		"https://irc.test/b/11": {
			u(crawler.LevelSection, "Sec. 2001. Imposition", "https://irc.test/section_2001"),
		},
	}
}

type fakeFetcher struct {
	mu      sync.Mutex
	fail    map[string]error
	onFetch func(url string)
	calls   []string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (crawler.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	hook := f.onFetch
	err := f.fail[rawURL]
	f.mu.Unlock()
	if hook != nil {
		hook(rawURL)
	}
	if err != nil {
		return crawler.Page{}, &crawler.TransportError{URL: rawURL, Attempts: 3, Err: err}
	}
	return crawler.Page{URL: rawURL, StatusCode: 200, Body: []byte("<html></html>")}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeNavigator struct {
	links   map[string][]crawler.Unit
	panicOn string
}

func (n *fakeNavigator) Classify(page crawler.Page) []crawler.Unit {
	if page.URL == n.panicOn {
		panic("malformed page")
	}
	return n.links[page.URL]
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(page crawler.Page, number string) (crawler.SectionContent, error) {
	return crawler.SectionContent{Title: "Title " + number, Citation: "26 U.S.C. § " + number}, nil
}

type writtenSection struct {
	Subtitle, Chapter, Number string
	Content                   crawler.SectionContent
}

type fakeWriter struct {
	failNumber string
	sections   []writtenSection
	summaries  []string
}

func (w *fakeWriter) WriteSection(
	_ context.Context, content crawler.SectionContent, subtitle, chapter, number string,
) (string, error) {
	if number == w.failNumber {
		return "", &crawler.PersistenceError{Op: "write", Path: number, Err: errors.New("disk full")}
	}
	w.sections = append(w.sections, writtenSection{subtitle, chapter, number, content})
	return fmt.Sprintf("%s/%s/section_%s.json", subtitle, chapter, number), nil
}

func (w *fakeWriter) WriteChapterSummary(_ context.Context, chapter *crawler.Node, _ string) (string, error) {
	w.summaries = append(w.summaries, chapter.Title)
	return chapter.Title + "/_chapter_summary.json", nil
}

func (w *fakeWriter) numbers() []string {
	out := make([]string, 0, len(w.sections))
	for _, s := range w.sections {
		out = append(out, s.Number)
	}
	return out
}

type fakeTracker struct {
	done    map[string]bool
	flushes int
}

func newFakeTracker(ids ...string) *fakeTracker {
	t := &fakeTracker{done: map[string]bool{}}
	for _, id := range ids {
		t.done[crawler.LeafID(id)] = true
	}
	return t
}

func (t *fakeTracker) IsDone(id string) bool { return t.done[crawler.LeafID(id)] }
func (t *fakeTracker) MarkDone(id string) error {
	t.done[crawler.LeafID(id)] = true
	return nil
}
func (t *fakeTracker) Flush() error { t.flushes++; return nil }
func (t *fakeTracker) Len() int     { return len(t.done) }

type fakeTrees struct {
	prior   *crawler.Tree
	loadErr error
	saves   int
	finals  int
	last    *crawler.Tree
}

func (s *fakeTrees) Load() (*crawler.Tree, error) {
	if s.prior == nil && s.loadErr == nil {
		return nil, crawler.ErrNoCheckpoint
	}
	return s.prior, s.loadErr
}

func (s *fakeTrees) Save(tree *crawler.Tree) error {
	s.saves++
	s.last = tree
	return nil
}

func (s *fakeTrees) SaveFinal(tree *crawler.Tree) error {
	s.finals++
	s.last = tree
	return nil
}

type fakeCatalog struct {
	records []crawler.SectionRecord
	err     error
}

func (c *fakeCatalog) RecordSection(_ context.Context, record crawler.SectionRecord) error {
	c.records = append(c.records, record)
	return c.err
}

type fakeIDs struct{}

func (fakeIDs) NewID() (string, error) { return "run-1", nil }

type harness struct {
	fetcher   *fakeFetcher
	navigator *fakeNavigator
	writer    *fakeWriter
	tracker   *fakeTracker
	trees     *fakeTrees
	deps      crawler.Dependencies
}

func newHarness() *harness {
	h := &harness{
		fetcher:   &fakeFetcher{fail: map[string]error{}},
		navigator: &fakeNavigator{links: site()},
		writer:    &fakeWriter{},
		tracker:   newFakeTracker(),
		trees:     &fakeTrees{},
	}
	h.deps = crawler.Dependencies{
		Fetcher:   h.fetcher,
		Navigator: h.navigator,
		Extractor: fakeExtractor{},
		Writer:    h.writer,
		Tracker:   h.tracker,
		Trees:     h.trees,
		Clock:     system.NewFixed(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		IDs:       fakeIDs{},
	}
	return h
}

func (h *harness) engine() *crawler.Engine {
	return crawler.NewEngine(crawler.Config{TOCURL: tocURL, NotifyTopic: "irc-sections"}, h.deps, zap.NewNop())
}

func TestEngineRunCrawlsWholeHierarchy(t *testing.T) {
	t.Parallel()

	h := newHarness()
	result, err := h.engine().Run(context.Background(), crawler.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.RunID)
	assert.False(t, result.Paused)
	assert.True(t, result.Final)
	assert.Equal(t, []string{"1", "2", "2001"}, h.writer.numbers())
	assert.Equal(t, "Subtitle A Income Taxes", h.writer.sections[1].Subtitle)
	assert.Equal(t, "Chapter 1 Normal Taxes", h.writer.sections[1].Chapter)
	assert.Equal(t, "Sec. 2. Definitions", h.writer.sections[1].Content.LinkTitle)
	assert.Equal(t, "https://irc.test/section_2", h.writer.sections[1].Content.URL)
	assert.Equal(t, []string{"Chapter 1 Normal Taxes", "Chapter 11 Estate Tax"}, h.writer.summaries)
	assert.Equal(t, 3, h.tracker.Len())
	assert.GreaterOrEqual(t, h.tracker.flushes, 1)

	// One checkpoint per subtitle, then the final output.
	assert.Equal(t, 2, h.trees.saves)
	assert.Equal(t, 1, h.trees.finals)
	require.Len(t, result.Tree.Subtitles, 2)
	for _, node := range result.Tree.Subtitles {
		assert.True(t, node.Complete, node.Title)
	}
	assert.Equal(t, 3, result.Tree.SectionCount())
	assert.NotContains(t, h.fetcher.Calls(), "https://irc.test/stray")

	assert.EqualValues(t, 3, result.Stats.SectionsWritten)
	assert.EqualValues(t, 2, result.Stats.SubtitlesDone)
	assert.EqualValues(t, 2, result.Stats.SubtitlesTotal)
	assert.False(t, result.Stats.Running)
}

func TestEngineRunSkipsCompletedSections(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.tracker = newFakeTracker("https://IRC.test/section_2#frag")
	h.deps.Tracker = h.tracker

	result, err := h.engine().Run(context.Background(), crawler.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2001"}, h.writer.numbers())
	assert.NotContains(t, h.fetcher.Calls(), "https://irc.test/section_2")
	assert.EqualValues(t, 1, result.Stats.SectionsSkipped)

	leaves := result.Tree.Subtitles[0].Leaves()
	require.Len(t, leaves, 2)
	assert.Equal(t, crawler.StatusWritten, leaves[0].Status)
	assert.Equal(t, crawler.StatusSkipped, leaves[1].Status)
	assert.True(t, result.Tree.Subtitles[0].Complete)
}

func TestEngineRunIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness()
	engine := h.engine()
	_, err := engine.Run(context.Background(), crawler.RunOptions{})
	require.NoError(t, err)
	firstFetches := len(h.fetcher.Calls())

	second, err := engine.Run(context.Background(), crawler.RunOptions{})
	require.NoError(t, err)

	assert.Len(t, h.writer.sections, 3, "no section is written twice")
	assert.EqualValues(t, 0, second.Stats.SectionsWritten)
	assert.EqualValues(t, 3, second.Stats.SectionsSkipped)
	// Only the six hierarchy pages are fetched again.
	assert.Equal(t, 6, len(h.fetcher.Calls())-firstFetches)
}

func TestEngineRunPausesBetweenSiblings(t *testing.T) {
	t.Parallel()

	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.fetcher.onFetch = func(url string) {
		if url == "https://irc.test/section_1" {
			cancel()
		}
	}

	result, err := h.engine().Run(ctx, crawler.RunOptions{})
	require.NoError(t, err)

	assert.True(t, result.Paused)
	assert.False(t, result.Final)
	// The in-flight section finishes and is marked; its sibling is not started.
	assert.Equal(t, []string{"1"}, h.writer.numbers())
	assert.True(t, h.tracker.IsDone("https://irc.test/section_1"))
	assert.NotContains(t, h.fetcher.Calls(), "https://irc.test/a/1/part-i")
	assert.NotContains(t, h.fetcher.Calls(), "https://irc.test/b")
	assert.Empty(t, h.writer.summaries)

	assert.Equal(t, 1, h.trees.saves)
	assert.Equal(t, 0, h.trees.finals)
	assert.GreaterOrEqual(t, h.tracker.flushes, 1)
	require.Len(t, result.Tree.Subtitles, 1)
	assert.False(t, result.Tree.Subtitles[0].Complete)
	assert.Equal(t, 1, result.Tree.SectionCount())
}

func TestEngineRunResumeSkipsCompletedSubtitles(t *testing.T) {
	t.Parallel()

	h := newHarness()
	prior := crawler.NewTree(tocURL, "run-0", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	prior.Upsert(&crawler.Node{
		Title: "Subtitle A Income Taxes", URL: "https://irc.test/a", Level: crawler.LevelSubtitle, Complete: true,
	})
	prior.Upsert(&crawler.Node{
		Title: "Subtitle B Estate Taxes", URL: "https://irc.test/b", Level: crawler.LevelSubtitle,
	})
	h.trees.prior = prior

	result, err := h.engine().Run(context.Background(), crawler.RunOptions{Resume: true})
	require.NoError(t, err)

	calls := h.fetcher.Calls()
	assert.NotContains(t, calls, "https://irc.test/a")
	assert.Contains(t, calls, "https://irc.test/b")
	assert.Equal(t, []string{"2001"}, h.writer.numbers())
	assert.Same(t, prior, result.Tree)
	assert.Equal(t, "run-1", result.Tree.Metadata.RunID)
	assert.True(t, result.Tree.Subtitles[1].Complete)
	assert.True(t, result.Final)
}

func TestEngineRunFreshIgnoresTreeCheckpoint(t *testing.T) {
	t.Parallel()

	h := newHarness()
	prior := crawler.NewTree(tocURL, "run-0", time.Now())
	prior.Upsert(&crawler.Node{Title: "Subtitle A Income Taxes", URL: "https://irc.test/a", Level: crawler.LevelSubtitle, Complete: true})
	h.trees.prior = prior

	_, err := h.engine().Run(context.Background(), crawler.RunOptions{})
	require.NoError(t, err)
	assert.Contains(t, h.fetcher.Calls(), "https://irc.test/a")
}

func TestEngineRunRootUnavailable(t *testing.T) {
	t.Parallel()

	h := newHarness()
	cause := errors.New("connection refused")
	h.fetcher.fail[tocURL] = cause

	result, err := h.engine().Run(context.Background(), crawler.RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrRootUnavailable)
	assert.ErrorIs(t, err, cause)
	var transport *crawler.TransportError
	assert.ErrorAs(t, err, &transport)
	assert.False(t, result.Final)
	assert.Equal(t, 0, h.trees.saves)
	assert.Equal(t, 1, h.tracker.flushes)
}

func TestEngineRunResumeRejectsUnreadableCheckpoint(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.trees.loadErr = errors.New("unexpected end of JSON input")

	_, err := h.engine().Run(context.Background(), crawler.RunOptions{Resume: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, h.trees.loadErr)
	assert.Empty(t, h.fetcher.Calls(), "nothing is fetched")
	assert.Equal(t, 0, h.trees.saves, "the checkpoint on disk is left alone")
}

func TestEngineRunInvalidConfig(t *testing.T) {
	t.Parallel()

	h := newHarness()
	_, err := crawler.NewEngine(crawler.Config{}, h.deps, nil).Run(context.Background(), crawler.RunOptions{})
	require.Error(t, err)
	assert.Empty(t, h.fetcher.Calls())
}

func TestEngineRunFailuresAreSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.fetcher.fail["https://irc.test/b/11"] = errors.New("timeout")
	h.writer.failNumber = "2"

	result, err := h.engine().Run(context.Background(), crawler.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, h.writer.numbers())
	assert.False(t, h.tracker.IsDone("https://irc.test/section_2"))
	assert.EqualValues(t, 1, result.Stats.SectionsFailed)
	assert.EqualValues(t, 1, result.Stats.UnitsFailed)

	a, b := result.Tree.Subtitles[0], result.Tree.Subtitles[1]
	assert.False(t, a.Complete, "a failed section leaves its ancestors incomplete")
	assert.Equal(t, 1, a.CountLevel(crawler.LevelSection), "failed sections are not recorded")
	assert.False(t, b.Complete)
	require.Len(t, b.Children, 1)
	assert.Empty(t, b.Children[0].Children)
	// Every leaf in the tree is in the completion set.
	for _, leaf := range result.Tree.Subtitles[0].Leaves() {
		assert.True(t, h.tracker.IsDone(leaf.URL), leaf.URL)
	}
	assert.True(t, result.Final)
}

func TestEngineRunRecoversSubtitlePanic(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.navigator.panicOn = "https://irc.test/a"

	result, err := h.engine().Run(context.Background(), crawler.RunOptions{})
	require.NoError(t, err)

	require.Len(t, result.Tree.Subtitles, 2)
	assert.False(t, result.Tree.Subtitles[0].Complete)
	assert.Empty(t, result.Tree.Subtitles[0].Children)
	assert.True(t, result.Tree.Subtitles[1].Complete)
	assert.Equal(t, []string{"2001"}, h.writer.numbers())
}

func TestEngineRunFilteredSubtitles(t *testing.T) {
	t.Parallel()

	h := newHarness()
	result, err := h.engine().Run(context.Background(), crawler.RunOptions{Subtitles: []string{"b"}})
	require.NoError(t, err)

	assert.NotContains(t, h.fetcher.Calls(), "https://irc.test/a")
	assert.Equal(t, []string{"2001"}, h.writer.numbers())
	assert.False(t, result.Final)
	assert.Equal(t, 0, h.trees.finals)
	assert.Equal(t, 1, h.trees.saves)
	assert.EqualValues(t, 1, result.Stats.SubtitlesTotal)
}

func TestEngineRunNotifiesPublisherAndCatalog(t *testing.T) {
	t.Parallel()

	h := newHarness()
	publisher := memory.New()
	catalog := &fakeCatalog{err: errors.New("catalog offline")}
	h.deps.Publisher = publisher
	h.deps.Catalog = catalog
	h.deps.Hasher = sha256.New()

	_, err := h.engine().Run(context.Background(), crawler.RunOptions{})
	require.NoError(t, err)

	messages := publisher.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "irc-sections", messages[0].Topic)
	record, ok := messages[0].Payload.(crawler.SectionRecord)
	require.True(t, ok)
	assert.Equal(t, "run-1", record.RunID)
	assert.Equal(t, "1", record.SectionNumber)
	assert.Equal(t, "Subtitle A Income Taxes", record.Subtitle)
	assert.Equal(t, "Chapter 1 Normal Taxes", record.Chapter)
	assert.Len(t, record.ContentHash, 64)

	// Catalog failures never block marking.
	require.Len(t, catalog.records, 3)
	assert.Equal(t, 3, h.tracker.Len())
}

func TestEngineCrawlUnitFromChapter(t *testing.T) {
	t.Parallel()

	h := newHarness()
	engine := h.engine()
	sess := &crawler.Session{RunID: "manual", Tracker: h.tracker, Tree: crawler.NewTree(tocURL, "manual", time.Now())}

	node := engine.CrawlUnit(context.Background(), sess,
		u(crawler.LevelChapter, "Chapter 1 Normal Taxes", "https://irc.test/a/1"))

	require.NotNil(t, node)
	assert.True(t, node.Complete)
	assert.Equal(t, 2, node.CountLevel(crawler.LevelSection))
	assert.Equal(t, 1, node.CountLevel(crawler.LevelPart))
	assert.Equal(t, "", h.writer.sections[0].Subtitle)
	assert.Equal(t, "Chapter 1 Normal Taxes", h.writer.sections[0].Chapter)
}

func TestEngineStatsWhileIdle(t *testing.T) {
	t.Parallel()

	h := newHarness()
	snap := h.engine().Stats()
	assert.False(t, snap.Running)
	assert.Zero(t, snap.PagesFetched)
}
