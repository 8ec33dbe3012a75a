package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Dependencies bundles the engine's collaborators. Publisher, Catalog,
// Hasher, and IDs are optional.
type Dependencies struct {
	Fetcher   Fetcher
	Navigator Navigator
	Extractor Extractor
	Writer    SectionWriter
	Tracker   CompletionTracker
	Trees     TreeStore
	Publisher Publisher
	Catalog   Catalog
	Hasher    Hasher
	Clock     Clock
	IDs       IDGenerator
}

// Engine walks the hierarchy one page at a time.
type Engine struct {
	cfg    Config
	deps   Dependencies
	stats  *Stats
	logger *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(cfg Config, deps Dependencies, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = utcClock{}
	}
	return &Engine{
		cfg:    cfg,
		deps:   deps,
		stats:  &Stats{},
		logger: logger,
	}
}

// Stats exposes the live counters of the current or last run.
func (e *Engine) Stats() StatsSnapshot {
	return e.stats.Snapshot()
}

// Run crawls every subtitle below the table of contents. Cancelling ctx
// pauses the run: the unit in flight finishes, checkpoints are flushed, and
// RunResult.Paused is set. Only an unreadable tree checkpoint on resume or a
// failure to fetch the table of contents is returned as an error.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (result RunResult, err error) {
	if err := e.cfg.Validate(); err != nil {
		return RunResult{}, fmt.Errorf("invalid config: %w", err)
	}
	var prior *Tree
	if opts.Resume {
		loaded, loadErr := e.deps.Trees.Load()
		switch {
		case loadErr == nil:
			prior = loaded
		case errors.Is(loadErr, ErrNoCheckpoint):
			e.logger.Info("no tree checkpoint, starting fresh")
		default:
			return RunResult{}, fmt.Errorf("load tree checkpoint: %w", loadErr)
		}
	}

	runID := e.newRunID()
	now := e.deps.Clock.Now()
	e.stats.start(runID, now)

	sess := &Session{
		RunID:   runID,
		Tracker: e.deps.Tracker,
		Tree:    NewTree(e.cfg.TOCURL, runID, now),
	}
	completed := map[string]struct{}{}
	if prior != nil {
		prior.Metadata.RunID = runID
		sess.Tree = prior
		completed = prior.CompletedSubtitles()
		e.logger.Info("resuming from checkpoint",
			zap.Int("subtitles_complete", len(completed)),
			zap.Int("subtitles_recorded", len(prior.Subtitles)))
	}
	e.logger.Info("crawl starting",
		zap.String("run_id", runID),
		zap.String("toc_url", e.cfg.TOCURL),
		zap.Int("sections_complete", sess.Tracker.Len()),
		zap.Strings("subtitle_filter", opts.Subtitles))

	result = RunResult{RunID: runID, Tree: sess.Tree}
	defer func() {
		if ferr := sess.Tracker.Flush(); ferr != nil {
			e.logger.Error("flush completion set", zap.Error(ferr))
		}
		e.stats.running.Store(false)
		result.Stats = e.stats.Snapshot()
	}()

	toc, err := e.fetch(context.WithoutCancel(ctx), e.cfg.TOCURL)
	if err != nil {
		e.logger.Error("table of contents fetch failed", zap.String("url", e.cfg.TOCURL), zap.Error(err))
		return result, fmt.Errorf("%w: %w", ErrRootUnavailable, err)
	}
	var subtitles []Unit
	for _, unit := range LevelTOC.AcceptedChildren(e.deps.Navigator.Classify(toc)) {
		if MatchesSubtitle(unit.Title, opts.Subtitles) {
			subtitles = append(subtitles, unit)
		}
	}
	if len(subtitles) == 0 {
		e.logger.Warn("no subtitles found on table of contents", zap.String("url", e.cfg.TOCURL))
	}
	e.stats.subtitlesTotal.Store(int64(len(subtitles)))

	for i, unit := range subtitles {
		if ctx.Err() != nil {
			break
		}
		if _, ok := completed[LeafID(unit.URL)]; ok {
			e.logger.Info("skipping completed subtitle", zap.String("title", unit.Title))
			e.stats.subtitlesDone.Add(1)
			continue
		}
		e.logger.Info("processing subtitle",
			zap.Int("index", i+1),
			zap.Int("total", len(subtitles)),
			zap.String("title", unit.Title))

		node := e.crawlSubtitle(ctx, sess, unit)
		sess.Tree.Upsert(node)
		sess.Tree.Metadata.UpdatedAt = e.deps.Clock.Now()
		if err := e.deps.Trees.Save(sess.Tree); err != nil {
			e.logger.Error("save tree checkpoint", zap.String("title", unit.Title), zap.Error(err))
		}
		if node.Complete {
			e.stats.subtitlesDone.Add(1)
		}
	}

	result.Paused = ctx.Err() != nil
	switch {
	case result.Paused:
		e.logger.Warn("crawl paused, progress saved", zap.Int("sections_complete", sess.Tracker.Len()))
	case len(opts.Subtitles) > 0:
		e.logger.Info("filtered crawl finished", zap.Strings("subtitles", opts.Subtitles))
	default:
		if err := e.deps.Trees.SaveFinal(sess.Tree); err != nil {
			e.logger.Error("save final output", zap.Error(err))
		} else {
			result.Final = true
		}
		e.logger.Info("crawl finished", zap.Int("sections", sess.Tree.SectionCount()))
	}
	return result, nil
}

// CrawlUnit crawls one unit and everything below it. It is the recursion
// entry point; Run calls it once per subtitle.
func (e *Engine) CrawlUnit(ctx context.Context, sess *Session, unit Unit) *Node {
	return e.crawlUnit(ctx, sess, unit, lineage{})
}

func (e *Engine) crawlSubtitle(ctx context.Context, sess *Session, unit Unit) (node *Node) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("subtitle aborted",
				zap.String("title", unit.Title),
				zap.String("url", unit.URL),
				zap.Any("panic", r))
			node = NewNode(unit)
		}
	}()
	return e.crawlUnit(ctx, sess, unit, lineage{})
}

func (e *Engine) crawlUnit(ctx context.Context, sess *Session, unit Unit, parent lineage) *Node {
	if unit.IsLeaf() {
		return e.crawlSection(ctx, sess, unit, parent)
	}
	return e.crawlBranch(ctx, sess, unit, parent.enter(unit))
}

func (e *Engine) crawlBranch(ctx context.Context, sess *Session, unit Unit, lin lineage) *Node {
	node := NewNode(unit)
	if ctx.Err() != nil {
		return node
	}
	e.stats.setCurrent(unit.Title)
	e.logger.Info("crawling unit",
		zap.String("level", string(unit.Level)),
		zap.String("title", unit.Title),
		zap.String("url", unit.URL))

	page, err := e.fetch(context.WithoutCancel(ctx), unit.URL)
	if err != nil {
		e.stats.unitsFailed.Add(1)
		UnitFailures.WithLabelValues(string(unit.Level)).Inc()
		e.logger.Error("unit fetch failed",
			zap.String("level", string(unit.Level)),
			zap.String("title", unit.Title),
			zap.String("url", unit.URL),
			zap.Error(err))
		return node
	}

	children := unit.Level.AcceptedChildren(e.deps.Navigator.Classify(page))
	if len(children) == 0 {
		e.logger.Warn("no child links found",
			zap.String("level", string(unit.Level)),
			zap.String("title", unit.Title),
			zap.String("url", unit.URL))
	}

	complete, paused := true, false
	for _, child := range children {
		if ctx.Err() != nil {
			paused = true
			e.logger.Info("pause requested, stopping unit",
				zap.String("level", string(unit.Level)),
				zap.String("title", unit.Title))
			break
		}
		childNode := e.crawlUnit(ctx, sess, child, lin)
		if childNode == nil {
			complete = false
			continue
		}
		if !childNode.Complete {
			complete = false
		}
		node.Children = append(node.Children, childNode)
	}
	node.Complete = complete && !paused

	if unit.Level == LevelChapter && !paused {
		e.writeChapterSummary(ctx, node, lin)
	}
	return node
}

// crawlSection returns nil when the section failed; failed sections are
// never recorded in the tree.
func (e *Engine) crawlSection(ctx context.Context, sess *Session, unit Unit, lin lineage) *Node {
	id := LeafID(unit.URL)
	number := SectionNumber(unit.URL, unit.Title)
	node := NewNode(unit)
	node.SectionNumber = number
	node.Complete = true

	if sess.Tracker.IsDone(id) {
		e.stats.sectionsSkipped.Add(1)
		SectionsSkipped.Inc()
		e.logger.Debug("skipping completed section", zap.String("section", number), zap.String("url", unit.URL))
		node.Status = StatusSkipped
		return node
	}

	work := context.WithoutCancel(ctx)
	e.stats.setCurrent(unit.Title)
	page, err := e.fetch(work, unit.URL)
	if err != nil {
		e.sectionFailed("fetch", unit, err)
		return nil
	}
	content, err := e.deps.Extractor.Extract(page, number)
	if err != nil {
		e.sectionFailed("extract", unit, err)
		return nil
	}
	content.SectionNumber = number
	content.LinkTitle = unit.Title
	content.URL = unit.URL
	content.Range = unit.Range
	content.FetchedAt = e.deps.Clock.Now()

	path, err := e.deps.Writer.WriteSection(work, content, lin.subtitle, lin.chapter, number)
	if err != nil {
		e.sectionFailed("write", unit, err)
		return nil
	}
	e.notify(work, sess, content, lin, path)
	if err := sess.Tracker.MarkDone(id); err != nil {
		// The id stays in the in-memory set and is persisted by the next flush.
		e.logger.Error("persist completion set", zap.String("section", number), zap.Error(err))
	}

	e.stats.sectionsWritten.Add(1)
	SectionsWritten.Inc()
	e.logger.Info("section written", zap.String("section", number), zap.String("path", path))
	node.Status = StatusWritten
	node.Path = path
	return node
}

func (e *Engine) sectionFailed(stage string, unit Unit, err error) {
	e.stats.sectionsFailed.Add(1)
	SectionFailures.WithLabelValues(stage).Inc()
	e.logger.Error("section failed",
		zap.String("stage", stage),
		zap.String("title", unit.Title),
		zap.String("url", unit.URL),
		zap.Error(err))
}

func (e *Engine) writeChapterSummary(ctx context.Context, node *Node, lin lineage) {
	path, err := e.deps.Writer.WriteChapterSummary(context.WithoutCancel(ctx), node, lin.subtitle)
	if err != nil {
		e.logger.Error("write chapter summary", zap.String("title", node.Title), zap.Error(err))
		return
	}
	e.logger.Info("chapter complete", zap.String("title", node.Title), zap.String("summary", path))
}

// notify hands a written section to the optional publisher and catalog.
// Failures are logged; the section file is already durable.
func (e *Engine) notify(ctx context.Context, sess *Session, content SectionContent, lin lineage, path string) {
	if e.deps.Publisher == nil && e.deps.Catalog == nil {
		return
	}
	record := SectionRecord{
		RunID:         sess.RunID,
		URL:           content.URL,
		SectionNumber: content.SectionNumber,
		Title:         content.Title,
		Subtitle:      lin.subtitle,
		Chapter:       lin.chapter,
		Path:          path,
		WrittenAt:     e.deps.Clock.Now(),
	}
	if e.deps.Hasher != nil {
		if payload, err := json.Marshal(content); err == nil {
			if sum, herr := e.deps.Hasher.Hash(payload); herr == nil {
				record.ContentHash = sum
			}
		}
	}
	if e.deps.Publisher != nil {
		if _, err := e.deps.Publisher.Publish(ctx, e.cfg.NotifyTopic, record); err != nil {
			e.logger.Warn("publish section notification", zap.String("section", record.SectionNumber), zap.Error(err))
		}
	}
	if e.deps.Catalog != nil {
		if err := e.deps.Catalog.RecordSection(ctx, record); err != nil {
			e.logger.Warn("record section in catalog", zap.String("section", record.SectionNumber), zap.Error(err))
		}
	}
}

func (e *Engine) fetch(ctx context.Context, rawURL string) (Page, error) {
	page, err := e.deps.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return Page{}, err
	}
	e.stats.pagesFetched.Add(1)
	PagesFetched.Inc()
	return page, nil
}

func (e *Engine) newRunID() string {
	if e.deps.IDs == nil {
		return ""
	}
	id, err := e.deps.IDs.NewID()
	if err != nil {
		e.logger.Warn("generate run id", zap.Error(err))
		return ""
	}
	return id
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
