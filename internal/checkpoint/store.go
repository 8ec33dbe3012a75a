// Package checkpoint persists the hierarchy tree between runs and writes the
// final outputs of an uninterrupted crawl.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/irc-crawler/internal/crawler"
	"github.com/JakeFAU/irc-crawler/internal/storage"
	"github.com/JakeFAU/irc-crawler/internal/storage/local"
)

// File names under the output directory.
const (
	ProgressFile = "irc_data_progress.json"
	CompleteFile = "irc_complete.json"
	SummaryFile  = "scrape_summary.txt"
)

// Store implements crawler.TreeStore on the local store.
type Store struct {
	store  *local.Store
	logger *zap.Logger
}

// New returns a Store.
func New(store *local.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{store: store, logger: logger}
}

// Load reads the tree checkpoint, returning crawler.ErrNoCheckpoint when
// none exists.
func (s *Store) Load() (*crawler.Tree, error) {
	data, err := s.store.Load(ProgressFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, crawler.ErrNoCheckpoint
	}
	if err != nil {
		return nil, err
	}
	var tree crawler.Tree
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ProgressFile, err)
	}
	if tree.Subtitles == nil {
		tree.Subtitles = []*crawler.Node{}
	}
	return &tree, nil
}

// Exists reports whether a tree checkpoint is present.
func (s *Store) Exists() bool {
	return s.store.Exists(ProgressFile)
}

// Save overwrites the tree checkpoint.
func (s *Store) Save(tree *crawler.Tree) error {
	if err := s.writeJSON(ProgressFile, tree); err != nil {
		return err
	}
	s.logger.Info("tree checkpoint saved", zap.Int("subtitles", len(tree.Subtitles)))
	return nil
}

// SaveFinal writes the complete tree and the plain-text summary.
func (s *Store) SaveFinal(tree *crawler.Tree) error {
	if err := s.writeJSON(CompleteFile, tree); err != nil {
		return err
	}
	if err := s.store.Save(context.Background(), SummaryFile, []byte(RenderSummary(tree))); err != nil {
		return &crawler.PersistenceError{Op: "write", Path: SummaryFile, Err: err}
	}
	s.logger.Info("final output saved", zap.String("data", CompleteFile), zap.String("summary", SummaryFile))
	return nil
}

// Remove deletes the tree checkpoint.
func (s *Store) Remove() error {
	if err := s.store.Remove(ProgressFile); err != nil {
		return &crawler.PersistenceError{Op: "reset", Path: ProgressFile, Err: err}
	}
	return nil
}

func (s *Store) writeJSON(name string, tree *crawler.Tree) error {
	data, err := storage.EncodeJSON(tree)
	if err != nil {
		return &crawler.PersistenceError{Op: "encode", Path: name, Err: err}
	}
	if err := s.store.Save(context.Background(), name, data); err != nil {
		return &crawler.PersistenceError{Op: "write", Path: name, Err: err}
	}
	return nil
}

// RenderSummary formats the human-readable run summary.
func RenderSummary(tree *crawler.Tree) string {
	var b strings.Builder
	b.WriteString("IRC Code Scrape Summary\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "Scrape Date: %s\n", tree.Metadata.ScrapeDate.Format(time.RFC3339))
	fmt.Fprintf(&b, "Source: %s\n\n", tree.Metadata.SourceURL)

	for _, subtitle := range tree.Subtitles {
		fmt.Fprintf(&b, "\n%s\n", subtitle.Title)
		fmt.Fprintf(&b, "  Chapters: %d\n", subtitle.CountLevel(crawler.LevelChapter))
		fmt.Fprintf(&b, "  Sections: %d\n", subtitle.CountLevel(crawler.LevelSection))
	}
	fmt.Fprintf(&b, "\n\nTotal Sections Scraped: %d\n", tree.SectionCount())
	return b.String()
}
