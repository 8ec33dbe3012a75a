// Package tracker persists the set of completed section identities. The set
// only grows; Reset is the one operation that shrinks it.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/irc-crawler/internal/crawler"
	"github.com/JakeFAU/irc-crawler/internal/storage"
	"github.com/JakeFAU/irc-crawler/internal/storage/local"
)

// FileName is the completion set file under the output directory.
const FileName = "scraper_progress.json"

// Config controls persistence frequency.
type Config struct {
	// FlushEvery persists after this many marks. Values below 1 mean every mark.
	// A crash loses at most FlushEvery-1 marks; their section files are on
	// disk and are simply fetched again.
	FlushEvery int
}

// Progress is the on-disk representation.
type Progress struct {
	LastUpdated       time.Time `json:"last_updated"`
	CompletedSections []string  `json:"completed_sections"`
	TotalCompleted    int       `json:"total_completed"`
}

// Tracker implements crawler.CompletionTracker on the local store.
type Tracker struct {
	store      *local.Store
	clock      crawler.Clock
	flushEvery int
	logger     *zap.Logger

	mu      sync.Mutex
	done    map[string]struct{}
	pending int
}

// New builds an empty Tracker; call Load to read the persisted set.
func New(store *local.Store, cfg Config, clock crawler.Clock, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FlushEvery < 1 {
		cfg.FlushEvery = 1
	}
	return &Tracker{
		store:      store,
		clock:      clock,
		flushEvery: cfg.FlushEvery,
		logger:     logger,
		done:       make(map[string]struct{}),
	}
}

// ReadProgress reads the completion file. A missing file yields an empty
// Progress and no error.
func ReadProgress(store *local.Store) (Progress, error) {
	data, err := store.Load(FileName)
	if errors.Is(err, os.ErrNotExist) {
		return Progress{}, nil
	}
	if err != nil {
		return Progress{}, err
	}
	var progress Progress
	if err := json.Unmarshal(data, &progress); err != nil {
		return Progress{}, fmt.Errorf("decode %s: %w", FileName, err)
	}
	return progress, nil
}

// Load merges the persisted set into memory. A corrupt file is an error:
// continuing with an empty set would overwrite it on the next mark.
func (t *Tracker) Load() error {
	progress, err := ReadProgress(t.store)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range progress.CompletedSections {
		t.done[crawler.LeafID(id)] = struct{}{}
	}
	crawler.CompletedSections.Set(float64(len(t.done)))
	t.logger.Info("loaded completion set", zap.Int("completed", len(t.done)))
	return nil
}

// IsDone reports whether the section identity is complete.
func (t *Tracker) IsDone(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.done[crawler.LeafID(id)]
	return ok
}

// MarkDone adds id to the set and persists it according to FlushEvery.
// On a persistence error the id stays in memory and is written by the next
// successful flush.
func (t *Tracker) MarkDone(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := crawler.LeafID(id)
	if _, ok := t.done[key]; ok {
		return nil
	}
	t.done[key] = struct{}{}
	t.pending++
	crawler.CompletedSections.Set(float64(len(t.done)))
	if t.pending < t.flushEvery {
		return nil
	}
	return t.flushLocked()
}

// Flush persists any unflushed marks.
func (t *Tracker) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == 0 {
		return nil
	}
	return t.flushLocked()
}

// Len returns the number of completed sections.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.done)
}

// Reset empties the set and removes the file.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.Remove(FileName); err != nil {
		return &crawler.PersistenceError{Op: "reset", Path: FileName, Err: err}
	}
	t.done = make(map[string]struct{})
	t.pending = 0
	crawler.CompletedSections.Set(0)
	return nil
}

func (t *Tracker) flushLocked() error {
	ids := make([]string, 0, len(t.done))
	for id := range t.done {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	data, err := storage.EncodeJSON(Progress{
		LastUpdated:       t.clock.Now(),
		CompletedSections: ids,
		TotalCompleted:    len(ids),
	})
	if err != nil {
		return &crawler.PersistenceError{Op: "encode", Path: FileName, Err: err}
	}
	if err := t.store.Save(context.Background(), FileName, data); err != nil {
		return &crawler.PersistenceError{Op: "write", Path: FileName, Err: err}
	}
	t.pending = 0
	return nil
}
