package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL, retrying transient failures.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Navigator classifies the hierarchy links found on a page.
type Navigator interface {
	Classify(page Page) []Unit
}

// Extractor parses a fetched section page.
type Extractor interface {
	Extract(page Page, sectionNumber string) (SectionContent, error)
}

// SectionWriter persists section payloads and chapter summaries.
type SectionWriter interface {
	WriteSection(ctx context.Context, content SectionContent, subtitle, chapter, number string) (string, error)
	WriteChapterSummary(ctx context.Context, chapter *Node, subtitle string) (string, error)
}

// CompletionTracker is the persisted set of completed section identities.
type CompletionTracker interface {
	IsDone(id string) bool
	MarkDone(id string) error
	Flush() error
	Len() int
}

// TreeStore persists the hierarchy tree checkpoint and the final outputs.
type TreeStore interface {
	Load() (*Tree, error)
	Save(tree *Tree) error
	SaveFinal(tree *Tree) error
}

// Publisher pushes section notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Catalog records written sections in a queryable store.
type Catalog interface {
	RecordSection(ctx context.Context, record SectionRecord) error
}

// Hasher computes digests for integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
