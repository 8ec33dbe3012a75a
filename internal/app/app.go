// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/irc-crawler/internal/checkpoint"
	"github.com/JakeFAU/irc-crawler/internal/clock/system"
	"github.com/JakeFAU/irc-crawler/internal/config"
	"github.com/JakeFAU/irc-crawler/internal/crawler"
	"github.com/JakeFAU/irc-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/irc-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/irc-crawler/internal/hash/sha256"
	"github.com/JakeFAU/irc-crawler/internal/id/uuid"
	"github.com/JakeFAU/irc-crawler/internal/navigator"
	"github.com/JakeFAU/irc-crawler/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/irc-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/irc-crawler/internal/sink"
	"github.com/JakeFAU/irc-crawler/internal/storage"
	"github.com/JakeFAU/irc-crawler/internal/storage/gcs"
	"github.com/JakeFAU/irc-crawler/internal/storage/local"
	"github.com/JakeFAU/irc-crawler/internal/storage/postgres"
	"github.com/JakeFAU/irc-crawler/internal/tracker"
)

// App holds the shared, long-lived services for one command invocation.
// The local pieces (output store, completion tracker, tree checkpoints) are
// built eagerly; the crawl pipeline and its network clients are only built by
// Engine, so read-only commands never dial out.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  crawler.Clock

	store       *local.Store
	tracker     *tracker.Tracker
	checkpoints *checkpoint.Store

	engine  *crawler.Engine
	closers []io.Closer
}

// NewApp creates the local services rooted at cfg.Output.Dir. The completion
// set is loaded immediately so a corrupt file fails fast.
func NewApp(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := local.New(local.Config{BaseDir: cfg.Output.Dir})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize output dir: %w", err)
	}
	clock := system.New()
	tr := tracker.New(store, tracker.Config{FlushEvery: cfg.Output.FlushEvery}, clock, logger.Named("tracker"))
	if err := tr.Load(); err != nil {
		return nil, fmt.Errorf("failed to load completion set: %w", err)
	}
	return &App{
		cfg:         cfg,
		logger:      logger,
		clock:       clock,
		store:       store,
		tracker:     tr,
		checkpoints: checkpoint.New(store, logger.Named("checkpoint")),
	}, nil
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetStore exposes the output directory store.
func (a *App) GetStore() *local.Store {
	return a.store
}

// GetTracker exposes the completion set.
func (a *App) GetTracker() *tracker.Tracker {
	return a.tracker
}

// GetCheckpoints exposes the tree checkpoint store.
func (a *App) GetCheckpoints() *checkpoint.Store {
	return a.checkpoints
}

// Engine builds (once) the crawl engine with every optional integration the
// configuration enables: GCS mirroring, Pub/Sub notifications, and the
// Postgres catalog.
func (a *App) Engine(ctx context.Context) (*crawler.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	l := a.logger
	cfg := a.cfg

	limiter := ratelimit.New(ratelimit.Config{Delay: cfg.HTTP.Delay})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Site.UserAgent,
		Timeout:     cfg.HTTP.Timeout,
		MaxAttempts: cfg.HTTP.MaxAttempts,
		BackoffBase: cfg.HTTP.BackoffBase,
	}, limiter, l.Named("fetcher"))

	var mirrors []storage.Provider
	if cfg.GCS.Bucket != "" {
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gcs client: %w", err)
		}
		a.closers = append(a.closers, client)
		mirror, err := gcs.New(client, gcs.Config{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gcs mirror: %w", err)
		}
		l.Info("Mirroring sections to GCS", zap.String("bucket", cfg.GCS.Bucket))
		mirrors = append(mirrors, mirror)
	}

	deps := crawler.Dependencies{
		Fetcher: fetcher,
		Navigator: navigator.New(navigator.Config{
			PathPrefix:     cfg.Site.PathPrefix,
			Fragments:      cfg.Navigator.Fragments,
			DenyList:       cfg.Navigator.DenyList,
			MinTitleLength: cfg.Navigator.MinTitleLength,
		}, l.Named("navigator")),
		Extractor: extract.New(extract.Config{
			CitationFormat:  cfg.Extract.CitationFormat,
			ContentSelector: cfg.Extract.ContentSelector,
		}),
		Writer:  sink.New(a.store, l.Named("sink"), mirrors...),
		Tracker: a.tracker,
		Trees:   a.checkpoints,
		Hasher:  sha256.New(),
		Clock:   a.clock,
		IDs:     uuid.New(),
	}

	if cfg.PubSub.Topic != "" {
		publisher, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize pubsub: %w", err)
		}
		l.Info("Publishing section notifications", zap.String("topic", cfg.PubSub.Topic))
		a.closers = append(a.closers, publisher)
		deps.Publisher = publisher
	}

	if cfg.Catalog.DSN != "" {
		catalog, err := postgres.NewSectionStore(ctx, postgres.SectionStoreConfig{
			DSN:   cfg.Catalog.DSN,
			Table: cfg.Catalog.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize catalog: %w", err)
		}
		l.Info("Recording sections in Postgres", zap.String("table", cfg.Catalog.Table))
		a.closers = append(a.closers, closerFunc(func() error {
			catalog.Close()
			return nil
		}))
		deps.Catalog = catalog
	}

	a.engine = crawler.NewEngine(crawler.Config{
		TOCURL:      cfg.Site.TOCURL,
		NotifyTopic: cfg.PubSub.Topic,
	}, deps, l.Named("engine"))
	return a.engine, nil
}

// Reset removes the completion set and the tree checkpoint. Section files
// are left in place.
func (a *App) Reset() error {
	if err := a.tracker.Reset(); err != nil {
		return err
	}
	return a.checkpoints.Remove()
}

// Close flushes the completion set and releases network clients.
func (a *App) Close() error {
	var errs []error
	if err := a.tracker.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush completion set: %w", err))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("Error closing client", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
