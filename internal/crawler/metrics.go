package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched tracks successful page fetches across all levels.
	PagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "irccrawler_pages_fetched_total",
		Help: "The total number of pages fetched successfully.",
	})
	// FetchAttempts tracks every HTTP attempt, retries included.
	FetchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "irccrawler_fetch_attempts_total",
		Help: "The total number of HTTP attempts sent.",
	})
	// FetchRetries tracks attempts that were followed by a backoff.
	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "irccrawler_fetch_retries_total",
		Help: "The total number of retried HTTP attempts.",
	})
	// FetchFailures tracks URLs that exhausted their attempts.
	FetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "irccrawler_fetch_failures_total",
		Help: "The total number of URLs that failed after all attempts.",
	})
	// ThrottleWait observes how long each request waited for the global limiter.
	ThrottleWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "irccrawler_throttle_wait_seconds",
		Help:    "Time spent waiting for the global request limiter.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})
	// SectionsWritten tracks sections persisted in this process.
	SectionsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "irccrawler_sections_written_total",
		Help: "The total number of section files written.",
	})
	// SectionsSkipped tracks sections skipped because they were already complete.
	SectionsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "irccrawler_sections_skipped_total",
		Help: "The total number of sections skipped as already complete.",
	})
	// SectionFailures tracks sections that could not be completed, by stage.
	SectionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "irccrawler_section_failures_total",
		Help: "The total number of sections that failed, labelled by stage.",
	}, []string{"stage"})
	// UnitFailures tracks branch pages that could not be fetched, by level.
	UnitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "irccrawler_unit_failures_total",
		Help: "The total number of hierarchy units whose page could not be fetched.",
	}, []string{"level"})
	// CompletedSections reports the size of the completion set.
	CompletedSections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "irccrawler_completed_sections",
		Help: "The number of sections recorded as complete.",
	})
)
