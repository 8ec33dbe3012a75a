// Package collyfetcher implements crawler.Fetcher using gocolly, with a
// global request limiter and doubling retry backoff.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/irc-crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
}

// Throttle spaces requests. *ratelimit.Limiter satisfies it.
type Throttle interface {
	Wait(ctx context.Context) error
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	throttle      Throttle
	retry         *crawler.DoublingRetryPolicy
	sleep         func(ctx context.Context, d time.Duration)
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// statusError marks a non-2xx response.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.code, e.err)
}

func (e *statusError) Unwrap() error { return e.err }

// New builds a Fetcher. throttle may be nil.
func New(cfg Config, throttle Throttle, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
		colly.IgnoreRobotsTxt(),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		throttle:      throttle,
		retry:         crawler.NewDoublingRetryPolicy(cfg.MaxAttempts, cfg.BackoffBase),
		sleep:         crawler.Sleep,
		logger:        logger,
	}
}

// Fetch issues GET requests until one succeeds or the attempts run out.
// Every attempt waits for the throttle first.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.Page, error) {
	var (
		lastErr error
		attempt int
	)
	for {
		attempt++
		if f.throttle != nil {
			if err := f.throttle.Wait(ctx); err != nil {
				return crawler.Page{}, &crawler.TransportError{URL: rawURL, Attempts: attempt - 1, Err: err}
			}
		}
		crawler.FetchAttempts.Inc()
		page, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !f.retry.ShouldRetry(ctx, err, attempt) {
			break
		}
		delay := f.retry.Backoff(attempt)
		crawler.FetchRetries.Inc()
		f.logger.Warn("fetch attempt failed, backing off",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		f.sleep(ctx, delay)
	}
	crawler.FetchFailures.Inc()
	terr := &crawler.TransportError{URL: rawURL, Attempts: attempt, Err: lastErr}
	if serr, ok := lastErr.(*statusError); ok {
		terr.StatusCode = serr.code
	}
	return crawler.Page{}, terr
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (crawler.Page, error) {
	var (
		page     crawler.Page
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, rawURL, time.Now(), &page, &fetchErr)
	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return crawler.Page{}, err
	}
	return page, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	rawURL string,
	start time.Time,
	result *crawler.Page,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		page := crawler.Page{
			URL:        rawURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
		if r.Headers != nil {
			page.Headers = r.Headers.Clone()
		}
		*result = page
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && (r.StatusCode < 200 || r.StatusCode > 299) {
			*fetchErr = &statusError{code: r.StatusCode, err: err}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
