package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/xyseins/bs-monitor/internal/models"
)

// PageFetcher is what the engine consumes; Extractor satisfies it directly
// and RetryingFetcher wraps one.
type PageFetcher interface {
	Extract(ctx context.Context, url string) ([]models.ProductRecord, error)
}

// RetryingFetcher retries timed-out extractions with a fixed delay between
// strictly sequential attempts. Non-timeout errors are configuration bugs
// and propagate on the first attempt.
type RetryingFetcher struct {
	extractor   PageFetcher
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
}

func NewRetryingFetcher(extractor PageFetcher, maxAttempts int, retryDelay time.Duration, logger *slog.Logger) *RetryingFetcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryingFetcher{
		extractor:   extractor,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		logger:      logger.With("component", "fetcher"),
	}
}

// Fetch runs up to maxAttempts extractions of url. On exhaustion the last
// timeout error is returned unwrapped so the caller can still classify it.
func (f *RetryingFetcher) Fetch(ctx context.Context, url string) ([]models.ProductRecord, error) {
	var lastErr error

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := f.sleep(ctx); err != nil {
				return nil, err
			}
			f.logger.Info("retrying fetch", "url", url, "attempt", attempt, "max_attempts", f.maxAttempts)
		}

		products, err := f.extractor.Extract(ctx, url)
		if err == nil {
			return products, nil
		}
		if !IsTimeout(err) {
			return nil, err
		}

		f.logger.Warn("fetch attempt timed out", "url", url, "attempt", attempt, "error", err)
		lastErr = err
	}

	return nil, lastErr
}

func (f *RetryingFetcher) sleep(ctx context.Context) error {
	if f.retryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(f.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
