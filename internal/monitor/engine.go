// Package monitor orchestrates one check cycle: fetch every configured
// seller page, diff the products against the persisted seen-set, send one
// batched notification per page for anything new, then commit the set.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xyseins/bs-monitor/internal/models"
	"github.com/xyseins/bs-monitor/internal/notify"
	"github.com/xyseins/bs-monitor/internal/scraper"
	"github.com/xyseins/bs-monitor/internal/store"
)

// Fetcher is the retrying fetch boundary; no raw browser error type crosses
// it except as a classified timeout.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]models.ProductRecord, error)
}

// ErrCycleInFlight is returned when RunCycle is invoked while a previous
// cycle is still running. The overlapping cycle is skipped, never queued.
var ErrCycleInFlight = errors.New("check cycle already in flight")

type Engine struct {
	fetcher  Fetcher
	store    store.Store
	notifier notify.Notifier
	urls     []string
	logger   *slog.Logger

	// runMu makes cycles single-flight: two concurrent cycles reading the
	// same seen snapshot would both decide an item is new and double-notify.
	runMu sync.Mutex

	summaryMu sync.RWMutex
	last      *CycleSummary
}

// URLResult is the per-source outcome of one cycle, kept for the status API.
type URLResult struct {
	URL      string `json:"url"`
	Products int    `json:"products"`
	New      int    `json:"new"`
	Error    string `json:"error,omitempty"`
}

type CycleSummary struct {
	ID         string      `json:"id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Results    []URLResult `json:"results"`
	Error      string      `json:"error,omitempty"`
}

func NewEngine(fetcher Fetcher, st store.Store, notifier notify.Notifier, urls []string, logger *slog.Logger) *Engine {
	return &Engine{
		fetcher:  fetcher,
		store:    st,
		notifier: notifier,
		urls:     urls,
		logger:   logger.With("component", "engine"),
	}
}

// RunCycle performs one full pass over the configured seller pages. URLs are
// processed strictly sequentially, in configuration order, and the updated
// seen-set is committed once at the end regardless of per-URL failures.
// A load or commit failure is the cycle's error; everything else degrades to
// per-URL warnings.
func (e *Engine) RunCycle(ctx context.Context) error {
	if !e.runMu.TryLock() {
		e.logger.Warn("skipping cycle, previous cycle still in flight")
		return ErrCycleInFlight
	}
	defer e.runMu.Unlock()

	summary := &CycleSummary{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	logger := e.logger.With("cycle_id", summary.ID)
	logger.Info("starting check cycle", "urls", len(e.urls))

	seen, err := e.store.Load(ctx)
	if err != nil {
		// Corrupt state must not be treated as "nothing seen": that would
		// re-notify every historical product.
		err = fmt.Errorf("cannot start cycle: %w", err)
		e.finish(summary, err)
		return err
	}

	accumulator := maps.Clone(seen)

	for _, url := range e.urls {
		if ctx.Err() != nil {
			logger.Warn("cycle interrupted, committing completed sources", "error", ctx.Err())
			break
		}
		summary.Results = append(summary.Results, e.checkSource(ctx, logger, url, seen, accumulator))
	}

	// Commit survives mid-cycle cancellation so already-notified products
	// are not re-sent on the next start.
	if err := e.store.Save(context.WithoutCancel(ctx), accumulator); err != nil {
		err = fmt.Errorf("cannot commit seen-set: %w", err)
		e.finish(summary, err)
		return err
	}

	e.finish(summary, nil)
	logger.Info("check cycle complete",
		"sources", len(summary.Results),
		"seen_total", len(accumulator),
		"duration", time.Since(summary.StartedAt),
	)
	return nil
}

// checkSource fetches one seller page and notifies about products absent from
// the cycle-start snapshot. Membership is tested against that snapshot, not
// the accumulator: two pages listing the same product in one cycle each
// report it before the fingerprint is committed.
func (e *Engine) checkSource(ctx context.Context, logger *slog.Logger, url string, seen, accumulator map[string]struct{}) URLResult {
	result := URLResult{URL: url}

	products, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		result.Error = err.Error()
		if scraper.IsTimeout(err) {
			logger.Warn("source timed out after retries", "url", url, "error", err)
			if nerr := e.notifier.Send(ctx, formatTimeoutWarning(url)); nerr != nil {
				logger.Error("failed to deliver timeout warning", "url", url, "error", nerr)
			}
		} else {
			logger.Error("source fetch failed", "url", url, "error", err)
		}
		return result
	}
	result.Products = len(products)

	var added []models.ProductRecord
	for _, p := range products {
		if _, ok := seen[p.Fingerprint()]; !ok {
			added = append(added, p)
		}
	}
	result.New = len(added)

	if len(added) == 0 {
		logger.Debug("no new products", "url", url, "products", len(products))
		return result
	}

	logger.Info("new products found", "url", url, "count", len(added))

	// Delivery failure is logged but the fingerprints still count as seen;
	// retrying forever against a flapping sink would duplicate sends without
	// bound.
	if err := e.notifier.Send(ctx, formatNewProducts(url, added)); err != nil {
		logger.Error("failed to deliver notification", "url", url, "error", err)
	}
	for _, p := range added {
		accumulator[p.Fingerprint()] = struct{}{}
	}

	return result
}

func (e *Engine) finish(summary *CycleSummary, err error) {
	summary.FinishedAt = time.Now().UTC()
	if err != nil {
		summary.Error = err.Error()
	}
	e.summaryMu.Lock()
	e.last = summary
	e.summaryMu.Unlock()
}

// LastCycle returns the most recent cycle summary, or nil before the first
// cycle has finished.
func (e *Engine) LastCycle() *CycleSummary {
	e.summaryMu.RLock()
	defer e.summaryMu.RUnlock()
	return e.last
}

func formatNewProducts(url string, added []models.ProductRecord) string {
	lines := make([]string, 0, len(added)+1)
	lines = append(lines, fmt.Sprintf("<b>New products from seller</b>\n%s", url))
	for _, p := range added {
		lines = append(lines, fmt.Sprintf("• %s — %s (available: %s)", p.Name, p.Price, p.Availability))
	}
	return strings.Join(lines, "\n")
}

func formatTimeoutWarning(url string) string {
	return fmt.Sprintf("⚠️ <b>Timed out loading seller page</b>\n%s", url)
}
