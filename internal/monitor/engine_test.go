package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xyseins/bs-monitor/internal/models"
	"github.com/xyseins/bs-monitor/internal/scraper"
	"github.com/xyseins/bs-monitor/internal/store"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string][]models.ProductRecord
	errs  map[string]error
	calls []string
	block chan struct{} // when set, Fetch parks until closed
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]models.ProductRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	return f.pages[url], nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *fakeNotifier) Send(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, text)
	return nil
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func product(name, price, availability string) models.ProductRecord {
	return models.NewProductRecord(name, price, availability)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fileStore(t *testing.T) *store.FileStore {
	t.Helper()
	return store.NewFileStore(filepath.Join(t.TempDir(), "seen.json"))
}

func timeoutErr(url string) error {
	return &scraper.TimeoutError{Kind: scraper.TimeoutRender, URL: url, Err: errors.New("deadline")}
}

const sellerA = "https://market.example/seller/a"
const sellerB = "https://market.example/seller/b"

func TestFirstRunNotifiesAllProducts(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]models.ProductRecord{
		sellerA: {
			product("Steam 50 USD", "47.20", "12"),
			product("iTunes 25 EUR", "22.00", "5"),
			product("PSN 10 GBP", "9.10", "40"),
		},
	}}
	notifier := &fakeNotifier{}
	st := fileStore(t)
	engine := NewEngine(fetcher, st, notifier, []string{sellerA}, discardLogger())

	require.NoError(t, engine.RunCycle(context.Background()))

	msgs := notifier.sent()
	require.Len(t, msgs, 1, "one batched notification per URL")
	assert.Contains(t, msgs[0], sellerA)
	assert.Contains(t, msgs[0], "<b>New products from seller</b>")
	assert.Contains(t, msgs[0], "• Steam 50 USD — 47.20 (available: 12)")
	assert.Contains(t, msgs[0], "• iTunes 25 EUR — 22.00 (available: 5)")
	assert.Contains(t, msgs[0], "• PSN 10 GBP — 9.10 (available: 40)")

	seen, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, seen, 3)
	assert.Contains(t, seen, "Steam 50 USD|47.20")
}

func TestSecondRunWithNoChangesSendsNothing(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]models.ProductRecord{
		sellerA: {product("Steam 50 USD", "47.20", "12")},
	}}
	notifier := &fakeNotifier{}
	st := fileStore(t)
	engine := NewEngine(fetcher, st, notifier, []string{sellerA}, discardLogger())

	require.NoError(t, engine.RunCycle(context.Background()))
	require.NoError(t, engine.RunCycle(context.Background()))

	assert.Len(t, notifier.sent(), 1, "second identical cycle is silent")
}

func TestAvailabilityOnlyChangeIsNotNew(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]models.ProductRecord{
		sellerA: {product("Steam 50 USD", "47.20", "12")},
	}}
	notifier := &fakeNotifier{}
	st := fileStore(t)
	engine := NewEngine(fetcher, st, notifier, []string{sellerA}, discardLogger())

	require.NoError(t, engine.RunCycle(context.Background()))

	fetcher.pages[sellerA] = []models.ProductRecord{product("Steam 50 USD", "47.20", "3")}
	require.NoError(t, engine.RunCycle(context.Background()))

	assert.Len(t, notifier.sent(), 1, "stock change on a seen item must not re-notify")
}

func TestPriceChangeIsNew(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]models.ProductRecord{
		sellerA: {product("Steam 50 USD", "47.20", "12")},
	}}
	notifier := &fakeNotifier{}
	st := fileStore(t)
	engine := NewEngine(fetcher, st, notifier, []string{sellerA}, discardLogger())

	require.NoError(t, engine.RunCycle(context.Background()))

	fetcher.pages[sellerA] = []models.ProductRecord{product("Steam 50 USD", "45.00", "12")}
	require.NoError(t, engine.RunCycle(context.Background()))

	msgs := notifier.sent()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1], "45.00")
}

func TestTimeoutOnOneSourceDoesNotBlockOthers(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[string][]models.ProductRecord{
			sellerB: {product("PSN 10 GBP", "9.10", "40")},
		},
		errs: map[string]error{sellerA: timeoutErr(sellerA)},
	}
	notifier := &fakeNotifier{}
	st := fileStore(t)
	engine := NewEngine(fetcher, st, notifier, []string{sellerA, sellerB}, discardLogger())

	require.NoError(t, engine.RunCycle(context.Background()))

	assert.Equal(t, []string{sellerA, sellerB}, fetcher.calls)

	msgs := notifier.sent()
	require.Len(t, msgs, 2)

	var warnings, batches int
	for _, m := range msgs {
		switch {
		case strings.Contains(m, "Timed out") && strings.Contains(m, sellerA):
			warnings++
		case strings.Contains(m, "New products") && strings.Contains(m, sellerB):
			batches++
		}
	}
	assert.Equal(t, 1, warnings, "exactly one warning for the degraded URL")
	assert.Equal(t, 1, batches)

	seen, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, seen, 1, "healthy source still committed")
}

func TestNonTimeoutFetchErrorSendsNoWarning(t *testing.T) {
	fetcher := &fakeFetcher{errs: map[string]error{sellerA: errors.New("net::ERR_NAME_NOT_RESOLVED")}}
	notifier := &fakeNotifier{}
	engine := NewEngine(fetcher, fileStore(t), notifier, []string{sellerA}, discardLogger())

	require.NoError(t, engine.RunCycle(context.Background()))
	assert.Empty(t, notifier.sent())

	last := engine.LastCycle()
	require.NotNil(t, last)
	require.Len(t, last.Results, 1)
	assert.Contains(t, last.Results[0].Error, "ERR_NAME_NOT_RESOLVED")
}

func TestSnapshotDiffLetsBothSourcesReportSharedProduct(t *testing.T) {
	shared := product("Steam 50 USD", "47.20", "12")
	fetcher := &fakeFetcher{pages: map[string][]models.ProductRecord{
		sellerA: {shared},
		sellerB: {shared},
	}}
	notifier := &fakeNotifier{}
	st := fileStore(t)
	engine := NewEngine(fetcher, st, notifier, []string{sellerA, sellerB}, discardLogger())

	require.NoError(t, engine.RunCycle(context.Background()))

	// Diffing happens against the cycle-start snapshot, so both pages get to
	// report the product in the cycle that first observes it.
	assert.Len(t, notifier.sent(), 2)

	seen, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, seen, 1)
}

func TestCorruptStateAbortsCycleBeforeFetching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seen.json")
	require.NoError(t, writeFile(path, "{corrupt"))

	fetcher := &fakeFetcher{pages: map[string][]models.ProductRecord{
		sellerA: {product("Steam 50 USD", "47.20", "12")},
	}}
	notifier := &fakeNotifier{}
	engine := NewEngine(fetcher, store.NewFileStore(path), notifier, []string{sellerA}, discardLogger())

	err := engine.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, store.IsPersistence(err))
	assert.Empty(t, fetcher.calls, "no fetching on a corrupt seen-set")
	assert.Empty(t, notifier.sent())
}

func TestDeliveryFailureStillCommitsFingerprints(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]models.ProductRecord{
		sellerA: {product("Steam 50 USD", "47.20", "12")},
	}}
	notifier := &fakeNotifier{err: errors.New("sink unavailable")}
	st := fileStore(t)
	engine := NewEngine(fetcher, st, notifier, []string{sellerA}, discardLogger())

	require.NoError(t, engine.RunCycle(context.Background()))

	seen, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, seen, 1, "a flapping sink must not cause unbounded duplicate sends")
}

func TestOverlappingCycleIsSkipped(t *testing.T) {
	block := make(chan struct{})
	fetcher := &fakeFetcher{
		pages: map[string][]models.ProductRecord{sellerA: nil},
		block: block,
	}
	engine := NewEngine(fetcher, fileStore(t), &fakeNotifier{}, []string{sellerA}, discardLogger())

	done := make(chan error, 1)
	go func() { done <- engine.RunCycle(context.Background()) }()

	require.Eventually(t, func() bool {
		fetcher.mu.Lock()
		defer fetcher.mu.Unlock()
		return len(fetcher.calls) == 1
	}, time.Second, time.Millisecond, "first cycle should be mid-fetch")

	err := engine.RunCycle(context.Background())
	require.ErrorIs(t, err, ErrCycleInFlight)

	close(block)
	require.NoError(t, <-done)
}

func TestCancelledMidCycleStillCommitsCompletedSources(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fetcher := &fakeFetcher{pages: map[string][]models.ProductRecord{
		sellerA: {product("Steam 50 USD", "47.20", "12")},
	}}
	// Cancel after the first source completes.
	cancellingFetcher := fetchFunc(func(c context.Context, url string) ([]models.ProductRecord, error) {
		out, err := fetcher.Fetch(c, url)
		cancel()
		return out, err
	})

	notifier := &fakeNotifier{}
	st := fileStore(t)
	engine := NewEngine(cancellingFetcher, st, notifier, []string{sellerA, sellerB}, discardLogger())

	require.NoError(t, engine.RunCycle(ctx))

	assert.Equal(t, []string{sellerA}, fetcher.calls, "remaining sources abandoned")

	seen, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, seen, 1, "completed source committed despite cancellation")
}

func TestLastCycleSummary(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]models.ProductRecord{
		sellerA: {product("Steam 50 USD", "47.20", "12"), product("iTunes 25 EUR", "22.00", "5")},
	}}
	engine := NewEngine(fetcher, fileStore(t), &fakeNotifier{}, []string{sellerA}, discardLogger())

	assert.Nil(t, engine.LastCycle())

	require.NoError(t, engine.RunCycle(context.Background()))

	last := engine.LastCycle()
	require.NotNil(t, last)
	assert.NotEmpty(t, last.ID)
	assert.False(t, last.FinishedAt.Before(last.StartedAt))
	require.Len(t, last.Results, 1)
	assert.Equal(t, sellerA, last.Results[0].URL)
	assert.Equal(t, 2, last.Results[0].Products)
	assert.Equal(t, 2, last.Results[0].New)
}

// fetchFunc adapts a function to the Fetcher interface.
type fetchFunc func(ctx context.Context, url string) ([]models.ProductRecord, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) ([]models.ProductRecord, error) {
	return f(ctx, url)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
