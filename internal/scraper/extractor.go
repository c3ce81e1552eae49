// Package scraper extracts product records from a rendered seller listing
// page and wraps the extraction in bounded retries for transient timeouts.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"

	"github.com/xyseins/bs-monitor/internal/browser"
	"github.com/xyseins/bs-monitor/internal/models"
	"github.com/xyseins/bs-monitor/internal/text"
)

// productRowSelector matches the rows of the seller's product table once the
// client-side rendering has filled it in.
const productRowSelector = "table tbody tr"

// listingColumns is the cell layout of a product row. Columns 1 and 3 hold
// presentational data and are skipped.
const (
	colName         = 0
	colPrice        = 2
	colAvailability = 4
	minCells        = 5
)

type Extractor struct {
	browser *browser.Browser
	logger  *slog.Logger
}

func NewExtractor(b *browser.Browser, logger *slog.Logger) *Extractor {
	return &Extractor{
		browser: b,
		logger:  logger.With("component", "extractor"),
	}
}

// Extract renders url in a fresh isolated browsing context and returns the
// product rows in page order. All-or-nothing: an error means no records.
// The context is torn down on every exit path.
func (e *Extractor) Extract(ctx context.Context, url string) ([]models.ProductRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bctx, err := e.browser.NewIsolatedContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create browsing context: %w", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	timeoutMs := playwright.Float(float64(e.browser.Timeout().Milliseconds()))

	if _, err := page.Goto(url, playwright.PageGotoOptions{Timeout: timeoutMs}); err != nil {
		if isPlaywrightTimeout(err) {
			return nil, &TimeoutError{Kind: TimeoutNavigation, URL: url, Err: err}
		}
		return nil, fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	// The table body is filled in by the page's scripts after load; waiting
	// for the first row covers both slow renders and layout changes.
	if _, err := page.WaitForSelector(productRowSelector, playwright.PageWaitForSelectorOptions{
		Timeout: timeoutMs,
	}); err != nil {
		if isPlaywrightTimeout(err) {
			return nil, &TimeoutError{Kind: TimeoutRender, URL: url, Err: err}
		}
		return nil, fmt.Errorf("waiting for product table on %s failed: %w", url, err)
	}

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	products, err := parseListing(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing %s: %w", url, err)
	}

	e.logger.Debug("extracted listing", "url", url, "products", len(products))

	return products, nil
}

// parseListing walks the product table of a rendered listing page. Rows with
// fewer than five cells are skipped; merged or malformed rows must not break
// the extraction.
func parseListing(html string) ([]models.ProductRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var products []models.ProductRecord
	doc.Find(productRowSelector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < minCells {
			return
		}
		products = append(products, models.NewProductRecord(
			text.Normalize(cells.Eq(colName).Text()),
			text.Normalize(cells.Eq(colPrice).Text()),
			text.Normalize(cells.Eq(colAvailability).Text()),
		))
	})

	return products, nil
}

func isPlaywrightTimeout(err error) bool {
	if errors.Is(err, playwright.ErrTimeout) {
		return true
	}
	// The driver occasionally reports deadline expiry as a plain error.
	return strings.Contains(err.Error(), "Timeout") && strings.Contains(err.Error(), "exceeded")
}
