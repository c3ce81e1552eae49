// Package text holds small string helpers shared by the scraper.
package text

import "strings"

// Normalize collapses every run of whitespace (spaces, tabs, newlines) into a
// single ASCII space and trims the ends. Idempotent.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
