package scraper

import (
	"errors"
	"fmt"
)

// TimeoutKind distinguishes the two deadline failures a page load can hit.
// Both are transient from the caller's point of view; a render timeout also
// covers "the page layout changed", which the scraper cannot tell apart.
type TimeoutKind string

const (
	TimeoutNavigation TimeoutKind = "navigation"
	TimeoutRender     TimeoutKind = "render"
)

// TimeoutError is the only error class the retrying fetcher treats as
// transient. Anything else coming out of an extraction is a caller bug and
// surfaces immediately.
type TimeoutError struct {
	Kind TimeoutKind
	URL  string
	Err  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
