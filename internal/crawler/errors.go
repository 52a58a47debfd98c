package crawler

import "errors"

var (
	// ErrLoadTimeout means the page did not load, or the wait condition was
	// not met, before its timeout.
	ErrLoadTimeout = errors.New("page load timed out")
	// ErrNavigation means the browser could not reach the target.
	ErrNavigation = errors.New("navigation failed")
	// ErrExtraction means the page loaded but its content could not be read.
	ErrExtraction = errors.New("content extraction failed")
)

// Error kinds as reported in a Result.
const (
	KindLoadTimeout = "load_timeout"
	KindNavigation  = "navigation"
	KindExtraction  = "extraction"
)

// Kind maps an error to its reported kind, or "" when it has none.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLoadTimeout):
		return KindLoadTimeout
	case errors.Is(err, ErrNavigation):
		return KindNavigation
	case errors.Is(err, ErrExtraction):
		return KindExtraction
	}
	return ""
}
