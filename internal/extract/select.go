package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoMatch is returned by Select when the selector matches nothing.
var ErrNoMatch = errors.New("selector matched no elements")

// Select returns the outer HTML of every element matching the CSS selector,
// in document order. An unparsable selector matches nothing.
func Select(html, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var parts []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil {
			parts = append(parts, h)
		}
	})
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoMatch, selector)
	}
	return strings.Join(parts, "\n"), nil
}
