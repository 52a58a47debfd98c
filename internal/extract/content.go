package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"
)

// ErrNoMainContent is returned when no main content block can be found.
var ErrNoMainContent = errors.New("no main content found")

// MainContent isolates the article body of a page (boilerplate, navigation
// and comments removed) and returns it as markdown.
func MainContent(rawHTML, pageURL string) (string, error) {
	opts := trafilatura.Options{}
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		opts.OriginalURL = u
	}

	result, err := trafilatura.Extract(strings.NewReader(rawHTML), opts)
	if err != nil {
		return "", fmt.Errorf("main content extraction failed: %w", err)
	}
	if result == nil || result.ContentNode == nil {
		return "", ErrNoMainContent
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, result.ContentNode); err != nil {
		return "", fmt.Errorf("failed to render main content: %w", err)
	}
	markdown, err := Markdown(buf.String())
	if err != nil {
		return "", err
	}
	if markdown == "" {
		markdown = NormalizeText(result.ContentText)
	}
	if markdown == "" {
		return "", ErrNoMainContent
	}
	return markdown, nil
}
