package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Metadata collects the document title, language, canonical link and the
// description, keywords, author, og:* and twitter:* meta tags.
func Metadata(html string) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	meta := map[string]string{}
	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		meta["title"] = title
	}
	if lang, ok := doc.Find("html").Attr("lang"); ok && lang != "" {
		meta["lang"] = lang
	}
	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok && href != "" {
		meta["canonical"] = href
	}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key := s.AttrOr("name", "")
		if key == "" {
			key = s.AttrOr("property", "")
		}
		key = strings.ToLower(strings.TrimSpace(key))
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if key == "" || content == "" {
			return
		}
		switch {
		case key == "description", key == "keywords", key == "author":
		case strings.HasPrefix(key, "og:"), strings.HasPrefix(key, "twitter:"):
		default:
			return
		}
		if _, seen := meta[key]; !seen {
			meta[key] = content
		}
	})
	return meta, nil
}
