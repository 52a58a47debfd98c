// Package output renders crawl results for the terminal and writes them to
// disk.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"webtext/internal/crawler"
)

// PreviewLength is the number of characters shown in a summary preview.
const PreviewLength = 200

const (
	maxSlugLength = 100
	separator     = "============================================================"
)

// Formats accepted by Format.
var Formats = []string{"summary", "markdown", "text", "json"}

// ValidFormat reports whether f is one of Formats.
func ValidFormat(f string) bool {
	for _, v := range Formats {
		if f == v {
			return true
		}
	}
	return false
}

// Summary writes the fixed-format crawl summary.
func Summary(w io.Writer, r *crawler.Result) {
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, "Crawl Summary")
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "URL: %s\n", orNA(r.URL))
	fmt.Fprintf(w, "Title: %s\n", orNA(r.Title))
	fmt.Fprintf(w, "Status: %s\n", r.Status)

	if r.Success() {
		fmt.Fprintf(w, "Markdown length: %d characters\n", utf8.RuneCountInString(r.Markdown))
		if r.Interaction != nil {
			state := "stopped at round limit"
			if r.Interaction.Converged {
				state = "converged"
			}
			fmt.Fprintf(w, "Interaction: %s (%d rounds, %s)\n", r.Interaction.Strategy, r.Interaction.Rounds, state)
		}
		if r.Markdown != "" {
			fmt.Fprintf(w, "Preview: %s\n", Preview(r.Markdown, PreviewLength))
		}
	}

	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", r.Error)
		if hint := Hint(r.ErrorKind); hint != "" {
			fmt.Fprintf(w, "Hint: %s\n", hint)
		}
	}
	fmt.Fprintln(w, separator)
}

// Preview returns the first n characters of s followed by "...", or s
// unchanged when it is short enough.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// Hint suggests a fix for an error kind.
func Hint(kind string) string {
	switch kind {
	case crawler.KindLoadTimeout:
		return "the page loaded too slowly; try a larger --page-timeout or --wait-for-timeout"
	case crawler.KindNavigation:
		return "check the URL and your network or proxy settings"
	case crawler.KindExtraction:
		return "the page closed or blocked script access; try --visible or --stealth"
	}
	return ""
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a URL into a file-system safe name. Long names are cut and
// suffixed with a hash of the full URL.
func Slugify(rawURL string) string {
	s := strings.ToLower(strings.TrimSpace(rawURL))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "www.")
	s = strings.Trim(slugInvalid.ReplaceAllString(s, "_"), "_")
	if s == "" {
		s = "page"
	}
	if len(s) > maxSlugLength {
		h := fnv.New32a()
		_, _ = h.Write([]byte(rawURL))
		s = fmt.Sprintf("%s_%08x", strings.TrimRight(s[:maxSlugLength-9], "_"), h.Sum32())
	}
	return s
}

// Filename is the name Save uses for url.
func Filename(rawURL string) string {
	return "crawled_" + Slugify(rawURL) + ".md"
}

// Save writes r's markdown to dir, replacing any earlier file for the same
// URL, and returns the path.
func Save(dir string, r *crawler.Result) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", orNA(r.Title))
	fmt.Fprintf(&b, "URL: %s\n\n", r.URL)
	b.WriteString("---\n\n")
	b.WriteString(r.Markdown)
	b.WriteString("\n")

	path := filepath.Join(dir, Filename(r.URL))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write to file: %w", err)
	}
	return path, nil
}

// Format renders r as summary, markdown, text or json.
func Format(r *crawler.Result, format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "summary":
		var buf bytes.Buffer
		Summary(&buf, r)
		return buf.String(), nil
	case "markdown":
		return r.Markdown, nil
	case "text":
		return r.Text, nil
	case "json":
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
