package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"webtext/internal/crawler"
	"webtext/internal/interaction"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	descriptionWidth = 50
	selectorsWidth   = 40
	urlWidth         = 60
)

// ListInteractions prints every catalog entry plus the power sequence.
func ListInteractions(w io.Writer, catalog *interaction.Catalog) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: selectorsWidth},
		{Number: 4, WidthMax: descriptionWidth},
	})
	t.AppendHeader(table.Row{"Name", "Max Rounds", "Selectors", "Description"})

	for _, cfg := range catalog.List() {
		selectors := strings.Join(cfg.Selectors, ", ")
		if selectors == "" {
			selectors = "(script)"
		}
		t.AppendRow(table.Row{cfg.Name, cfg.Rounds(), selectors, cfg.Description})
	}
	t.AppendRow(table.Row{interaction.PowerName, "-", "expand_buttons, load_more", "Expand, load more, wait, then expand again"})
	t.AppendFooter(table.Row{"Total", len(catalog.Names()) + 1})
	t.Render()
}

// BatchEntry is one crawled page of a batch.
type BatchEntry struct {
	URL    string
	Result *crawler.Result
	File   string
}

// NewBatchDir creates a unique crawl_results_<timestamp>_<id> directory
// under root.
func NewBatchDir(root string, now time.Time) (string, error) {
	name := fmt.Sprintf("crawl_results_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create batch directory: %w", err)
	}
	return dir, nil
}

func batchTable(entries []BatchEntry) table.Writer {
	t := table.NewWriter()
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: urlWidth}})
	t.AppendHeader(table.Row{"#", "URL", "Status", "Title", "Markdown", "File"})

	succeeded := 0
	for i, e := range entries {
		status, title, length := string(crawler.StatusFailure), "", 0
		if e.Result != nil {
			status, title, length = string(e.Result.Status), e.Result.Title, len([]rune(e.Result.Markdown))
			if e.Result.Success() {
				succeeded++
			}
		}
		file := e.File
		if file == "" {
			file = "-"
		}
		t.AppendRow(table.Row{i + 1, e.URL, status, Preview(title, 40), length, file})
	}
	t.AppendFooter(table.Row{"", "Total", fmt.Sprintf("%d/%d succeeded", succeeded, len(entries))})
	return t
}

// BatchReport prints the batch outcome table.
func BatchReport(w io.Writer, entries []BatchEntry) {
	t := batchTable(entries)
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// WriteBatchReport writes report.md into dir and returns its path.
func WriteBatchReport(dir, startURL string, started time.Time, entries []BatchEntry) (string, error) {
	var b strings.Builder
	b.WriteString("# Crawl Report\n\n")
	fmt.Fprintf(&b, "- Start URL: %s\n", startURL)
	fmt.Fprintf(&b, "- Started: %s\n", started.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Pages: %d\n\n", len(entries))
	b.WriteString(batchTable(entries).RenderMarkdown())
	b.WriteString("\n")

	var failed []BatchEntry
	for _, e := range entries {
		if e.Result != nil && !e.Result.Success() {
			failed = append(failed, e)
		}
	}
	if len(failed) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, e := range failed {
			fmt.Fprintf(&b, "- %s: %s\n", e.URL, e.Result.Error)
		}
	}

	path := filepath.Join(dir, "report.md")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
