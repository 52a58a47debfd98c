// Package extract turns rendered page HTML into markdown, plain text and
// metadata.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Markdown converts HTML to markdown. Tables become pipe tables.
func Markdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	converter.Remove("head", "script", "style", "noscript", "template")
	converter.AddRules(md.Rule{
		Filter: []string{"table"},
		Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
			table := tableToMarkdown(selec)
			if table == "" {
				return nil
			}
			return md.String("\n\n" + table + "\n\n")
		},
	})

	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to Markdown: %w", err)
	}
	return cleanMarkdown(markdown), nil
}

func cleanMarkdown(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// tableToMarkdown renders a table with its header row taken from thead, or
// from the first row when there is no thead.
func tableToMarkdown(table *goquery.Selection) string {
	headers := []string{}
	headerRow := table.Find("thead tr").First()
	if headerRow.Length() == 0 {
		headerRow = table.Find("tr").First()
	}
	headerRow.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		headers = append(headers, cellText(cell))
	})
	if len(headers) < 1 {
		return ""
	}

	var builder strings.Builder
	writeRow(&builder, headers)
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(&builder, sep)

	dataRows := table.Find("tbody tr")
	if dataRows.Length() == 0 || table.Find("thead").Length() == 0 {
		dataRows = table.Find("tr").Slice(1, goquery.ToEnd)
	}
	dataRows.Each(func(_ int, row *goquery.Selection) {
		cells := []string{}
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, cellText(cell))
		})
		if len(cells) >= 1 {
			writeRow(&builder, cells)
		}
	})

	return strings.TrimRight(builder.String(), "\n")
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |\n")
}

func cellText(cell *goquery.Selection) string {
	text := strings.Join(strings.Fields(cell.Text()), " ")
	return strings.ReplaceAll(text, "|", `\|`)
}
