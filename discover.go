package main

import (
	"fmt"
	"path/filepath"
	"time"

	"webtext/internal/crawler"
	"webtext/internal/discover"
	"webtext/internal/output"

	"github.com/spf13/cobra"
)

var crawlDiscovered bool

func newDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover URL",
		Short: "Find same-site pages reachable from URL, optionally crawling each",
		Long: `discover follows links breadth-first from URL without leaving its host,
skipping images, scripts, archives and other files. With --crawl every
discovered page is crawled in turn with the power interaction sequence and
saved into a new crawl_results_<timestamp>_<id> directory together with a
report.md summary.`,
		Args:         cobra.ExactArgs(1),
		RunE:         runDiscover,
		SilenceUsage: true,
	}

	f := cmd.Flags()
	f.Int("depth", 2, "Maximum link depth from the start page")
	f.Int("max-pages", 50, "Maximum number of pages")
	f.Duration("delay", time.Second, "Delay between page requests")
	f.BoolVar(&crawlDiscovered, "crawl", false, "Crawl every discovered page")
	return cmd
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, log, catalog, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := runContext(cfg.Timeout)
	defer cancel()

	start := normalizeURL(args[0])
	opts := cfg.Discover
	opts.UserAgent = cfg.Browser.UserAgent
	urls, err := discover.Discover(ctx, start, opts, log)
	if err != nil {
		return err
	}
	log.Info("discovery finished", "start", start, "pages", len(urls))

	if !crawlDiscovered {
		for _, u := range urls {
			fmt.Fprintln(cmd.OutOrStdout(), u)
		}
		return nil
	}

	started := time.Now()
	dir, err := output.NewBatchDir(cfg.OutputDir, started)
	if err != nil {
		return err
	}

	c := newCrawler(cfg, log, catalog)
	reqs := make([]crawler.Request, 0, len(urls))
	for _, u := range urls {
		req := c.NewRequest(u)
		req.Power = true
		reqs = append(reqs, req)
	}

	entries := make([]output.BatchEntry, 0, len(reqs))
	failed := 0
	_, crawlErr := c.CrawlAll(ctx, reqs, cfg.Discover.Delay, func(_ int, res *crawler.Result) {
		entry := output.BatchEntry{URL: res.URL, Result: res}
		if res.Success() {
			path, err := output.Save(dir, res)
			if err != nil {
				log.Error("failed to save result", "url", res.URL, "error", err)
			} else {
				entry.File = filepath.Base(path)
			}
		} else {
			failed++
		}
		entries = append(entries, entry)
	})

	output.BatchReport(cmd.OutOrStdout(), entries)
	report, err := output.WriteBatchReport(dir, start, started, entries)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Results written to: %s\nReport: %s\n", dir, report)

	if crawlErr != nil {
		return crawlErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pages failed", failed, len(reqs))
	}
	return nil
}
