// Package crawler loads a page in a browser, runs an interaction strategy
// against it and extracts its content.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"webtext/internal/browser"
	"webtext/internal/extract"
	"webtext/internal/interaction"
	"webtext/internal/logger"
	"webtext/internal/runner"
)

// Status of a crawl.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Timeouts bound the stages of a crawl.
type Timeouts struct {
	PageTimeout       time.Duration `mapstructure:"page_timeout"`
	WaitForTimeout    time.Duration `mapstructure:"wait_for_timeout"`
	DelayBeforeReturn time.Duration `mapstructure:"delay_before_return_html"`
}

// DefaultTimeouts match a typical dynamic page.
var DefaultTimeouts = Timeouts{
	PageTimeout:       60 * time.Second,
	WaitForTimeout:    30 * time.Second,
	DelayBeforeReturn: 2 * time.Second,
}

// Config holds settings shared by every request.
type Config struct {
	Browser     browser.Config
	Timeouts    Timeouts
	WaitFor     browser.WaitStrategy
	WaitTarget  string
	Selector    string // restrict extraction to matching elements
	MainContent bool
}

// Request is one page to crawl.
type Request struct {
	URL         string
	Interaction *interaction.Config // nil runs no interaction
	Power       bool                // run the power sequence instead of Interaction
	MaxRounds   int                 // 0 keeps the interaction's own bound
	Headless    bool
	Timeouts    Timeouts
}

// Result is the outcome of one crawl.
type Result struct {
	URL         string            `json:"url"`
	FinalURL    string            `json:"final_url,omitempty"`
	Status      Status            `json:"status"`
	Title       string            `json:"title"`
	Markdown    string            `json:"markdown"`
	Text        string            `json:"text"`
	HTML        string            `json:"html,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Interaction *runner.Report    `json:"interaction,omitempty"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	LoadTime    time.Duration     `json:"load_time"`
}

// Success reports whether the crawl produced content.
func (r *Result) Success() bool {
	return r != nil && r.Status == StatusSuccess
}

// Opener starts a browser.
type Opener func(ctx context.Context, cfg browser.Config, log logger.Interface) (browser.Browser, error)

// Crawler runs requests. It is safe for sequential use only.
type Crawler struct {
	cfg     Config
	catalog *interaction.Catalog
	runner  *runner.Runner
	open    Opener
	log     logger.Interface
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithOpener replaces the browser factory.
func WithOpener(open Opener) Option {
	return func(c *Crawler) { c.open = open }
}

// WithRunner replaces the strategy runner.
func WithRunner(r *runner.Runner) Option {
	return func(c *Crawler) { c.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l logger.Interface) Option {
	return func(c *Crawler) { c.log = l }
}

// New returns a Crawler using catalog for the power sequence.
func New(cfg Config, catalog *interaction.Catalog, opts ...Option) *Crawler {
	c := &Crawler{
		cfg:     cfg,
		catalog: catalog,
		open:    browser.New,
		log:     logger.NewNoOp(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runner == nil {
		c.runner = runner.New(runner.WithLogger(c.log))
	}
	if c.catalog == nil {
		c.catalog = interaction.Default()
	}
	return c
}

// NewRequest returns a request for url carrying the configured headless
// mode and timeouts.
func (c *Crawler) NewRequest(url string) Request {
	return Request{
		URL:      url,
		Headless: c.cfg.Browser.Headless,
		Timeouts: c.cfg.Timeouts,
	}
}

// Crawl loads req.URL, runs its interaction and extracts the content.
// Only a browser launch failure is returned as an error; every other
// failure is reported in the Result.
func (c *Crawler) Crawl(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	log := c.log.With("url", req.URL)
	result := &Result{URL: req.URL, Status: StatusFailure}

	bcfg := c.cfg.Browser
	bcfg.Headless = req.Headless
	b, err := c.open(ctx, bcfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("failed to close browser", "error", err)
		}
	}()

	page, err := b.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Warn("failed to close page", "error", err)
		}
	}()

	log.Info("crawling page", "interaction", interactionName(req))

	if err := c.load(ctx, page, req); err != nil {
		return c.fail(result, err, start), nil
	}

	if report := c.interact(ctx, page, req); report != nil {
		result.Interaction = report
	}

	if req.Timeouts.DelayBeforeReturn > 0 {
		if err := c.sleep(ctx, req.Timeouts.DelayBeforeReturn); err != nil {
			log.Warn("delay before return interrupted", "error", err)
		}
	}

	if err := c.extract(ctx, page, result); err != nil {
		return c.fail(result, err, start), nil
	}

	result.Status = StatusSuccess
	result.LoadTime = time.Since(start)
	log.Info("page crawled", "title", result.Title, "markdown_len", len(result.Markdown), "load_time", result.LoadTime)
	return result, nil
}

func (c *Crawler) load(ctx context.Context, page browser.Page, req Request) error {
	navCtx, cancel := withTimeout(ctx, req.Timeouts.PageTimeout)
	defer cancel()
	if err := page.Navigate(navCtx, req.URL); err != nil {
		if timedOut(navCtx, err) {
			return fmt.Errorf("%w after %s: %w", ErrLoadTimeout, req.Timeouts.PageTimeout, err)
		}
		return fmt.Errorf("%w: %w", ErrNavigation, err)
	}

	waitCtx, cancel := withTimeout(ctx, req.Timeouts.WaitForTimeout)
	defer cancel()
	strategy := c.cfg.WaitFor
	if strategy == "" {
		strategy = browser.WaitStrategyLoad
	}
	if err := page.Wait(waitCtx, strategy, c.cfg.WaitTarget); err != nil {
		if timedOut(waitCtx, err) {
			return fmt.Errorf("%w waiting for %s: %w", ErrLoadTimeout, strategy, err)
		}
		return fmt.Errorf("%w: wait strategy failed: %w", ErrNavigation, err)
	}
	return nil
}

func (c *Crawler) interact(ctx context.Context, page browser.Page, req Request) *runner.Report {
	switch {
	case req.Power:
		report := c.runner.RunPower(ctx, page, c.catalog)
		return &report
	case req.Interaction != nil:
		report := c.runner.Run(ctx, page, *req.Interaction, req.MaxRounds)
		return &report
	}
	return nil
}

func (c *Crawler) extract(ctx context.Context, page browser.Page, result *Result) error {
	html, err := page.HTML(ctx)
	if err != nil {
		return fmt.Errorf("%w: read HTML: %w", ErrExtraction, err)
	}
	result.HTML = html

	if finalURL, err := page.URL(ctx); err == nil {
		result.FinalURL = finalURL
	}

	title, err := page.Title(ctx)
	if err != nil {
		c.log.Debug("failed to read title", "error", err)
	}
	result.Title = strings.TrimSpace(title)

	if meta, err := extract.Metadata(html); err == nil {
		result.Metadata = meta
		if result.Title == "" {
			result.Title = meta["title"]
		}
	}

	if c.cfg.Selector != "" {
		return extractRegion(result, html, c.cfg.Selector)
	}

	text, err := page.Text(ctx)
	if err != nil || strings.TrimSpace(text) == "" {
		if text, err = extract.PlainText(html); err != nil {
			return fmt.Errorf("%w: %w", ErrExtraction, err)
		}
	}
	result.Text = extract.NormalizeText(text)

	if c.cfg.MainContent {
		pageURL := result.FinalURL
		if pageURL == "" {
			pageURL = result.URL
		}
		markdown, err := extract.MainContent(html, pageURL)
		if err == nil {
			result.Markdown = markdown
			return nil
		}
		c.log.Warn("main content extraction failed, using full page", "url", result.URL, "error", err)
	}

	markdown, err := extract.Markdown(html)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	result.Markdown = markdown
	return nil
}

// extractRegion fills text and markdown from the elements matching selector.
func extractRegion(result *Result, html, selector string) error {
	region, err := extract.Select(html, selector)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if result.Text, err = extract.PlainText(region); err != nil {
		return fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if result.Markdown, err = extract.Markdown(region); err != nil {
		return fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return nil
}

func (c *Crawler) fail(result *Result, err error, start time.Time) *Result {
	result.Status = StatusFailure
	result.Error = err.Error()
	result.ErrorKind = Kind(err)
	result.LoadTime = time.Since(start)
	c.log.Error("crawl failed", "url", result.URL, "kind", result.ErrorKind, "error", err)
	return result
}

// CrawlAll crawls reqs one after another, in order, pausing delay after
// every page but the last. It stops early only when a browser cannot be
// launched or ctx ends.
func (c *Crawler) CrawlAll(ctx context.Context, reqs []Request, delay time.Duration, onResult func(int, *Result)) ([]*Result, error) {
	results := make([]*Result, 0, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("batch interrupted: %w", err)
		}
		c.log.Info("batch progress", "index", i+1, "total", len(reqs), "url", req.URL)
		res, err := c.Crawl(ctx, req)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if onResult != nil {
			onResult(i, res)
		}

		if delay > 0 && i < len(reqs)-1 {
			if err := c.sleep(ctx, delay); err != nil {
				return results, fmt.Errorf("batch interrupted: %w", err)
			}
		}
	}
	return results, nil
}

func interactionName(req Request) string {
	switch {
	case req.Power:
		return interaction.PowerName
	case req.Interaction != nil:
		return req.Interaction.Name
	}
	return "none"
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func timedOut(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
