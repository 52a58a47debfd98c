package crawler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"webtext/internal/browser"
	"webtext/internal/interaction"
	"webtext/internal/logger"
	"webtext/internal/runner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct {
	html        string
	text        string
	title       string
	navErr      error
	blockNav    bool
	waitErr     error
	htmlErr     error
	navigated   []string
	evaluations int
	closed      bool
	closeErr    error
	navDelay    time.Duration
	navStart    time.Time
	navEnd      time.Time
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.navStart = time.Now()
	defer func() { p.navEnd = time.Now() }()
	p.navigated = append(p.navigated, url)
	if p.blockNav {
		<-ctx.Done()
		return ctx.Err()
	}
	if p.navDelay > 0 {
		time.Sleep(p.navDelay)
	}
	return p.navErr
}

func (p *fakePage) Wait(ctx context.Context, strategy browser.WaitStrategy, target string) error {
	return p.waitErr
}

func (p *fakePage) Evaluate(ctx context.Context, script string, out any) error {
	p.evaluations++
	return nil
}

func (p *fakePage) ClickVisible(ctx context.Context, selectors []string) (int, error) {
	return 0, nil
}

func (p *fakePage) ContentLength(ctx context.Context) (int, error) { return len(p.html), nil }
func (p *fakePage) HTML(ctx context.Context) (string, error)      { return p.html, p.htmlErr }
func (p *fakePage) Text(ctx context.Context) (string, error)      { return p.text, nil }
func (p *fakePage) Title(ctx context.Context) (string, error)     { return p.title, nil }
func (p *fakePage) URL(ctx context.Context) (string, error)       { return "https://example.com/final", nil }
func (p *fakePage) Close() error                                  { p.closed = true; return p.closeErr }

type fakeBrowser struct {
	page    *fakePage
	pageErr error
	closed  bool
}

func (b *fakeBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	return b.page, nil
}
func (b *fakeBrowser) Close() error                                     { b.closed = true; return nil }

type openerSpy struct {
	browsers []*fakeBrowser
	configs  []browser.Config
	pages    func() *fakePage
	err      error
	pageErr  error
}

func (o *openerSpy) open(ctx context.Context, cfg browser.Config, log logger.Interface) (browser.Browser, error) {
	o.configs = append(o.configs, cfg)
	if o.err != nil {
		return nil, o.err
	}
	b := &fakeBrowser{pageErr: o.pageErr}
	if o.pages != nil {
		b.page = o.pages()
	}
	o.browsers = append(o.browsers, b)
	return b, nil
}

const docHTML = `<html lang="en"><head><title>Doc</title><meta name="description" content="d"></head>
<body><h1>Doc</h1><p>Hello world</p></body></html>`

func newTestCrawler(spy *openerSpy, cfg Config) *Crawler {
	r := runner.New(runner.WithSettle(0), runner.WithPassiveWait(0))
	return New(cfg, interaction.Default(), WithOpener(spy.open), WithRunner(r))
}

func TestCrawlSuccess(t *testing.T) {
	spy := &openerSpy{pages: func() *fakePage { return &fakePage{html: docHTML, text: "Doc\n\nHello world", title: "Doc"} }}
	c := newTestCrawler(spy, Config{Browser: browser.Config{Engine: "rod"}})

	cfg, err := interaction.Default().Get("expand_buttons")
	require.NoError(t, err)
	req := c.NewRequest("https://example.com")
	req.Interaction = &cfg
	req.Headless = true

	res, err := c.Crawl(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.Success())
	assert.Equal(t, "Doc", res.Title)
	assert.Equal(t, "https://example.com/final", res.FinalURL)
	assert.Contains(t, res.Markdown, "# Doc")
	assert.Contains(t, res.Markdown, "Hello world")
	assert.Equal(t, "Doc\nHello world", res.Text)
	assert.Equal(t, "d", res.Metadata["description"])
	require.NotNil(t, res.Interaction)
	assert.Equal(t, "expand_buttons", res.Interaction.Strategy)
	assert.Empty(t, res.Error)

	require.Len(t, spy.browsers, 1)
	assert.True(t, spy.browsers[0].closed)
	assert.True(t, spy.browsers[0].page.closed)
	assert.True(t, spy.configs[0].Headless)
}

func TestCrawlPower(t *testing.T) {
	spy := &openerSpy{pages: func() *fakePage { return &fakePage{html: docHTML} }}
	c := newTestCrawler(spy, Config{})

	req := c.NewRequest("https://example.com")
	req.Power = true
	res, err := c.Crawl(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, res.Interaction)
	assert.Equal(t, interaction.PowerName, res.Interaction.Strategy)
	assert.Len(t, res.Interaction.Phases, 4)
	assert.Equal(t, "Doc", res.Title, "title falls back to metadata")
	assert.Contains(t, res.Text, "Hello world", "text falls back to HTML")
}

func TestCrawlNoInteraction(t *testing.T) {
	fp := &fakePage{html: docHTML}
	spy := &openerSpy{pages: func() *fakePage { return fp }}
	res, err := newTestCrawler(spy, Config{}).Crawl(context.Background(), Request{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Nil(t, res.Interaction)
	assert.Zero(t, fp.evaluations)
}

func TestCrawlFailures(t *testing.T) {
	tests := []struct {
		name string
		page *fakePage
		kind string
		err  error
	}{
		{"load timeout", &fakePage{blockNav: true}, KindLoadTimeout, ErrLoadTimeout},
		{"navigation", &fakePage{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}, KindNavigation, ErrNavigation},
		{"wait", &fakePage{waitErr: errors.New("bad selector")}, KindNavigation, ErrNavigation},
		{"extraction", &fakePage{htmlErr: errors.New("target closed")}, KindExtraction, ErrExtraction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &openerSpy{pages: func() *fakePage { return tt.page }}
			c := newTestCrawler(spy, Config{})
			req := Request{URL: "https://unreachable.test", Timeouts: Timeouts{PageTimeout: 20 * time.Millisecond}}

			res, err := c.Crawl(context.Background(), req)
			require.NoError(t, err)
			assert.False(t, res.Success())
			assert.Equal(t, StatusFailure, res.Status)
			assert.Equal(t, tt.kind, res.ErrorKind)
			assert.Contains(t, res.Error, tt.err.Error())
			assert.Empty(t, res.Markdown)
		})
	}
}

func TestCrawlLaunchFailure(t *testing.T) {
	spy := &openerSpy{err: errors.New("chromium not found")}
	res, err := newTestCrawler(spy, Config{}).Crawl(context.Background(), Request{URL: "https://example.com"})
	assert.Nil(t, res)
	assert.ErrorContains(t, err, "chromium not found")
}

func TestCrawlAllKeepsOrder(t *testing.T) {
	spy := &openerSpy{pages: func() *fakePage { return &fakePage{html: docHTML} }}
	c := newTestCrawler(spy, Config{})

	urls := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}
	reqs := make([]Request, 0, len(urls))
	for _, u := range urls {
		reqs = append(reqs, c.NewRequest(u))
	}

	var seen []int
	start := time.Now()
	results, err := c.CrawlAll(context.Background(), reqs, 10*time.Millisecond, func(i int, _ *Result) {
		seen = append(seen, i)
	})
	require.NoError(t, err)

	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, urls[i], res.URL)
		assert.True(t, res.Success())
	}
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	assert.Len(t, spy.browsers, 3)
}

func TestCrawlAllPausesBetweenPages(t *testing.T) {
	spy := &openerSpy{pages: func() *fakePage { return &fakePage{html: docHTML, navDelay: 150 * time.Millisecond} }}
	c := newTestCrawler(spy, Config{})

	delay := 100 * time.Millisecond
	reqs := []Request{c.NewRequest("https://example.com/a"), c.NewRequest("https://example.com/b")}
	start := time.Now()
	results, err := c.CrawlAll(context.Background(), reqs, delay, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, spy.browsers, 2)

	first, second := spy.browsers[0].page, spy.browsers[1].page
	assert.GreaterOrEqual(t, second.navStart.Sub(first.navEnd), delay, "gap between the end of one page and the start of the next")
	assert.Less(t, time.Since(start), 2*150*time.Millisecond+2*delay, "no pause after the last page")
}

func TestCrawlAllDelayInterruptedByContext(t *testing.T) {
	spy := &openerSpy{pages: func() *fakePage { return &fakePage{html: docHTML} }}
	c := newTestCrawler(spy, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	reqs := []Request{c.NewRequest("https://example.com/a"), c.NewRequest("https://example.com/b")}
	results, err := c.CrawlAll(ctx, reqs, time.Minute, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, results, 1)
	assert.Len(t, spy.browsers, 1)
}

func TestCrawlPageFailure(t *testing.T) {
	spy := &openerSpy{pageErr: errors.New("target crashed")}
	res, err := newTestCrawler(spy, Config{}).Crawl(context.Background(), Request{URL: "https://example.com"})
	assert.Nil(t, res)
	assert.ErrorContains(t, err, "failed to create page")
	assert.ErrorContains(t, err, "target crashed")
	require.Len(t, spy.browsers, 1)
	assert.True(t, spy.browsers[0].closed)
}

func TestCrawlLogsPageCloseError(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.NewWithWriter(logger.Config{Level: "warn", Encoding: "json"}, &buf)
	require.NoError(t, err)

	spy := &openerSpy{pages: func() *fakePage { return &fakePage{html: docHTML, closeErr: errors.New("already closed")} }}
	r := runner.New(runner.WithSettle(0), runner.WithPassiveWait(0))
	c := New(Config{}, interaction.Default(), WithOpener(spy.open), WithRunner(r), WithLogger(log))

	res, err := c.Crawl(context.Background(), Request{URL: "https://example.com"})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Contains(t, buf.String(), "failed to close page")
	assert.Contains(t, buf.String(), "already closed")
}

func TestCrawlAllStopsOnLaunchFailure(t *testing.T) {
	spy := &openerSpy{err: errors.New("no browser")}
	results, err := newTestCrawler(spy, Config{}).CrawlAll(context.Background(), []Request{{URL: "a"}, {URL: "b"}}, 0, nil)
	assert.Error(t, err)
	assert.Empty(t, results)
	assert.Len(t, spy.configs, 1)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "", Kind(errors.New("other")))
	assert.Equal(t, KindExtraction, Kind(errors.Join(errors.New("x"), ErrExtraction)))
}

func TestCrawlSelector(t *testing.T) {
	spy := &openerSpy{pages: func() *fakePage { return &fakePage{html: docHTML, title: "Doc"} }}

	res, err := newTestCrawler(spy, Config{Selector: "p"}).Crawl(context.Background(), Request{URL: "https://example.com"})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "Hello world", res.Markdown)
	assert.Equal(t, "Hello world", res.Text)

	res, err = newTestCrawler(spy, Config{Selector: ".missing"}).Crawl(context.Background(), Request{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, KindExtraction, res.ErrorKind)
}
