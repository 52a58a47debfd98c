package browser

import (
	"context"
	"fmt"
	"time"

	"webtext/internal/interaction"
	"webtext/internal/logger"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// networkIdleQuiet approximates network idle for chromedp, which has no
// request-idle helper.
const networkIdleQuiet = 2 * time.Second

type chromedpBrowser struct {
	cfg         Config
	allocCtx    context.Context
	allocCancel context.CancelFunc
	log         logger.Interface
}

func newChromedp(ctx context.Context, cfg Config, log logger.Interface) (*chromedpBrowser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", cfg.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.Bin != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Bin))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}

	// The allocator outlives any single request deadline; pages carry their own.
	allocCtx, cancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)

	// Start the process now so launch failures surface here, like rod.
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		cancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	log.Debug("browser launched", "engine", EngineChromedp, "headless", cfg.Headless)
	return &chromedpBrowser{cfg: cfg, allocCtx: browserCtx, allocCancel: func() { browserCancel(); cancel() }, log: log}, nil
}

func (b *chromedpBrowser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.allocCtx)

	actions := []chromedp.Action{network.Enable()}
	if len(b.cfg.Headers) > 0 {
		headers := network.Headers{}
		for k, v := range b.cfg.Headers {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &chromedpPage{ctx: tabCtx, cancel: cancel, log: b.log}, nil
}

func (b *chromedpBrowser) Close() error {
	b.allocCancel()
	return nil
}

type chromedpPage struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logger.Interface
}

// run executes actions on the tab, bounded by the caller's ctx.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		tabCtx, dcancel = context.WithDeadline(tabCtx, deadline)
		defer dcancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tabCtx, actions...)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	return nil
}

func (p *chromedpPage) Wait(ctx context.Context, strategy WaitStrategy, target string) error {
	switch strategy {
	case WaitStrategyElement:
		if target == "" {
			return fmt.Errorf("wait target is required for element strategy")
		}
		if err := p.run(ctx, chromedp.WaitVisible(target, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("failed to wait for element '%s': %w", target, err)
		}
	case WaitStrategyTime:
		d, err := waitDuration(target)
		if err != nil {
			return err
		}
		return p.run(ctx, chromedp.Sleep(d))
	case WaitStrategyNetworkIdle:
		if err := p.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery), chromedp.Sleep(networkIdleQuiet)); err != nil {
			return fmt.Errorf("failed to wait for network idle: %w", err)
		}
	default:
		if err := p.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
			return fmt.Errorf("failed to wait for page load: %w", err)
		}
	}
	return nil
}

func (p *chromedpPage) Evaluate(ctx context.Context, script string, out any) error {
	var raw []byte
	err := p.run(ctx, chromedp.Evaluate("("+wrapScript(script)+")()", &raw, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}))
	if err != nil {
		return err
	}
	return decodeResult(raw, out)
}

func (p *chromedpPage) ClickVisible(ctx context.Context, selectors []string) (int, error) {
	var n float64
	if err := p.Evaluate(ctx, clickScript(selectors), &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (p *chromedpPage) ContentLength(ctx context.Context) (int, error) {
	var n float64
	if err := p.Evaluate(ctx, interaction.ContentLengthScript, &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (p *chromedpPage) str(ctx context.Context, script string) (string, error) {
	var s string
	if err := p.Evaluate(ctx, script, &s); err != nil {
		return "", err
	}
	return s, nil
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error)  { return p.str(ctx, htmlScript) }
func (p *chromedpPage) Text(ctx context.Context) (string, error)  { return p.str(ctx, textScript) }
func (p *chromedpPage) Title(ctx context.Context) (string, error) { return p.str(ctx, titleScript) }

func (p *chromedpPage) URL(ctx context.Context) (string, error) {
	var u string
	if err := p.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}
