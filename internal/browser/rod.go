package browser

import (
	"context"
	"fmt"
	"time"

	"webtext/internal/interaction"
	"webtext/internal/logger"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

type rodBrowser struct {
	cfg      Config
	browser  *rod.Browser
	launcher *launcher.Launcher
	log      logger.Interface
}

func newRod(cfg Config, log logger.Interface) (*rodBrowser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		Leakless(true)

	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	log.Debug("browser launched", "engine", EngineRod, "headless", cfg.Headless, "stealth", cfg.Stealth)
	return &rodBrowser{cfg: cfg, browser: browser, launcher: l, log: log}, nil
}

func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if b.cfg.Stealth {
		page, err = stealth.Page(b.browser)
	} else {
		page, err = b.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	p := &rodPage{page: page, log: b.log}
	if err := p.configure(b.cfg); err != nil {
		_ = page.Close()
		return nil, err
	}
	return p, nil
}

func (b *rodBrowser) Close() error {
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			b.launcher.Kill()
			return err
		}
	}
	if b.launcher != nil {
		b.launcher.Kill()
	}
	return nil
}

type rodPage struct {
	page *rod.Page
	log  logger.Interface
}

func (p *rodPage) configure(cfg Config) error {
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		err := p.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.Viewport.Width,
			Height:            cfg.Viewport.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return fmt.Errorf("failed to set viewport: %w", err)
		}
	}
	if cfg.UserAgent != "" {
		if err := p.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			return fmt.Errorf("failed to set user agent: %w", err)
		}
	}
	if len(cfg.Headers) > 0 {
		headerList := make([]string, 0, len(cfg.Headers)*2)
		for k, v := range cfg.Headers {
			headerList = append(headerList, k, v)
		}
		// The cleanup only matters for long-lived pages; ours close after one crawl.
		if _, err := p.page.SetExtraHeaders(headerList); err != nil {
			return fmt.Errorf("failed to set headers: %w", err)
		}
	}
	return nil
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	if err := p.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	return nil
}

func (p *rodPage) Wait(ctx context.Context, strategy WaitStrategy, target string) error {
	page := p.page.Context(ctx)
	switch strategy {
	case WaitStrategyElement:
		if target == "" {
			return fmt.Errorf("wait target is required for element strategy")
		}
		if _, err := page.Element(target); err != nil {
			return fmt.Errorf("failed to wait for element '%s': %w", target, err)
		}
	case WaitStrategyTime:
		d, err := waitDuration(target)
		if err != nil {
			return err
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	case WaitStrategyNetworkIdle:
		if err := page.WaitLoad(); err != nil {
			return fmt.Errorf("failed to wait for page load: %w", err)
		}
		// Images and media never settle on some pages; ignore them.
		wait := page.WaitRequestIdle(500*time.Millisecond, nil, nil,
			[]proto.NetworkResourceType{proto.NetworkResourceTypeImage, proto.NetworkResourceTypeMedia},
		)
		wait()
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("failed to wait for network idle: %w", err)
		}
	default:
		if err := page.WaitLoad(); err != nil {
			return fmt.Errorf("failed to wait for page load: %w", err)
		}
	}
	return nil
}

func (p *rodPage) eval(ctx context.Context, script string) ([]byte, error) {
	res, err := p.page.Context(ctx).Eval(wrapScript(script))
	if err != nil {
		return nil, err
	}
	return res.Value.MarshalJSON()
}

func (p *rodPage) Evaluate(ctx context.Context, script string, out any) error {
	raw, err := p.eval(ctx, script)
	if err != nil {
		return err
	}
	return decodeResult(raw, out)
}

func (p *rodPage) ClickVisible(ctx context.Context, selectors []string) (int, error) {
	var n float64
	if err := p.Evaluate(ctx, clickScript(selectors), &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (p *rodPage) ContentLength(ctx context.Context) (int, error) {
	var n float64
	if err := p.Evaluate(ctx, interaction.ContentLengthScript, &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (p *rodPage) str(ctx context.Context, script string) (string, error) {
	var s string
	if err := p.Evaluate(ctx, script, &s); err != nil {
		return "", err
	}
	return s, nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error)  { return p.str(ctx, htmlScript) }
func (p *rodPage) Text(ctx context.Context) (string, error)  { return p.str(ctx, textScript) }
func (p *rodPage) Title(ctx context.Context) (string, error) { return p.str(ctx, titleScript) }

func (p *rodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return p.str(ctx, urlScript)
	}
	return info.URL, nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
