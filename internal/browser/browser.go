// Package browser hides the browser automation library behind a small Page
// interface. Two engines are available: go-rod (default) and chromedp.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"webtext/internal/interaction"
	"webtext/internal/logger"
)

// Engine names.
const (
	EngineRod      = "rod"
	EngineChromedp = "chromedp"
)

// WaitStrategy decides when a navigated page is ready for interaction.
type WaitStrategy string

const (
	WaitStrategyLoad        WaitStrategy = "load"        // Wait for the load event
	WaitStrategyNetworkIdle WaitStrategy = "networkidle" // Wait until requests go quiet
	WaitStrategyElement     WaitStrategy = "element"     // Wait for a selector to appear
	WaitStrategyTime        WaitStrategy = "time"        // Wait a fixed number of milliseconds
)

// ValidWaitStrategy reports whether s is a known strategy.
func ValidWaitStrategy(s string) bool {
	switch WaitStrategy(s) {
	case WaitStrategyLoad, WaitStrategyNetworkIdle, WaitStrategyElement, WaitStrategyTime:
		return true
	}
	return false
}

// Viewport is the emulated window size.
type Viewport struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// ParseViewport parses "WIDTHxHEIGHT".
func ParseViewport(s string) (Viewport, error) {
	var v Viewport
	if _, err := fmt.Sscanf(strings.ToLower(strings.TrimSpace(s)), "%dx%d", &v.Width, &v.Height); err != nil {
		return Viewport{}, fmt.Errorf("invalid viewport %q, want WIDTHxHEIGHT: %w", s, err)
	}
	if v.Width <= 0 || v.Height <= 0 {
		return Viewport{}, fmt.Errorf("invalid viewport %q: dimensions must be positive", s)
	}
	return v, nil
}

// Config selects and configures an engine.
type Config struct {
	Engine    string            `mapstructure:"engine"`
	Headless  bool              `mapstructure:"headless"`
	Bin       string            `mapstructure:"bin"`
	NoSandbox bool              `mapstructure:"no_sandbox"`
	UserAgent string            `mapstructure:"user_agent"`
	Proxy     string            `mapstructure:"proxy"`
	Stealth   bool              `mapstructure:"stealth"`
	Viewport  Viewport          `mapstructure:"viewport"`
	Headers   map[string]string `mapstructure:"headers"`
}

// Browser is a running browser process.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Wait(ctx context.Context, strategy WaitStrategy, target string) error
	// Evaluate runs a function body in the page. The body may await and may
	// return a JSON-serialisable value, decoded into out when out is non-nil.
	Evaluate(ctx context.Context, script string, out any) error
	ClickVisible(ctx context.Context, selectors []string) (int, error)
	ContentLength(ctx context.Context) (int, error)
	HTML(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Close() error
}

// New launches the engine named in cfg.Engine.
func New(ctx context.Context, cfg Config, log logger.Interface) (Browser, error) {
	if log == nil {
		log = logger.NewNoOp()
	}
	switch strings.ToLower(cfg.Engine) {
	case "", EngineRod:
		return newRod(cfg, log)
	case EngineChromedp:
		return newChromedp(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown browser engine: %s", cfg.Engine)
	}
}

// wrapScript turns a function body into an async arrow function whose
// result is boxed in {value: ...}, so undefined and null both serialise.
func wrapScript(body string) string {
	return "async () => { const __r = await (async () => {" + body + "\n})(); return { value: __r === undefined ? null : __r }; }"
}

type evalResult struct {
	Value json.RawMessage `json:"value"`
}

// decodeResult unboxes a wrapScript result into out.
func decodeResult(raw []byte, out any) error {
	var res evalResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	if out == nil || len(res.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	return nil
}

// waitDuration parses the time strategy target, in milliseconds.
func waitDuration(target string) (time.Duration, error) {
	if target == "" {
		return 0, fmt.Errorf("wait target is required for time strategy")
	}
	d, err := time.ParseDuration(target + "ms")
	if err != nil {
		return 0, fmt.Errorf("invalid wait time '%s': %w", target, err)
	}
	return d, nil
}

const (
	htmlScript  = `return document.documentElement ? document.documentElement.outerHTML : '';`
	textScript  = `return document.body ? document.body.innerText : '';`
	titleScript = `return document.title;`
	urlScript   = `return window.location.href;`
)

var clickScript = interaction.ClickVisibleScript
