package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"webtext/internal/config"
	"webtext/internal/crawler"
	"webtext/internal/interaction"
	"webtext/internal/logger"
	"webtext/internal/output"
	"webtext/internal/runner"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configFile       string
	headers          []string
	visible          bool
	save             bool
	noInteraction    bool
	listInteractions bool
	customScript     string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "webtext [flags] URL...",
		Short:   "Extract text and markdown from dynamic web pages",
		Version: version,
		Long: `webtext renders web pages in a headless Chromium browser, reveals
collapsed or lazily loaded content by running an interaction strategy
(clicking expand buttons, scrolling, load more), then extracts the page
as markdown and plain text.`,
		Example: `  # Crawl a page and print a summary
  webtext https://example.com/article

  # Run the full expand / load more / expand sequence and save markdown
  webtext --interaction-type power --save https://example.com/forum/thread

  # Print only the main article content as markdown
  webtext --main-content -f markdown https://example.com/news/1

  # Use a custom page script with a visible browser
  webtext --custom scripts/open-faq.js --visible https://example.com/faq

  # List interaction strategies
  webtext --list-interactions

  # Discover same-site pages and crawl them all
  webtext discover https://example.com/docs --depth 2 --max-pages 20 --crawl`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !listInteractions {
				cmd.Help()
				os.Exit(0)
			}
			return nil
		},
		RunE:         run,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default ./webtext.yaml or $HOME/.config/webtext/webtext.yaml)")
	pf.String("engine", "rod", "Browser engine (rod, chromedp)")
	pf.Bool("headless", true, "Run the browser without a window")
	pf.BoolVar(&visible, "visible", false, "Show the browser window (same as --headless=false)")
	pf.String("browser-bin", "", "Path to a Chromium/Chrome binary")
	pf.Bool("no-sandbox", false, "Launch Chromium with --no-sandbox (containers)")
	pf.String("user-agent", "", "Override the browser user agent")
	pf.StringP("proxy", "p", "", "Proxy URL (e.g. http://127.0.0.1:7890)")
	pf.Bool("stealth", false, "Hide common headless fingerprints (rod engine)")
	pf.String("viewport", "1920x1080", "Viewport size WIDTHxHEIGHT")
	pf.StringSliceVarP(&headers, "header", "H", []string{}, "Extra HTTP header 'Key: Value' (can be used multiple times)")
	pf.Duration("page-timeout", crawler.DefaultTimeouts.PageTimeout, "Navigation timeout")
	pf.Duration("wait-for-timeout", crawler.DefaultTimeouts.WaitForTimeout, "Timeout for the wait strategy")
	pf.Duration("delay-before-return", crawler.DefaultTimeouts.DelayBeforeReturn, "Pause before reading the page HTML")
	pf.StringP("wait-for", "w", "load", "Wait strategy (load, networkidle, element, time)")
	pf.StringP("wait-target", "T", "", "Wait target (selector for 'element' strategy, milliseconds for 'time' strategy)")
	pf.DurationP("timeout", "t", 5*time.Minute, "Overall run timeout")
	pf.Bool("main-content", false, "Keep only the main article content")
	pf.StringP("selector", "s", "", "Extract only elements matching this CSS selector")
	pf.String("output-dir", ".", "Directory for saved files")
	pf.String("catalog", "", "YAML file with extra interaction strategies")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "console", "Log format (console, json)")

	f := rootCmd.Flags()
	f.BoolVar(&save, "save", false, "Save markdown to crawled_<slug>.md in --output-dir")
	f.StringP("interaction-type", "i", "expand_buttons", "Interaction strategy name, or 'power'")
	f.BoolVar(&noInteraction, "no-interaction", false, "Do not run any interaction")
	f.BoolVar(&listInteractions, "list-interactions", false, "List interaction strategies and exit")
	f.StringVar(&customScript, "custom", "", "Run the page script in this file instead of a named strategy")
	f.Int("max-rounds", 0, "Maximum interaction rounds (0 uses the strategy's own limit)")
	f.StringP("format", "f", "summary", "Output format (summary, markdown, text, json)")

	rootCmd.AddCommand(newDiscoverCmd())
	return rootCmd
}

// setup loads configuration and builds the logger and catalog shared by
// every command.
func setup(cmd *cobra.Command) (*config.Config, *logger.Logger, *interaction.Catalog, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, nil, err
	}
	if visible {
		cfg.Browser.Headless = false
	}
	if len(headers) > 0 {
		cfg.Browser.Headers = parseHeaders(headers)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}

	catalog := interaction.Default()
	if cfg.Interaction.Catalog != "" {
		n, err := catalog.LoadFile(cfg.Interaction.Catalog)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		log.Debug("catalog loaded", "file", cfg.Interaction.Catalog, "interactions", n)
	}
	return cfg, log, catalog, nil
}

func newCrawler(cfg *config.Config, log logger.Interface, catalog *interaction.Catalog) *crawler.Crawler {
	r := runner.New(
		runner.WithSettle(cfg.Interaction.Settle),
		runner.WithPassiveWait(cfg.Interaction.PassiveWait),
		runner.WithLogger(log),
	)
	return crawler.New(cfg.CrawlerConfig(), catalog, crawler.WithRunner(r), crawler.WithLogger(log))
}

func runContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() { cancel(); stop() }
}

func run(cmd *cobra.Command, args []string) error {
	cfg, log, catalog, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	if listInteractions {
		output.ListInteractions(cmd.OutOrStdout(), catalog)
		return nil
	}

	strategy, power, err := resolveStrategy(catalog, cfg.Interaction.Type, noInteraction, customScript)
	if err != nil {
		return err
	}

	ctx, cancel := runContext(cfg.Timeout)
	defer cancel()

	c := newCrawler(cfg, log, catalog)
	reqs := make([]crawler.Request, 0, len(args))
	for _, arg := range args {
		req := c.NewRequest(normalizeURL(arg))
		req.Interaction = strategy
		req.Power = power
		req.MaxRounds = cfg.Interaction.MaxRounds
		reqs = append(reqs, req)
	}

	failed := 0
	_, err = c.CrawlAll(ctx, reqs, 0, func(_ int, res *crawler.Result) {
		if !res.Success() {
			failed++
		}
		content, err := output.Format(res, cfg.Format)
		if err != nil {
			log.Error("failed to format output", "url", res.URL, "error", err)
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), content)

		if save && res.Success() {
			path, err := output.Save(cfg.OutputDir, res)
			if err != nil {
				log.Error("failed to save result", "url", res.URL, "error", err)
				failed++
				return
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Output written to: %s\n", path)
		}
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pages failed", failed, len(reqs))
	}
	return nil
}

// resolveStrategy picks the interaction for a crawl: none, a custom script,
// the power sequence, or a catalog entry.
func resolveStrategy(catalog *interaction.Catalog, name string, none bool, customPath string) (*interaction.Config, bool, error) {
	switch {
	case none:
		return nil, false, nil
	case customPath != "":
		cfg, err := interaction.FromScriptFile("custom", customPath)
		if err != nil {
			return nil, false, err
		}
		return &cfg, false, nil
	case name == interaction.PowerName:
		return nil, true, nil
	}
	cfg, err := catalog.Get(name)
	if err != nil {
		var nf *interaction.NotFoundError
		if errors.As(err, &nf) {
			return nil, false, fmt.Errorf("unknown interaction type %q (available: %s, %s)", name, strings.Join(catalog.Names(), ", "), interaction.PowerName)
		}
		return nil, false, err
	}
	return &cfg, false, nil
}

// parseHeaders parses request header parameters
func parseHeaders(headerSlice []string) map[string]string {
	headersMap := make(map[string]string)
	for _, h := range headerSlice {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			if key != "" {
				headersMap[key] = value
			}
		}
	}
	return headersMap
}

// normalizeURL normalizes URL, adds http:// if no protocol prefix
func normalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return rawURL
	}
	if !strings.HasPrefix(strings.ToLower(rawURL), "http://") && !strings.HasPrefix(strings.ToLower(rawURL), "https://") {
		return "http://" + rawURL
	}
	return rawURL
}
