// Package config loads settings from defaults, an optional YAML file,
// WEBTEXT_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"webtext/internal/browser"
	"webtext/internal/crawler"
	"webtext/internal/discover"
	"webtext/internal/logger"
	"webtext/internal/output"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. WEBTEXT_BROWSER_ENGINE.
const EnvPrefix = "WEBTEXT"

// Config holds all application configuration.
type Config struct {
	Browser     browser.Config    `mapstructure:"browser"`
	Timeouts    crawler.Timeouts  `mapstructure:"timeouts"`
	Interaction InteractionConfig `mapstructure:"interaction"`
	WaitFor     string            `mapstructure:"wait_for"`
	WaitTarget  string            `mapstructure:"wait_target"`
	Selector    string            `mapstructure:"selector"`
	OutputDir   string            `mapstructure:"output_dir"`
	Format      string            `mapstructure:"format"`
	MainContent bool              `mapstructure:"main_content"`
	Timeout     time.Duration     `mapstructure:"timeout"` // whole run
	Log         logger.Config     `mapstructure:"log"`
	Discover    discover.Options  `mapstructure:"discover"`
}

// InteractionConfig selects the strategy and tunes the runner.
type InteractionConfig struct {
	Type        string        `mapstructure:"type"`
	MaxRounds   int           `mapstructure:"max_rounds"`
	Settle      time.Duration `mapstructure:"settle"`
	PassiveWait time.Duration `mapstructure:"passive_wait"`
	Catalog     string        `mapstructure:"catalog"` // extra YAML catalog
}

var defaults = map[string]any{
	"browser.engine":                    browser.EngineRod,
	"browser.headless":                  true,
	"browser.bin":                       "",
	"browser.no_sandbox":                false,
	"browser.user_agent":                "",
	"browser.proxy":                     "",
	"browser.stealth":                   false,
	"browser.viewport":                  "1920x1080",
	"timeouts.page_timeout":             crawler.DefaultTimeouts.PageTimeout,
	"timeouts.wait_for_timeout":         crawler.DefaultTimeouts.WaitForTimeout,
	"timeouts.delay_before_return_html": crawler.DefaultTimeouts.DelayBeforeReturn,
	"interaction.type":                  "expand_buttons",
	"interaction.max_rounds":            0,
	"interaction.settle":                time.Second,
	"interaction.passive_wait":          3 * time.Second,
	"interaction.catalog":               "",
	"wait_for":                          string(browser.WaitStrategyLoad),
	"wait_target":                       "",
	"selector":                          "",
	"output_dir":                        ".",
	"format":                            "summary",
	"main_content":                      false,
	"timeout":                           5 * time.Minute,
	"log.level":                         "info",
	"log.encoding":                      "console",
	"discover.depth":                    2,
	"discover.max_pages":                50,
	"discover.delay":                    time.Second,
}

// FlagKeys maps configuration keys to the command-line flags that override
// them.
var FlagKeys = map[string]string{
	"browser.engine":                    "engine",
	"browser.headless":                  "headless",
	"browser.bin":                       "browser-bin",
	"browser.no_sandbox":                "no-sandbox",
	"browser.user_agent":                "user-agent",
	"browser.proxy":                     "proxy",
	"browser.stealth":                   "stealth",
	"browser.viewport":                  "viewport",
	"timeouts.page_timeout":             "page-timeout",
	"timeouts.wait_for_timeout":         "wait-for-timeout",
	"timeouts.delay_before_return_html": "delay-before-return",
	"interaction.type":                  "interaction-type",
	"interaction.max_rounds":            "max-rounds",
	"interaction.catalog":               "catalog",
	"wait_for":                          "wait-for",
	"wait_target":                       "wait-target",
	"selector":                          "selector",
	"output_dir":                        "output-dir",
	"format":                            "format",
	"main_content":                      "main-content",
	"timeout":                           "timeout",
	"log.level":                         "log-level",
	"log.encoding":                      "log-format",
	"discover.depth":                    "depth",
	"discover.max_pages":                "max-pages",
	"discover.delay":                    "delay",
}

// Load reads configuration. path may be empty, in which case webtext.yaml
// is looked up in the working directory and $HOME/.config/webtext; a
// missing file is not an error. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("webtext")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/webtext")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		viewportHook,
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be checked by type alone.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Browser.Engine) {
	case browser.EngineRod, browser.EngineChromedp:
	default:
		return fmt.Errorf("invalid browser engine: %s", c.Browser.Engine)
	}
	if !browser.ValidWaitStrategy(c.WaitFor) {
		return fmt.Errorf("invalid wait strategy: %s", c.WaitFor)
	}
	if (c.WaitFor == string(browser.WaitStrategyElement) || c.WaitFor == string(browser.WaitStrategyTime)) && c.WaitTarget == "" {
		return fmt.Errorf("--wait-target is required when using '%s' wait strategy", c.WaitFor)
	}
	if !output.ValidFormat(c.Format) {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.Interaction.MaxRounds < 0 {
		return fmt.Errorf("max rounds must not be negative: %d", c.Interaction.MaxRounds)
	}
	for name, d := range map[string]time.Duration{
		"page_timeout":             c.Timeouts.PageTimeout,
		"wait_for_timeout":         c.Timeouts.WaitForTimeout,
		"delay_before_return_html": c.Timeouts.DelayBeforeReturn,
		"timeout":                  c.Timeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// CrawlerConfig derives the crawler settings.
func (c *Config) CrawlerConfig() crawler.Config {
	return crawler.Config{
		Browser:     c.Browser,
		Timeouts:    c.Timeouts,
		WaitFor:     browser.WaitStrategy(c.WaitFor),
		WaitTarget:  c.WaitTarget,
		Selector:    c.Selector,
		MainContent: c.MainContent,
	}
}

var viewportType = reflect.TypeOf(browser.Viewport{})

func viewportHook(from, to reflect.Type, data any) (any, error) {
	if to != viewportType || from.Kind() != reflect.String {
		return data, nil
	}
	return browser.ParseViewport(data.(string))
}
