// Package discover finds same-site pages reachable from a start URL, for
// batch crawling.
package discover

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"webtext/internal/logger"

	"github.com/gocolly/colly/v2"
)

// Options bound a discovery run.
type Options struct {
	MaxDepth  int           `mapstructure:"depth"`
	MaxPages  int           `mapstructure:"max_pages"`
	Delay     time.Duration `mapstructure:"delay"`
	UserAgent string        `mapstructure:"-"`
}

var assetExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".svg": true, ".ico": true, ".webp": true, ".css": true, ".js": true,
	".zip": true, ".gz": true, ".tar": true, ".rar": true, ".mp3": true,
	".mp4": true, ".avi": true, ".mov": true, ".woff": true, ".woff2": true,
	".ttf": true, ".xml": true, ".json": true, ".exe": true, ".dmg": true,
}

// IsAsset reports whether u points at a file rather than a page.
func IsAsset(u *url.URL) bool {
	return assetExtensions[strings.ToLower(path.Ext(u.Path))]
}

// Discover walks links breadth-first from startURL, staying on its host,
// and returns page URLs in discovery order, startURL first. Pages up to
// MaxDepth links away are returned; at most MaxPages are returned.
func Discover(ctx context.Context, startURL string, opts Options, log logger.Interface) ([]string, error) {
	if log == nil {
		log = logger.NewNoOp()
	}
	start, err := url.Parse(startURL)
	if err != nil || start.Host == "" || (start.Scheme != "http" && start.Scheme != "https") {
		return nil, fmt.Errorf("invalid start URL: %s", startURL)
	}
	start.Fragment = ""
	if opts.MaxPages <= 0 {
		opts.MaxPages = 50
	}

	collectorOpts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.AllowedDomains(start.Hostname()),
	}
	if opts.UserAgent != "" {
		collectorOpts = append(collectorOpts, colly.UserAgent(opts.UserAgent))
	}
	c := colly.NewCollector(collectorOpts...)
	if opts.Delay > 0 {
		if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: opts.Delay, Parallelism: 1}); err != nil {
			return nil, fmt.Errorf("failed to set rate limit: %w", err)
		}
	}

	found := []string{start.String()}
	seen := map[string]bool{start.String(): true}
	var next []string

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if len(found) >= opts.MaxPages {
			return
		}
		link, ok := normalize(e.Request.AbsoluteURL(e.Attr("href")), start)
		if !ok || seen[link] {
			return
		}
		seen[link] = true
		found = append(found, link)
		next = append(next, link)
	})

	var startErr error
	c.OnError(func(r *colly.Response, err error) {
		if r.Request.URL.String() == start.String() {
			startErr = err
		}
		log.Warn("discovery request failed", "url", r.Request.URL.String(), "status", r.StatusCode, "error", err)
	})

	frontier := []string{start.String()}
	for depth := 0; depth < opts.MaxDepth && len(frontier) > 0 && len(found) < opts.MaxPages; depth++ {
		next = nil
		for _, u := range frontier {
			if err := ctx.Err(); err != nil {
				return found, err
			}
			if len(found) >= opts.MaxPages {
				break
			}
			if err := c.Visit(u); err != nil {
				var alreadyVisited *colly.AlreadyVisitedError
				if !errors.As(err, &alreadyVisited) {
					log.Debug("skipped page", "url", u, "error", err)
				}
			}
		}
		if depth == 0 && startErr != nil {
			return nil, fmt.Errorf("failed to fetch start page: %w", startErr)
		}
		log.Info("discovery level done", "depth", depth+1, "found", len(found))
		frontier = next
	}
	return found, nil
}

// normalize resolves a link and keeps it only when it is an http(s) page on
// the start host.
func normalize(raw string, start *url.URL) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if !strings.EqualFold(u.Host, start.Host) {
		return "", false
	}
	if IsAsset(u) {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}
