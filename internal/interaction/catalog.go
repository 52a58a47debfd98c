// Package interaction holds the catalog of named interaction strategies:
// element selectors plus a page-side script used to reveal hidden content
// before extraction.
package interaction

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// PowerName is the reserved name of the composite
// expand -> load more -> wait -> expand sequence.
const PowerName = "power"

// DefaultMaxRounds bounds an interaction that does not set its own limit.
const DefaultMaxRounds = 3

// ErrNotFound is matched by every *NotFoundError.
var ErrNotFound = errors.New("interaction not found")

// NotFoundError is returned by Get for an unknown name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("interaction not found: %s", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Config describes one interaction strategy.
type Config struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Selectors   []string `yaml:"selectors,omitempty"` // first match tried first
	Script      string   `yaml:"script,omitempty"`    // function body run in the page
	MaxRounds   int      `yaml:"max_rounds,omitempty"`
}

// Rounds returns the configured bound, or DefaultMaxRounds.
func (c Config) Rounds() int {
	if c.MaxRounds > 0 {
		return c.MaxRounds
	}
	return DefaultMaxRounds
}

func (c Config) clone() Config {
	c.Selectors = slices.Clone(c.Selectors)
	return c
}

// Catalog maps interaction names to their configs. Entries are copied on
// the way in and out so a registered config never changes underneath a
// caller.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Config
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: map[string]Config{}}
}

// Default returns a catalog holding the built-in interactions.
func Default() *Catalog {
	c := NewCatalog()
	for _, cfg := range builtins() {
		if err := c.Register(cfg); err != nil {
			panic(err)
		}
	}
	return c
}

// Register inserts cfg, replacing any entry with the same name.
func (c *Catalog) Register(cfg Config) error {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return errors.New("interaction name is required")
	}
	if name == PowerName {
		return fmt.Errorf("interaction name %q is reserved", PowerName)
	}
	if len(cfg.Selectors) == 0 && strings.TrimSpace(cfg.Script) == "" {
		return fmt.Errorf("interaction %s: selectors or script required", name)
	}
	if cfg.MaxRounds < 0 {
		return fmt.Errorf("interaction %s: max_rounds must not be negative", name)
	}
	cfg.Name = name

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = cfg.clone()
	return nil
}

// Get looks up an interaction by exact name.
func (c *Catalog) Get(name string) (Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.entries[name]
	if !ok {
		return Config{}, &NotFoundError{Name: name}
	}
	return cfg.clone(), nil
}

// Has reports whether name is registered or is the power sequence.
func (c *Catalog) Has(name string) bool {
	if name == PowerName {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[name]
	return ok
}

// Names returns registered names in lexical order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// List returns copies of all entries ordered by name.
func (c *Catalog) List() []Config {
	names := c.Names()
	out := make([]Config, 0, len(names))
	for _, name := range names {
		if cfg, err := c.Get(name); err == nil {
			out = append(out, cfg)
		}
	}
	return out
}
