package interaction

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileEntry struct {
	Config     `yaml:",inline"`
	ScriptFile string `yaml:"script_file,omitempty"`
}

type catalogFile struct {
	Interactions []fileEntry `yaml:"interactions"`
}

// LoadFile registers every interaction listed in a YAML catalog file.
// A script_file path is resolved relative to the catalog file.
func (c *Catalog) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i, entry := range file.Interactions {
		cfg := entry.Config
		if entry.ScriptFile != "" {
			scriptPath := entry.ScriptFile
			if !filepath.IsAbs(scriptPath) {
				scriptPath = filepath.Join(dir, scriptPath)
			}
			script, err := os.ReadFile(scriptPath)
			if err != nil {
				return i, fmt.Errorf("interaction %s: read script: %w", cfg.Name, err)
			}
			cfg.Script = string(script)
		}
		if err := c.Register(cfg); err != nil {
			return i, err
		}
	}
	return len(file.Interactions), nil
}

// FromScriptFile builds an interaction that runs the script in path.
// An empty name falls back to "custom".
func FromScriptFile(name, path string) (Config, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read custom script: %w", err)
	}
	if strings.TrimSpace(string(script)) == "" {
		return Config{}, fmt.Errorf("custom script %s is empty", path)
	}
	if name == "" {
		name = "custom"
	}
	return Config{
		Name:        name,
		Description: "Custom script from " + filepath.Base(path),
		Script:      string(script),
		MaxRounds:   1,
	}, nil
}
