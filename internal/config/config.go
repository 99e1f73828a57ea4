// Package config defines the validated daemon configuration and its YAML
// loader. Configuration is never applied partially: a reload that fails
// validation leaves the last-known-good configuration in effect.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quiltwm/quilt/internal/layout"
	"github.com/quiltwm/quilt/internal/runtimepath"
)

// ErrInvalid wraps all validation failures.
var ErrInvalid = errors.New("config: invalid configuration")

// ValidationError collects every issue found in one pass so the user sees
// the full list, not the first failure.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalid, strings.Join(e.Issues, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// WorkspaceConfig names a workspace and optionally overrides its layout mode.
type WorkspaceConfig struct {
	Name   string `yaml:"name"`
	Layout string `yaml:"layout,omitempty"`
}

// FloatRule marks windows of an application as floating. App matches the
// window's application id exactly; TitleContains, when set, additionally
// requires a title substring match.
type FloatRule struct {
	App           string `yaml:"app"`
	TitleContains string `yaml:"title_contains,omitempty"`
}

// Config is the effective daemon configuration.
type Config struct {
	// Layout is the default layout mode: "tiling" or "bsp".
	Layout string `yaml:"layout"`
	// Gaps configures outer padding and inner spacing in pixels.
	Gaps layout.Gaps `yaml:"gaps"`
	// FocusFollowsMouse updates workspace focus from pointer-driven focus
	// notifications.
	FocusFollowsMouse bool `yaml:"focus_follows_mouse"`
	// SwitchOnMove switches the active workspace when a window is moved to
	// another workspace, so the moved window stays visible. Default true.
	SwitchOnMove *bool `yaml:"switch_on_move,omitempty"`
	// Animate is consumed as a flag by broadcast summaries; rendering is out
	// of scope for the daemon.
	Animate bool `yaml:"animate"`
	// Workspaces declares the workspace set. Empty falls back to defaults.
	Workspaces []WorkspaceConfig `yaml:"workspaces,omitempty"`
	// FloatRules classify windows as floating at discovery time.
	FloatRules []FloatRule `yaml:"float_rules,omitempty"`
	// ReconcileIntervalSeconds is the periodic drift-check interval.
	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds,omitempty"`
}

const defaultReconcileInterval = 30 * time.Second

// Default returns the built-in configuration: nine numbered tiling
// workspaces, no gaps, switch-on-move enabled.
func Default() *Config {
	return &Config{
		Layout:     "tiling",
		Workspaces: defaultWorkspaces(),
	}
}

func defaultWorkspaces() []WorkspaceConfig {
	out := make([]WorkspaceConfig, 0, 9)
	for i := 1; i <= 9; i++ {
		out = append(out, WorkspaceConfig{Name: fmt.Sprintf("%d", i)})
	}
	return out
}

// GetSwitchOnMove returns the effective value, defaulting to true.
func (c *Config) GetSwitchOnMove() bool {
	if c.SwitchOnMove == nil {
		return true
	}
	return *c.SwitchOnMove
}

// ReconcileInterval returns the effective periodic reconcile interval.
func (c *Config) ReconcileInterval() time.Duration {
	if c.ReconcileIntervalSeconds <= 0 {
		return defaultReconcileInterval
	}
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

// FloatingFor reports whether a window with the given application id and
// title should float. Evaluated once per window at discovery; the decision is
// cached on the window record.
func (c *Config) FloatingFor(appID, title string) bool {
	for _, r := range c.FloatRules {
		if !strings.EqualFold(r.App, appID) {
			continue
		}
		if r.TitleContains == "" || strings.Contains(title, r.TitleContains) {
			return true
		}
	}
	return false
}

// ModeFor returns the layout mode for a workspace, honoring the per-workspace
// override. Call only on a validated config.
func (c *Config) ModeFor(workspace string) layout.Mode {
	for _, ws := range c.Workspaces {
		if ws.Name == workspace && ws.Layout != "" {
			m, _ := layout.ParseMode(ws.Layout)
			return m
		}
	}
	m, _ := layout.ParseMode(c.Layout)
	return m
}

// Validate checks the whole configuration and returns a ValidationError
// listing every issue found.
func (c *Config) Validate() error {
	var issues []string

	if _, err := layout.ParseMode(c.Layout); err != nil {
		issues = append(issues, fmt.Sprintf("layout: %q is not one of tiling, bsp", c.Layout))
	}
	if c.Gaps.Inner < 0 {
		issues = append(issues, fmt.Sprintf("gaps.inner: %d is negative", c.Gaps.Inner))
	}
	if c.Gaps.Outer < 0 {
		issues = append(issues, fmt.Sprintf("gaps.outer: %d is negative", c.Gaps.Outer))
	}
	if c.ReconcileIntervalSeconds < 0 {
		issues = append(issues, fmt.Sprintf("reconcile_interval_seconds: %d is negative", c.ReconcileIntervalSeconds))
	}

	seen := make(map[string]bool)
	for i, ws := range c.Workspaces {
		if strings.TrimSpace(ws.Name) == "" {
			issues = append(issues, fmt.Sprintf("workspaces[%d]: name is empty", i))
			continue
		}
		if seen[ws.Name] {
			issues = append(issues, fmt.Sprintf("workspaces[%d]: duplicate name %q", i, ws.Name))
		}
		seen[ws.Name] = true
		if ws.Layout != "" {
			if _, err := layout.ParseMode(ws.Layout); err != nil {
				issues = append(issues, fmt.Sprintf("workspaces[%d].layout: %q is not one of tiling, bsp", i, ws.Layout))
			}
		}
	}

	for i, r := range c.FloatRules {
		if strings.TrimSpace(r.App) == "" {
			issues = append(issues, fmt.Sprintf("float_rules[%d]: app is empty", i))
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// Load reads the configuration from the standard location. A missing file
// yields the defaults.
func Load() (*Config, error) {
	path, err := runtimepath.ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads, decodes, and validates a configuration file. A missing
// file yields the defaults; decode and validation failures are returned so
// callers can keep running on their previous configuration.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if len(cfg.Workspaces) == 0 {
		cfg.Workspaces = defaultWorkspaces()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
