package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quiltwm/quilt/internal/layout"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Layout != "tiling" {
		t.Fatalf("expected default layout tiling, got %q", cfg.Layout)
	}
	if len(cfg.Workspaces) != 9 {
		t.Fatalf("expected 9 default workspaces, got %d", len(cfg.Workspaces))
	}
	if !cfg.GetSwitchOnMove() {
		t.Fatal("switch_on_move should default to true")
	}
}

func TestLoadFromPath_FullConfig(t *testing.T) {
	path := writeConfig(t, `
layout: bsp
gaps:
  inner: 8
  outer: 12
focus_follows_mouse: true
switch_on_move: false
workspaces:
  - name: web
  - name: code
    layout: tiling
float_rules:
  - app: pavucontrol
  - app: firefox
    title_contains: "Picture-in-Picture"
`)
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gaps.Inner != 8 || cfg.Gaps.Outer != 12 {
		t.Fatalf("gaps not applied: %+v", cfg.Gaps)
	}
	if cfg.GetSwitchOnMove() {
		t.Fatal("switch_on_move: false not applied")
	}
	if cfg.ModeFor("web") != layout.ModeBSP {
		t.Fatal("workspace web should inherit the bsp default")
	}
	if cfg.ModeFor("code") != layout.ModeTiling {
		t.Fatal("workspace code should override to tiling")
	}
	if !cfg.FloatingFor("pavucontrol", "Volume Control") {
		t.Fatal("pavucontrol should float regardless of title")
	}
	if cfg.FloatingFor("firefox", "Mozilla Firefox") {
		t.Fatal("firefox should only float for matching titles")
	}
	if !cfg.FloatingFor("Firefox", "Picture-in-Picture") {
		t.Fatal("app match should be case-insensitive and honor the title rule")
	}
}

func TestValidate_CollectsAllIssues(t *testing.T) {
	cfg := &Config{
		Layout: "spiral",
		Gaps:   layout.Gaps{Inner: -1, Outer: -2},
		Workspaces: []WorkspaceConfig{
			{Name: "a"},
			{Name: "a"},
			{Name: "", Layout: "bsp"},
			{Name: "b", Layout: "grid"},
		},
		FloatRules: []FloatRule{{App: "  "}},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("error should wrap ErrInvalid, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Issues) != 7 {
		t.Fatalf("expected 7 issues, got %d: %v", len(verr.Issues), verr.Issues)
	}
}

func TestLoadFromPath_UnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, "layot: bsp\n")
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromPath_InvalidConfigReported(t *testing.T) {
	path := writeConfig(t, "layout: spiral\n")
	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "spiral") {
		t.Fatalf("error should name the offending value: %v", err)
	}
}
