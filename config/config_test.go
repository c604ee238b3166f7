package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr: got %q", cfg.Server.Addr())
	}
	e := cfg.Engine
	if e.PollInterval != 50*time.Millisecond || e.GenericInterval != time.Second {
		t.Errorf("intervals: poll=%s generic=%s", e.PollInterval, e.GenericInterval)
	}
	if e.SpeedupRate != 16 || e.SeekEpsilon != 100*time.Millisecond {
		t.Errorf("rate=%v epsilon=%s", e.SpeedupRate, e.SeekEpsilon)
	}
	if e.RestoreOnDisable {
		t.Error("RestoreOnDisable should default to false")
	}
	if len(e.AdKeywords) != 10 {
		t.Errorf("AdKeywords: got %d entries, want 10", len(e.AdKeywords))
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STEALTH_PORT", "9090")
	t.Setenv("STEALTH_SPEEDUP_RATE", "8")
	t.Setenv("STEALTH_SITE_HOSTS", "youtube.com, youtube-nocookie.com ,")
	t.Setenv("STEALTH_API_KEYS", "a,b")
	t.Setenv("STEALTH_RESTORE_ON_DISABLE", "true")
	t.Setenv("STEALTH_POLL_INTERVAL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port: got %d", cfg.Server.Port)
	}
	if cfg.Engine.SpeedupRate != 8 {
		t.Errorf("SpeedupRate: got %v", cfg.Engine.SpeedupRate)
	}
	if got := strings.Join(cfg.Engine.SiteHosts, "|"); got != "youtube.com|youtube-nocookie.com" {
		t.Errorf("SiteHosts: got %q", got)
	}
	if len(cfg.Auth.APIKeys) != 2 {
		t.Errorf("APIKeys: got %v", cfg.Auth.APIKeys)
	}
	if !cfg.Engine.RestoreOnDisable {
		t.Error("RestoreOnDisable not read from env")
	}
	if cfg.Engine.PollInterval != 50*time.Millisecond {
		t.Errorf("unparsable duration should fall back, got %s", cfg.Engine.PollInterval)
	}
}

func TestLoadRejectsInvalidEngine(t *testing.T) {
	t.Setenv("STEALTH_SPEEDUP_RATE", "1")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for speedup rate 1")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*EngineConfig)
		wantErr string
	}{
		{"defaults", func(*EngineConfig) {}, ""},
		{"zero poll", func(c *EngineConfig) { c.PollInterval = 0 }, "poll interval"},
		{"negative generic", func(c *EngineConfig) { c.GenericInterval = -time.Second }, "generic interval"},
		{"rate below one", func(c *EngineConfig) { c.SpeedupRate = 0.5 }, "speedup rate"},
		{"negative epsilon", func(c *EngineConfig) { c.SeekEpsilon = -1 }, "seek epsilon"},
		{"negative debounce", func(c *EngineConfig) { c.MutationDebounce = -1 }, "mutation debounce"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultEngineConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRulesOverride(t *testing.T) {
	rules, err := ParseRules([]byte(`
speedup_rate: 4
skip_texts: ["Überspringen"]
selectors:
  player: "#player"
  ad_markers: [ad-live]
`))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}

	cfg := DefaultEngineConfig()
	rules.Apply(&cfg)

	if cfg.SpeedupRate != 4 {
		t.Errorf("SpeedupRate: got %v", cfg.SpeedupRate)
	}
	if len(cfg.SkipTexts) != 1 || cfg.SkipTexts[0] != "Überspringen" {
		t.Errorf("SkipTexts: got %v", cfg.SkipTexts)
	}
	if cfg.Selectors.Player != "#player" {
		t.Errorf("Player: got %q", cfg.Selectors.Player)
	}
	if cfg.Selectors.AdMarkers[0] != "ad-live" {
		t.Errorf("AdMarkers: got %v", cfg.Selectors.AdMarkers)
	}
	if cfg.Selectors.Media != "video.html5-main-video" {
		t.Errorf("untouched selector changed: %q", cfg.Selectors.Media)
	}
	if len(cfg.AdKeywords) != 10 {
		t.Errorf("untouched list changed: %v", cfg.AdKeywords)
	}
}

func TestRulesLowercaseKeywords(t *testing.T) {
	rules, err := ParseRules([]byte(`ad_keywords: [DoubleClick, Taboola]`))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	cfg := DefaultEngineConfig()
	rules.Apply(&cfg)

	want := []string{"doubleclick", "taboola"}
	if len(cfg.AdKeywords) != len(want) {
		t.Fatalf("AdKeywords: got %v", cfg.AdKeywords)
	}
	for i, k := range want {
		if cfg.AdKeywords[i] != k {
			t.Errorf("AdKeywords[%d]: got %q, want %q", i, cfg.AdKeywords[i], k)
		}
	}
}

func TestParseRulesErrors(t *testing.T) {
	if _, err := ParseRules([]byte("unknown_key: 1")); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := ParseRules(nil); err != nil {
		t.Errorf("empty rules: %v", err)
	}
}

func TestLoadRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("site_hosts: [example.com]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STEALTH_RULES_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Engine.SiteHosts) != 1 || cfg.Engine.SiteHosts[0] != "example.com" {
		t.Errorf("SiteHosts: got %v", cfg.Engine.SiteHosts)
	}

	t.Setenv("STEALTH_RULES_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing rules file")
	}
}
