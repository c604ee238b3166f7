package config

import (
	"errors"
	"fmt"
	"time"
)

// EngineConfig is the read-only input of every engine component. It is
// built once by Load and never mutated afterwards.
type EngineConfig struct {
	// PollInterval is the site strategy tick.
	PollInterval time.Duration // default: 50ms

	// GenericInterval is the generic strategy tick.
	GenericInterval time.Duration // default: 1s

	// SpeedupRate is the playback rate forced while an ad plays.
	SpeedupRate float64 // default: 16.0

	// SeekEpsilon is how far before the end an ad is seeked to, so the
	// media still reaches its natural end.
	SeekEpsilon time.Duration // default: 100ms

	// SkipTexts are matched case-insensitively against skip control text.
	SkipTexts []string

	// AdKeywords are matched against lowercased frame sources.
	AdKeywords []string

	// SiteHosts routes a location to the site strategy when its host
	// contains any entry.
	SiteHosts []string

	Selectors Selectors

	// RestoreOnDisable restores rate and mute when the engine is disabled
	// while an intervention is active.
	RestoreOnDisable bool // default: false

	// MutationDebounce delays generic mutation passes. Zero runs one pass
	// per notification.
	MutationDebounce time.Duration // default: 0
}

// Selectors groups every CSS selector and markup pattern the engine queries.
type Selectors struct {
	Media          string   `yaml:"media"`
	Player         string   `yaml:"player"`
	AdModule       string   `yaml:"ad_module"`
	AdMarkers      []string `yaml:"ad_markers"`
	SkipCandidates string   `yaml:"skip_candidates"`
	SkipButtons    []string `yaml:"skip_buttons"`
	Overlays       []string `yaml:"overlays"`
	PromotedSlots  []string `yaml:"promoted_slots"`

	NoticeDialogs  string   `yaml:"notice_dialogs"`
	NoticePhrases  []string `yaml:"notice_phrases"`
	NoticeDismiss  string   `yaml:"notice_dismiss"`
	NoticeBackdrop string   `yaml:"notice_backdrop"`

	Frames             string   `yaml:"frames"`
	FrameIDPatterns    []string `yaml:"frame_id_patterns"`
	FrameClassPatterns []string `yaml:"frame_class_patterns"`
	GenericMedia       string   `yaml:"generic_media"`
	AdContext          string   `yaml:"ad_context"`
	AdContainers       []string `yaml:"ad_containers"`
}

// DefaultEngineConfig returns the built-in tuning and selector set.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PollInterval:    50 * time.Millisecond,
		GenericInterval: time.Second,
		SpeedupRate:     16.0,
		SeekEpsilon:     100 * time.Millisecond,
		SkipTexts:       []string{"Skip", "Skip Ad", "Skip Ads", "Saltar", "Passer", "Ignora"},
		AdKeywords: []string{
			"googleads", "doubleclick", "amazon-adsystem", "adservice", "googlesyndication",
			"moatads", "criteo", "outbrain", "taboola", "adroll",
		},
		SiteHosts: []string{"youtube.com"},
		Selectors: Selectors{
			Media:          "video.html5-main-video",
			Player:         "#movie_player",
			AdModule:       ".ytp-ad-module",
			AdMarkers:      []string{"ad-showing", "ad-interrupting"},
			SkipCandidates: `button, [role="button"]`,
			SkipButtons:    []string{".ytp-ad-skip-button", ".ytp-ad-skip-button-modern", ".videoAdUiSkipButton"},
			Overlays:       []string{".ytp-ad-overlay-container", ".ytp-ad-image-overlay"},
			PromotedSlots:  []string{"ytd-ad-slot-renderer"},

			NoticeDialogs:  "tp-yt-paper-dialog, .ytd-popup-container",
			NoticePhrases:  []string{"Ad blockers are not allowed", "Terms of Service"},
			NoticeDismiss:  `#dismiss-button, [aria-label="Close"]`,
			NoticeBackdrop: "tp-yt-iron-overlay-backdrop",

			Frames:             "iframe",
			FrameIDPatterns:    []string{"google_ads"},
			FrameClassPatterns: []string{"adsbygoogle"},
			GenericMedia:       "video",
			AdContext:          `[class*="ad"], [id*="ad-"]`,
			AdContainers:       []string{"ins.adsbygoogle", `div[id*="taboola-"]`, `div[id*="outbrain-"]`},
		},
	}
}

// Validate reports configuration that would make the engine misbehave.
func (c EngineConfig) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.GenericInterval <= 0 {
		errs = append(errs, fmt.Errorf("generic interval must be positive, got %s", c.GenericInterval))
	}
	if c.SpeedupRate <= 1 {
		errs = append(errs, fmt.Errorf("speedup rate must be greater than 1, got %v", c.SpeedupRate))
	}
	if c.SeekEpsilon < 0 {
		errs = append(errs, fmt.Errorf("seek epsilon must not be negative, got %s", c.SeekEpsilon))
	}
	if c.MutationDebounce < 0 {
		errs = append(errs, fmt.Errorf("mutation debounce must not be negative, got %s", c.MutationDebounce))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid engine config: %w", err)
	}
	return nil
}
