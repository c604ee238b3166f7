package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules is the on-disk override of the engine's text and selector lists.
// Empty fields keep their defaults.
type Rules struct {
	SpeedupRate float64   `yaml:"speedup_rate"`
	SkipTexts   []string  `yaml:"skip_texts"`
	AdKeywords  []string  `yaml:"ad_keywords"`
	SiteHosts   []string  `yaml:"site_hosts"`
	Selectors   Selectors `yaml:"selectors"`
}

// LoadRules reads a YAML rules file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules decodes YAML rules, rejecting unknown keys.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse rules: %w", err)
	}
	return &r, nil
}

// Apply overlays the non-empty rule fields onto cfg.
func (r *Rules) Apply(cfg *EngineConfig) {
	if r.SpeedupRate != 0 {
		cfg.SpeedupRate = r.SpeedupRate
	}
	overrideList(&cfg.SkipTexts, r.SkipTexts)
	overrideList(&cfg.AdKeywords, r.AdKeywords)
	for i, k := range cfg.AdKeywords {
		cfg.AdKeywords[i] = strings.ToLower(k)
	}
	overrideList(&cfg.SiteHosts, r.SiteHosts)

	s, o := &cfg.Selectors, r.Selectors
	overrideString(&s.Media, o.Media)
	overrideString(&s.Player, o.Player)
	overrideString(&s.AdModule, o.AdModule)
	overrideList(&s.AdMarkers, o.AdMarkers)
	overrideString(&s.SkipCandidates, o.SkipCandidates)
	overrideList(&s.SkipButtons, o.SkipButtons)
	overrideList(&s.Overlays, o.Overlays)
	overrideList(&s.PromotedSlots, o.PromotedSlots)
	overrideString(&s.NoticeDialogs, o.NoticeDialogs)
	overrideList(&s.NoticePhrases, o.NoticePhrases)
	overrideString(&s.NoticeDismiss, o.NoticeDismiss)
	overrideString(&s.NoticeBackdrop, o.NoticeBackdrop)
	overrideString(&s.Frames, o.Frames)
	overrideList(&s.FrameIDPatterns, o.FrameIDPatterns)
	overrideList(&s.FrameClassPatterns, o.FrameClassPatterns)
	overrideString(&s.GenericMedia, o.GenericMedia)
	overrideString(&s.AdContext, o.AdContext)
	overrideList(&s.AdContainers, o.AdContainers)
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overrideList(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = append([]string(nil), v...)
	}
}
