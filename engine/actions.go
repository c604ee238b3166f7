package engine

import (
	"strings"

	"github.com/use-agent/stealthmode/config"
	"github.com/use-agent/stealthmode/dom"
	"github.com/use-agent/stealthmode/stats"
	"golang.org/x/text/cases"
)

// ClickSkipButtons clicks every visible skip control once and counts one
// skip per click. Controls are found by text, matched against SkipTexts
// with Unicode case folding, and by the structural SkipButtons selectors.
func ClickSkipButtons(doc dom.Document, cfg config.EngineConfig) stats.Counts {
	var (
		counts  stats.Counts
		clicked = make(map[string]struct{})
	)
	click := func(el dom.Element) {
		key := el.Key()
		if _, done := clicked[key]; done {
			return
		}
		clicked[key] = struct{}{}
		if !el.Visible() {
			return
		}
		if el.Click() == nil {
			counts.Skipped++
		}
	}

	if cfg.Selectors.SkipCandidates != "" && len(cfg.SkipTexts) > 0 {
		fold := cases.Fold()
		needles := make([]string, 0, len(cfg.SkipTexts))
		for _, t := range cfg.SkipTexts {
			if t != "" {
				needles = append(needles, fold.String(t))
			}
		}
		match := func(text string) bool { return containsAny(fold.String(text), needles) }
		for _, el := range queryByText(doc, cfg.Selectors.SkipCandidates, match) {
			click(el)
		}
	}
	for _, sel := range cfg.Selectors.SkipButtons {
		for _, el := range doc.QueryAll(sel) {
			click(el)
		}
	}
	return counts
}

// queryByText returns the elements matching selector whose text satisfies
// match. Invisible elements may be included unless doc filters them.
func queryByText(doc dom.Document, selector string, match func(string) bool) []dom.Element {
	if tq, ok := doc.(dom.TextQuerier); ok {
		return tq.QueryVisibleByText(selector, match)
	}
	var out []dom.Element
	for _, el := range doc.QueryAll(selector) {
		if match(el.Text()) {
			out = append(out, el)
		}
	}
	return out
}

// SuppressOverlays hides overlay ads and removes promoted slots. Safe to
// repeat on every pass.
func SuppressOverlays(doc dom.Document, cfg config.EngineConfig) {
	for _, sel := range cfg.Selectors.Overlays {
		for _, el := range doc.QueryAll(sel) {
			_ = el.Hide()
		}
	}
	for _, sel := range cfg.Selectors.PromotedSlots {
		for _, el := range doc.QueryAll(sel) {
			_ = el.Remove()
		}
	}
}

// DismissBlockNotices removes anti-adblock dialogs: it clicks the dialog's
// own dismiss control, removes the dialog, resumes media and drops the
// backdrop. It returns the number of dialogs dismissed.
func DismissBlockNotices(doc dom.Document, cfg config.EngineConfig, media dom.Media) int {
	sel := cfg.Selectors
	if sel.NoticeDialogs == "" || len(sel.NoticePhrases) == 0 {
		return 0
	}
	dismissed := 0
	for _, dialog := range doc.QueryAll(sel.NoticeDialogs) {
		if !containsAny(dialog.Text(), sel.NoticePhrases) {
			continue
		}
		if sel.NoticeDismiss != "" {
			if btn := dialog.Query(sel.NoticeDismiss); btn != nil {
				_ = btn.Click()
			}
		}
		_ = dialog.Remove()
		if media != nil {
			_ = media.Play()
		}
		if sel.NoticeBackdrop != "" {
			if backdrop := doc.Query(sel.NoticeBackdrop); backdrop != nil {
				_ = backdrop.Remove()
			}
		}
		dismissed++
	}
	return dismissed
}

// Zap is one generic pass: it removes ad frames, forces ad-context media to
// mute at the override rate and removes known ad containers. Frames caught
// by a keyword in their source count as skips. Media counts as one speed-up
// only when its mute or rate actually changed, since the mutation path
// re-runs Zap over the same media many times during one ad.
func Zap(doc dom.Document, cfg config.EngineConfig) stats.Counts {
	var counts stats.Counts
	sel := cfg.Selectors

	if sel.Frames != "" {
		for _, frame := range doc.QueryAll(sel.Frames) {
			src := strings.ToLower(frame.Attr("src"))
			if containsAnyLower(src, cfg.AdKeywords) {
				if frame.Remove() == nil {
					counts.Skipped++
				}
				continue
			}
			if containsAny(frame.ID(), sel.FrameIDPatterns) || containsAny(frame.ClassName(), sel.FrameClassPatterns) {
				_ = frame.Remove()
			}
		}
	}

	if sel.GenericMedia != "" && sel.AdContext != "" {
		for _, m := range doc.QueryAllMedia(sel.GenericMedia) {
			if m.Closest(sel.AdContext) == nil {
				continue
			}
			ms, err := m.State()
			if err != nil {
				continue
			}
			changed := false
			if !ms.Muted && m.SetMuted(true) == nil {
				changed = true
			}
			if ms.PlaybackRate != cfg.SpeedupRate && m.SetPlaybackRate(cfg.SpeedupRate) == nil {
				changed = true
			}
			if changed {
				counts.SpedUp++
			}
		}
	}

	for _, s := range sel.AdContainers {
		for _, el := range doc.QueryAll(s) {
			_ = el.Remove()
		}
	}
	return counts
}

// WatchNavigation compares the document location with the last one seen.
// On a change it records the new location and re-runs Locate at once,
// since the old references may now point at detached nodes.
func WatchNavigation(doc dom.Document, st *State, sel config.Selectors) bool {
	url := doc.Location()
	if url == st.LastURL {
		return false
	}
	st.LastURL = url
	loc := Locate(doc, sel)
	st.Media, st.Player = loc.Media, loc.Player
	return true
}

// containsAnyLower is containsAny for a lowercased s against needles of
// any case.
func containsAnyLower(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		if n != "" && strings.Contains(s, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
