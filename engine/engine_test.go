package engine

import (
	"math"
	"testing"

	"github.com/use-agent/stealthmode/config"
	"github.com/use-agent/stealthmode/dom"
	"github.com/use-agent/stealthmode/dom/htmldom"
)

const watchPage = `<html><body>
<div id="movie_player" class="html5-video-player">
  <video class="html5-main-video" data-duration="30" data-current-time="0"></video>
  <div class="ytp-ad-module"></div>
</div>
</body></html>`

func testConfig() config.EngineConfig {
	return config.DefaultEngineConfig()
}

func mainVideo(t *testing.T, d *htmldom.Document) dom.Media {
	t.Helper()
	v := d.QueryMedia("video.html5-main-video")
	if v == nil {
		t.Fatal("main video missing")
	}
	return v
}

func mediaState(t *testing.T, m dom.Media) dom.MediaState {
	t.Helper()
	st, err := m.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	return st
}

func TestIsAdActive(t *testing.T) {
	markers := []string{"ad-showing", "ad-interrupting"}
	tests := []struct {
		name   string
		html   string
		active bool
	}{
		{"no markers, empty module", `<div id="p"></div><div class="m"></div>`, false},
		{"ad-showing", `<div id="p" class="ad-showing"></div><div class="m"></div>`, true},
		{"ad-interrupting", `<div id="p" class="player ad-interrupting"></div>`, true},
		{"marker wins over empty module", `<div id="p" class="ad-showing"></div><div class="m"></div>`, true},
		{"marker with populated module", `<div id="p" class="ad-showing"></div><div class="m"><span></span></div>`, true},
		{"populated module", `<div id="p"></div><div class="m"><span>ad</span></div>`, true},
		{"module with text only", `<div id="p"></div><div class="m">text</div>`, false},
		{"no module", `<div id="p"></div>`, false},
		{"marker substring is not a marker", `<div id="p" class="ad-showing-soon"></div>`, false},
		{"no player", `<div class="m"><span></span></div>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := htmldom.MustParse(tt.html, "")
			if got := IsAdActive(d.Query("#p"), d.Query(".m"), markers); got != tt.active {
				t.Errorf("IsAdActive = %v, want %v", got, tt.active)
			}
		})
	}
}

func TestLocate(t *testing.T) {
	sel := testConfig().Selectors

	loc := Locate(htmldom.MustParse(watchPage, ""), sel)
	if loc.Media == nil || loc.Player == nil {
		t.Fatalf("Locate on watch page: %+v", loc)
	}

	loc = Locate(htmldom.MustParse(`<p>nothing to see</p>`, ""), sel)
	if loc.Media != nil || loc.Player != nil {
		t.Errorf("Locate on empty page: %+v", loc)
	}
}

// Scenario A.
func TestSitePassInterceptsAd(t *testing.T) {
	d := htmldom.MustParse(watchPage, "https://www.youtube.com/watch?v=a")
	d.AddClass(d.Query("#movie_player"), "ad-showing")

	s := NewSite(testConfig(), nil)
	st := NewState(d.Location())
	counts := s.Pass(d, st)

	if counts.SpedUp != 1 || counts.Skipped != 0 {
		t.Errorf("counts: %+v", counts)
	}
	ms := mediaState(t, mainVideo(t, d))
	if !ms.Muted || ms.CurrentTime != 29.9 || ms.PlaybackRate != 16 || ms.Paused {
		t.Errorf("media after intercept: %+v", ms)
	}
	if !st.InterventionActive {
		t.Error("InterventionActive not set")
	}
}

func TestControllerIdempotent(t *testing.T) {
	d := htmldom.MustParse(watchPage, "")
	c := NewController(testConfig(), nil)
	st := NewState("")
	v := mainVideo(t, d)

	first := c.Apply(v, true, st)
	after := mediaState(t, v)
	second := c.Apply(v, true, st)

	if first.SpedUp != 1 || second.SpedUp != 0 {
		t.Errorf("speed-ups: first=%d second=%d", first.SpedUp, second.SpedUp)
	}
	if again := mediaState(t, v); again != after {
		t.Errorf("second apply changed state: %+v -> %+v", after, again)
	}
}

func TestControllerRoundTrip(t *testing.T) {
	d := htmldom.MustParse(watchPage, "")
	c := NewController(testConfig(), nil)
	st := NewState("")
	v := mainVideo(t, d)

	c.Apply(v, true, st)
	c.Apply(v, false, st)

	ms := mediaState(t, v)
	if ms.PlaybackRate != 1.0 || ms.Muted {
		t.Errorf("after round trip: %+v", ms)
	}
	if st.InterventionActive {
		t.Error("InterventionActive still set")
	}
}

func TestControllerLeavesUserRateAlone(t *testing.T) {
	d := htmldom.MustParse(`<video class="html5-main-video" data-playback-rate="1.5" muted></video>`, "")
	c := NewController(testConfig(), nil)
	v := mainVideo(t, d)

	c.Apply(v, false, NewState(""))

	ms := mediaState(t, v)
	if ms.PlaybackRate != 1.5 || !ms.Muted {
		t.Errorf("normal-state media modified: %+v", ms)
	}
}

func TestControllerInfiniteDuration(t *testing.T) {
	d := htmldom.MustParse(`<video class="html5-main-video" data-duration="Infinity" data-current-time="5"></video>`, "")
	c := NewController(testConfig(), nil)
	v := mainVideo(t, d)

	counts := c.Apply(v, true, NewState(""))

	ms := mediaState(t, v)
	if counts.SpedUp != 0 || ms.CurrentTime != 5 {
		t.Errorf("live media was seeked: counts=%+v state=%+v", counts, ms)
	}
	if !ms.Muted || ms.PlaybackRate != 16 {
		t.Errorf("live media not overridden: %+v", ms)
	}
}

func TestControllerUnknownDurationAndPlayFailure(t *testing.T) {
	d := htmldom.MustParse(`<video class="html5-main-video" data-play-error></video>`, "")
	c := NewController(testConfig(), nil)
	v := mainVideo(t, d)
	st := NewState("")

	counts := c.Apply(v, true, st)

	ms := mediaState(t, v)
	if !math.IsNaN(ms.Duration) || counts.SpedUp != 0 {
		t.Errorf("unknown duration: counts=%+v state=%+v", counts, ms)
	}
	if !ms.Muted || ms.PlaybackRate != 16 || !st.InterventionActive {
		t.Errorf("rejected play should not stop the override: %+v", ms)
	}
}

func TestControllerAlreadyNearEnd(t *testing.T) {
	d := htmldom.MustParse(`<video class="html5-main-video" data-duration="30" data-current-time="29.95"></video>`, "")
	c := NewController(testConfig(), nil)
	v := mainVideo(t, d)

	if counts := c.Apply(v, true, NewState("")); counts.SpedUp != 0 {
		t.Errorf("media already past the seek point was counted: %+v", counts)
	}
	if ms := mediaState(t, v); ms.CurrentTime != 29.95 {
		t.Errorf("CurrentTime changed: %v", ms.CurrentTime)
	}
}

func TestControllerNilMedia(t *testing.T) {
	c := NewController(testConfig(), nil)
	st := NewState("")
	if counts := c.Apply(nil, true, st); !counts.IsZero() {
		t.Errorf("counts for nil media: %+v", counts)
	}
	c.Restore(nil, st)
}

func TestSelect(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		location string
		want     string
	}{
		{"https://www.youtube.com/watch?v=1", NameSite},
		{"https://m.YouTube.com/", NameSite},
		{"https://example.com/youtube.com", NameGeneric},
		{"https://news.example.org/article", NameGeneric},
		{"", NameGeneric},
		{"::not a url", NameGeneric},
	}
	for _, tt := range tests {
		if got := Select(tt.location, cfg, nil).Name(); got != tt.want {
			t.Errorf("Select(%q) = %s, want %s", tt.location, got, tt.want)
		}
	}
}

func TestStateSetEnabled(t *testing.T) {
	st := NewState("u")
	if !st.Enabled {
		t.Fatal("new state should be enabled")
	}
	if st.SetEnabled(true) {
		t.Error("no-op SetEnabled reported a change")
	}
	if !st.SetEnabled(false) || st.Enabled {
		t.Error("SetEnabled(false) did not apply")
	}
}
