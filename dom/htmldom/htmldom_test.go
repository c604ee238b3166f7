package htmldom

import (
	"errors"
	"math"
	"strings"
	"testing"
)

const page = `<html><body>
<div id="movie_player" class="html5-video-player">
  <video class="html5-main-video" data-duration="30" data-current-time="0"></video>
</div>
<button class="skip">Skip Ad</button>
<button class="skip" style="display:none">Skip Ad</button>
<div hidden><button id="nested">Skip</button></div>
<div id="overlay" class="ytp-ad-overlay-container">Buy <span style="display: none">hidden</span>now</div>
</body></html>`

func TestQueryAndAttributes(t *testing.T) {
	d := MustParse(page, "https://www.youtube.com/watch?v=a")

	player := d.Query("#movie_player")
	if player == nil {
		t.Fatal("player not found")
	}
	if !player.HasClass("html5-video-player") {
		t.Errorf("HasClass: got false, want true")
	}
	if got := player.ChildCount(); got != 1 {
		t.Errorf("ChildCount: got %d, want 1", got)
	}
	if d.Query(".does-not-exist") != nil {
		t.Error("Query for missing selector should return nil")
	}
	if d.Query("[[invalid") != nil {
		t.Error("Query for invalid selector should return nil")
	}
	if got := len(d.QueryAll("button.skip")); got != 2 {
		t.Errorf("QueryAll: got %d, want 2", got)
	}
}

func TestVisibilityAndText(t *testing.T) {
	d := MustParse(page, "")

	buttons := d.QueryAll("button.skip")
	if !buttons[0].Visible() {
		t.Error("first button should be visible")
	}
	if buttons[1].Visible() {
		t.Error("display:none button should be invisible")
	}
	if d.Query("#nested").Visible() {
		t.Error("button inside [hidden] should be invisible")
	}

	if got := d.Query("#overlay").Text(); got != "Buy now" {
		t.Errorf("Text: got %q, want %q", got, "Buy now")
	}
}

func TestRemoveHideAndNotify(t *testing.T) {
	d := MustParse(page, "")
	ch, cancel := d.Subscribe()
	defer cancel()

	overlay := d.Query("#overlay")
	if err := overlay.Hide(); err != nil {
		t.Fatalf("Hide: %v", err)
	}
	if overlay.Visible() {
		t.Error("hidden overlay still visible")
	}
	select {
	case <-ch:
	default:
		t.Error("Hide did not notify subscribers")
	}

	if err := overlay.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := overlay.Remove(); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if d.Query("#overlay") != nil {
		t.Error("removed element still queryable")
	}
	if err := overlay.Click(); !errors.Is(err, ErrDetached) {
		t.Errorf("Click on removed element: got %v, want ErrDetached", err)
	}
}

func TestSubscribeCoalesces(t *testing.T) {
	d := MustParse(page, "https://a.example/1")
	ch, cancel := d.Subscribe()

	d.SetLocation("https://a.example/2")
	d.SetLocation("https://a.example/3")

	if len(ch) != 1 {
		t.Errorf("pending notifications: got %d, want 1", len(ch))
	}
	if got := d.Location(); got != "https://a.example/3" {
		t.Errorf("Location: got %q", got)
	}

	cancel()
	cancel()
	<-ch
	d.SetLocation("https://a.example/4")
	if len(ch) != 0 {
		t.Error("unsubscribed channel still receives notifications")
	}
}

func TestClosest(t *testing.T) {
	d := MustParse(`<div id="ad-slot-1"><section><video></video></section></div><video id="free"></video>`, "")
	videos := d.QueryAllMedia("video")
	if len(videos) != 2 {
		t.Fatalf("QueryAllMedia: got %d, want 2", len(videos))
	}
	if videos[0].Closest(`[id*="ad-"]`) == nil {
		t.Error("nested video should have an ad ancestor")
	}
	if videos[1].Closest(`[id*="ad-"]`) != nil {
		t.Error("free video should have no ad ancestor")
	}
}

func TestMediaState(t *testing.T) {
	d := MustParse(page, "")
	v := d.QueryMedia("video.html5-main-video")
	if v == nil {
		t.Fatal("video not found")
	}

	st, _ := v.State()
	if st.Duration != 30 || st.CurrentTime != 0 || st.PlaybackRate != 1 || !st.Paused || st.Muted {
		t.Errorf("seeded state: %+v", st)
	}

	_ = v.SetMuted(true)
	_ = v.Seek(29.9)
	_ = v.SetPlaybackRate(16)
	if err := v.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	again := d.QueryMedia("video")
	st, _ = again.State()
	if !st.Muted || st.CurrentTime != 29.9 || st.PlaybackRate != 16 || st.Paused {
		t.Errorf("state not shared across references: %+v", st)
	}
	if d.QueryMedia("#movie_player") != nil {
		t.Error("non-media element returned from QueryMedia")
	}
}

func TestMediaSeeds(t *testing.T) {
	d := MustParse(`<video id="live" data-duration="Infinity" data-play-error autoplay muted></video><video id="new"></video>`, "")

	st, _ := d.QueryMedia("#live").State()
	if !math.IsInf(st.Duration, 1) {
		t.Errorf("live duration: got %v, want +Inf", st.Duration)
	}
	if st.Paused || !st.Muted {
		t.Errorf("autoplay muted seed: %+v", st)
	}
	if err := d.QueryMedia("#live").Play(); !errors.Is(err, ErrPlayRejected) {
		t.Errorf("Play: got %v, want ErrPlayRejected", err)
	}

	st, _ = d.QueryMedia("#new").State()
	if !math.IsNaN(st.Duration) {
		t.Errorf("unloaded duration: got %v, want NaN", st.Duration)
	}
}

func TestAppendHTMLAndClasses(t *testing.T) {
	d := MustParse(page, "")
	if err := d.AppendHTML("body", `<iframe src="https://ad.doubleclick.net/x"></iframe>`); err != nil {
		t.Fatalf("AppendHTML: %v", err)
	}
	if d.Query("iframe") == nil {
		t.Error("appended iframe missing")
	}

	player := d.Query("#movie_player")
	d.AddClass(player, "ad-showing")
	if !player.HasClass("ad-showing") {
		t.Error("AddClass did not apply")
	}
	d.RemoveClass(player, "ad-showing")
	if player.HasClass("ad-showing") || !player.HasClass("html5-video-player") {
		t.Errorf("RemoveClass: class=%q", player.ClassName())
	}

	out, err := d.HTML()
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if !strings.Contains(out, "doubleclick") {
		t.Error("rendered HTML missing appended node")
	}
}
