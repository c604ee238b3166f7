package htmldom

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/use-agent/stealthmode/dom"
	"golang.org/x/net/html"
)

// ErrPlayRejected mimics a rejected play() promise.
var ErrPlayRejected = errors.New("htmldom: play rejected")

type mediaState struct {
	muted     bool
	paused    bool
	duration  float64
	current   float64
	rate      float64
	playFails bool
}

type media struct {
	element
}

var _ dom.Media = (*media)(nil)

func (m *media) State() (dom.MediaState, error) {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	st := m.stateLocked()
	return dom.MediaState{
		Muted:        st.muted,
		Paused:       st.paused,
		Duration:     st.duration,
		CurrentTime:  st.current,
		PlaybackRate: st.rate,
	}, nil
}

func (m *media) SetMuted(muted bool) error {
	return m.update(func(st *mediaState) { st.muted = muted })
}

func (m *media) Seek(seconds float64) error {
	return m.update(func(st *mediaState) {
		if !math.IsNaN(st.duration) && !math.IsInf(st.duration, 0) && seconds > st.duration {
			seconds = st.duration
		}
		if seconds < 0 {
			seconds = 0
		}
		st.current = seconds
	})
}

func (m *media) SetPlaybackRate(rate float64) error {
	return m.update(func(st *mediaState) { st.rate = rate })
}

func (m *media) Play() error {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	if !m.d.attachedLocked(m.n) {
		return ErrDetached
	}
	st := m.stateLocked()
	if st.playFails {
		return ErrPlayRejected
	}
	st.paused = false
	return nil
}

func (m *media) update(fn func(st *mediaState)) error {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	if !m.d.attachedLocked(m.n) {
		return ErrDetached
	}
	fn(m.stateLocked())
	return nil
}

func (m *media) stateLocked() *mediaState {
	if st, ok := m.d.media[m.n]; ok {
		return st
	}
	st := seedState(m.n)
	m.d.media[m.n] = st
	return st
}

func seedState(n *html.Node) *mediaState {
	st := &mediaState{
		muted:     hasAttr(n, "muted"),
		paused:    !hasAttr(n, "autoplay"),
		duration:  math.NaN(),
		rate:      1,
		playFails: hasAttr(n, "data-play-error"),
	}
	if v := attr(n, "data-duration"); v != "" {
		st.duration = parseSeconds(v)
	}
	if v := attr(n, "data-current-time"); v != "" {
		st.current = parseSeconds(v)
	}
	if v := attr(n, "data-playback-rate"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			st.rate = f
		}
	}
	return st
}

func parseSeconds(v string) float64 {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "infinity", "inf", "+inf":
		return math.Inf(1)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
