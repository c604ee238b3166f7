package roddom

import (
	"math"
	"strconv"

	"github.com/go-rod/rod"
	"github.com/use-agent/stealthmode/dom"
)

type element struct {
	doc *Document
	el  *rod.Element
	key string
}

var _ dom.Element = (*element)(nil)

// unwrap returns the rod element behind e, or nil for foreign or nil
// elements.
func unwrap(e dom.Element) *rod.Element {
	switch v := e.(type) {
	case *element:
		if v != nil {
			return v.el
		}
	case *media:
		if v != nil && v.element != nil {
			return v.el
		}
	}
	return nil
}

// Key is the backend node ID, which survives across remote object handles
// for the same node.
func (e *element) Key() string {
	if e.key != "" {
		return e.key
	}
	node, err := e.el.Describe(0, false)
	if err != nil {
		return string(e.el.Object.ObjectID)
	}
	e.key = strconv.Itoa(int(node.BackendNodeID))
	return e.key
}

func (e *element) Tag() string {
	return e.evalStr(`() => this.tagName.toLowerCase()`)
}

func (e *element) ID() string { return e.Attr("id") }

func (e *element) Attr(name string) string {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return ""
	}
	return *v
}

func (e *element) ClassName() string { return e.Attr("class") }

func (e *element) HasClass(name string) bool {
	res, err := e.el.Eval(`(c) => this.classList.contains(c)`, name)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func (e *element) ChildCount() int {
	res, err := e.el.Eval(`() => this.children.length`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

func (e *element) Text() string {
	t, err := e.el.Text()
	if err != nil {
		return ""
	}
	return t
}

func (e *element) Visible() bool {
	res, err := e.el.Eval(`() => !!(this.offsetWidth || this.offsetHeight || this.getClientRects().length)`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func (e *element) Query(selector string) dom.Element {
	if found := e.doc.single(rod.Eval(`(s) => this.querySelector(s)`, selector), e.el.Evaluate); found != nil {
		return found
	}
	return nil
}

func (e *element) Closest(selector string) dom.Element {
	if found := e.doc.single(rod.Eval(`(s) => this.closest(s)`, selector), e.el.Evaluate); found != nil {
		return found
	}
	return nil
}

// Click dispatches a synthetic click, the same activation a page script
// would trigger, so covered or off-screen controls still respond.
func (e *element) Click() error {
	_, err := e.el.Eval(`() => this.click()`)
	return err
}

func (e *element) Remove() error {
	_, err := e.el.Eval(`() => this.remove()`)
	return err
}

func (e *element) Hide() error {
	_, err := e.el.Eval(`() => { this.style.setProperty('display', 'none', 'important') }`)
	return err
}

func (e *element) evalStr(js string) string {
	res, err := e.el.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

type media struct {
	*element
}

var _ dom.Media = (*media)(nil)

const stateJS = `() => ({
	muted: this.muted,
	paused: this.paused,
	finite: isFinite(this.duration),
	unknown: isNaN(this.duration),
	duration: isFinite(this.duration) ? this.duration : 0,
	currentTime: this.currentTime,
	playbackRate: this.playbackRate,
})`

func (m *media) State() (dom.MediaState, error) {
	res, err := m.el.Eval(stateJS)
	if err != nil {
		return dom.MediaState{}, err
	}
	v := res.Value
	st := dom.MediaState{
		Muted:        v.Get("muted").Bool(),
		Paused:       v.Get("paused").Bool(),
		Duration:     v.Get("duration").Num(),
		CurrentTime:  v.Get("currentTime").Num(),
		PlaybackRate: v.Get("playbackRate").Num(),
	}
	switch {
	case v.Get("unknown").Bool():
		st.Duration = math.NaN()
	case !v.Get("finite").Bool():
		st.Duration = math.Inf(1)
	}
	return st, nil
}

func (m *media) SetMuted(muted bool) error {
	_, err := m.el.Eval(`(v) => { this.muted = v }`, muted)
	return err
}

func (m *media) Seek(seconds float64) error {
	_, err := m.el.Eval(`(t) => { this.currentTime = t }`, seconds)
	return err
}

func (m *media) SetPlaybackRate(rate float64) error {
	_, err := m.el.Eval(`(r) => { this.playbackRate = r }`, rate)
	return err
}

// Play starts playback without awaiting the returned promise; a rejection
// is absorbed in the page.
func (m *media) Play() error {
	_, err := m.el.Eval(`() => { const p = this.play(); if (p && p.catch) p.catch(() => {}) }`)
	return err
}
