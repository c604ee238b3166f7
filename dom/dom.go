// Package dom is the narrow view of a web page that the engine works through.
//
// Two implementations exist: roddom drives a live browser tab over the Chrome
// DevTools Protocol, htmldom wraps an in-memory HTML tree. Neither promises
// that an Element stays attached between calls; callers re-query every pass.
package dom

// Document is a page whose structure may change at any time.
type Document interface {
	// Location returns the current navigable URL of the page.
	Location() string

	// Query returns the first element matching the CSS selector, or nil.
	Query(selector string) Element

	// QueryAll returns every element matching the CSS selector.
	QueryAll(selector string) []Element

	// QueryMedia returns the first media element matching the selector, or nil.
	QueryMedia(selector string) Media

	// QueryAllMedia returns every media element matching the selector.
	QueryAllMedia(selector string) []Media

	// Subscribe registers for subtree-changed notifications. The channel
	// coalesces: a pending notification is not duplicated. The returned
	// function unsubscribes and must be called once.
	Subscribe() (<-chan struct{}, func())
}

// Element is a reference to one DOM element. Methods that read state
// return zero values when the element has gone away.
type Element interface {
	// Key identifies the underlying node, stable for the node's lifetime.
	Key() string
	Tag() string
	ID() string
	Attr(name string) string
	ClassName() string
	HasClass(name string) bool

	// ChildCount is the number of element children.
	ChildCount() int

	// Text is the rendered text of the element and its visible descendants.
	Text() string

	// Visible reports whether the element has a non-zero box or at least
	// one client rect.
	Visible() bool

	Query(selector string) Element
	Closest(selector string) Element

	Click() error
	Remove() error
	Hide() error
}

// MediaState is a point-in-time read of an HTMLMediaElement.
type MediaState struct {
	Muted        bool
	Paused       bool
	Duration     float64 // +Inf or NaN when not finite
	CurrentTime  float64
	PlaybackRate float64
}

// Media is a video or audio element.
type Media interface {
	Element

	State() (MediaState, error)
	SetMuted(muted bool) error
	Seek(seconds float64) error
	SetPlaybackRate(rate float64) error

	// Play requests playback. Failures are expected (autoplay policy,
	// detached node) and callers usually ignore them.
	Play() error
}

// Releaser is implemented by documents whose elements pin resources on the
// page side. ReleaseExcept frees every element handed out so far except
// keep; kept elements stay valid and are freed by a later call that omits
// them.
type Releaser interface {
	ReleaseExcept(keep ...Element)
}

// TextQuerier is implemented by documents that can filter by rendered text
// and visibility without handing out an element per candidate.
type TextQuerier interface {
	// QueryVisibleByText returns the visible elements matching selector
	// whose text satisfies match, in document order.
	QueryVisibleByText(selector string, match func(text string) bool) []Element
}
