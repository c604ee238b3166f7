// Package htmldom implements dom.Document over an in-memory HTML tree.
//
// It backs offline zapping of fetched pages and every engine test. Media
// elements keep their playback state in memory, seeded from attributes:
//
//	muted                 starts muted
//	autoplay              starts playing (otherwise paused)
//	data-duration         seconds; "Infinity" for live streams; absent = NaN
//	data-current-time     seconds
//	data-playback-rate    default 1
//	data-play-error       Play returns an error
package htmldom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/stealthmode/dom"
	"golang.org/x/net/html"
)

// Document is an in-memory dom.Document. It is safe for concurrent use.
type Document struct {
	mu       sync.Mutex
	doc      *goquery.Document
	location string

	media  map[*html.Node]*mediaState
	clicks map[*html.Node]int

	subs    map[int]chan struct{}
	nextSub int

	matchers map[string]goquery.Matcher

	// OnClick, if set, runs after every successful Click.
	OnClick func(e dom.Element)
}

var _ dom.Document = (*Document)(nil)

// Parse builds a Document from HTML read from r.
func Parse(r io.Reader, location string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	return &Document{
		doc:      doc,
		location: location,
		media:    make(map[*html.Node]*mediaState),
		clicks:   make(map[*html.Node]int),
		subs:     make(map[int]chan struct{}),
		matchers: make(map[string]goquery.Matcher),
	}, nil
}

// MustParse is Parse for literals in tests and examples.
func MustParse(src, location string) *Document {
	d, err := Parse(strings.NewReader(src), location)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Document) Location() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location
}

// SetLocation changes the URL without reloading, like a history.pushState
// route change, and notifies subscribers.
func (d *Document) SetLocation(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.location = url
	d.notifyLocked()
}

func (d *Document) Query(selector string) dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes := d.findLocked(d.doc.Selection, selector)
	if len(nodes) == 0 {
		return nil
	}
	return &element{d: d, n: nodes[0]}
}

func (d *Document) QueryAll(selector string) []dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes := d.findLocked(d.doc.Selection, selector)
	out := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{d: d, n: n})
	}
	return out
}

func (d *Document) QueryMedia(selector string) dom.Media {
	all := d.QueryAllMedia(selector)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

func (d *Document) QueryAllMedia(selector string) []dom.Media {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dom.Media
	for _, n := range d.findLocked(d.doc.Selection, selector) {
		if n.Data == "video" || n.Data == "audio" {
			out = append(out, &media{element{d: d, n: n}})
		}
	}
	return out
}

func (d *Document) Subscribe() (<-chan struct{}, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextSub
	d.nextSub++
	ch := make(chan struct{}, 1)
	d.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
		})
	}
}

// HTML renders the current tree.
func (d *Document) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Html()
}

// AppendHTML parses fragment in the context of the first element matching
// selector and appends the result to it, as a page script inserting nodes
// would.
func (d *Document) AppendHTML(selector, fragment string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	targets := d.findLocked(d.doc.Selection, selector)
	if len(targets) == 0 {
		return fmt.Errorf("htmldom: no element matches %q", selector)
	}
	parent := targets[0]
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return fmt.Errorf("htmldom: parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	d.notifyLocked()
	return nil
}

// AddClass adds a class to e, the way a player toggles its state markers.
func (d *Document) AddClass(e dom.Element, class string) {
	el, ok := e.(interface{ node() *html.Node })
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := el.node()
	if hasClass(n, class) {
		return
	}
	setAttr(n, "class", strings.TrimSpace(attr(n, "class")+" "+class))
	d.notifyLocked()
}

// RemoveClass removes a class from e.
func (d *Document) RemoveClass(e dom.Element, class string) {
	el, ok := e.(interface{ node() *html.Node })
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := el.node()
	if !hasClass(n, class) {
		return
	}
	var kept []string
	for _, c := range strings.Fields(attr(n, "class")) {
		if c != class {
			kept = append(kept, c)
		}
	}
	setAttr(n, "class", strings.Join(kept, " "))
	d.notifyLocked()
}

// Clicks reports how many times e has been clicked.
func (d *Document) Clicks(e dom.Element) int {
	el, ok := e.(interface{ node() *html.Node })
	if !ok {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clicks[el.node()]
}

func (d *Document) matcherLocked(selector string) goquery.Matcher {
	if m, ok := d.matchers[selector]; ok {
		return m
	}
	var m goquery.Matcher
	sel, err := cascadia.Compile(selector)
	if err != nil {
		m = nothing{}
	} else {
		m = sel
	}
	d.matchers[selector] = m
	return m
}

func (d *Document) findLocked(from *goquery.Selection, selector string) []*html.Node {
	if selector == "" {
		return nil
	}
	return from.FindMatcher(d.matcherLocked(selector)).Nodes
}

func (d *Document) notifyLocked() {
	for _, ch := range d.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (d *Document) attachedLocked(n *html.Node) bool {
	root := d.doc.Nodes[0]
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// nothing matches no node; it stands in for selectors that fail to parse.
type nothing struct{}

func (nothing) Match(*html.Node) bool             { return false }
func (nothing) MatchAll(*html.Node) []*html.Node { return nil }
func (nothing) Filter([]*html.Node) []*html.Node { return nil }

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, name, val string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// hiddenNode reports whether n alone (ignoring ancestors) renders no box.
func hiddenNode(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "head", "script", "style", "template", "noscript", "title", "meta", "link":
		return true
	}
	if hasAttr(n, "hidden") {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(attr(n, "style")), " ", "")
	return strings.Contains(style, "display:none")
}
