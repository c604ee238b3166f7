// Package roddom implements dom.Document over a live browser tab driven by
// go-rod. Every read is a CDP round trip; nothing is cached across calls
// except the backend node ID that keys an element.
//
// Each element holds a remote object in the renderer until ReleaseExcept
// or Close frees it.
package roddom

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/stealthmode/dom"
	"github.com/ysmood/gson"
)

const bindingName = "__stealth_mutation"

// observerJS installs one MutationObserver per document and reports subtree
// changes through the CDP binding, at most once per microtask.
const observerJS = `() => {
	if (window.__stealthObserver) return;
	let pending = false;
	const fire = () => {
		pending = false;
		try { window.__stealth_mutation(JSON.stringify({ url: location.href })); } catch (e) {}
	};
	window.__stealthObserver = new MutationObserver(() => {
		if (pending) return;
		pending = true;
		queueMicrotask(fire);
	});
	window.__stealthObserver.observe(document, { subtree: true, childList: true });
}`

// Document is a dom.Document backed by a rod page.
type Document struct {
	page   *rod.Page
	logger *slog.Logger
	cancel context.CancelFunc
	unhook func() error

	mu   sync.Mutex
	subs map[int]chan struct{}
	next int

	hmu     sync.Mutex
	handles []*rod.Element
}

var (
	_ dom.Document    = (*Document)(nil)
	_ dom.Releaser    = (*Document)(nil)
	_ dom.TextQuerier = (*Document)(nil)
)

const (
	firstJS = `(s) => document.querySelector(s)`

	allMediaJS = `(s) => Array.from(document.querySelectorAll(s)).filter(e => e.tagName === "VIDEO" || e.tagName === "AUDIO")`

	firstMediaJS = `(s) => Array.from(document.querySelectorAll(s)).find(e => e.tagName === "VIDEO" || e.tagName === "AUDIO") || null`

	// textSnapshotJS reads text and layout of every match in one call.
	textSnapshotJS = `(s) => Array.from(document.querySelectorAll(s), e => [
		e.innerText || e.textContent || "",
		!!(e.offsetWidth || e.offsetHeight || e.getClientRects().length),
	])`

	pickJS = `(s, idx) => { const all = document.querySelectorAll(s); return idx.map(i => all[i]).filter(e => e) }`
)

// New attaches to page: it registers the mutation binding, installs the
// observer for the current and every future document, and starts relaying
// binding calls to subscribers until ctx is done or Close is called.
func New(ctx context.Context, page *rod.Page, logger *slog.Logger) (*Document, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	d := &Document{
		page:   page,
		logger: logger,
		cancel: cancel,
		subs:   make(map[int]chan struct{}),
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		cancel()
		return nil, fmt.Errorf("roddom: add binding: %w", err)
	}

	wait := page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		d.logger.Debug("roddom: subtree changed", "url", gson.NewFrom(e.Payload).Get("url").Str())
		d.notify()
	})
	go wait()

	if remove, err := page.EvalOnNewDocument("(" + observerJS + ")()"); err != nil {
		d.logger.Warn("roddom: observer not registered for new documents", "error", err)
	} else {
		d.unhook = remove
	}
	if _, err := page.Eval(observerJS); err != nil {
		cancel()
		return nil, fmt.Errorf("roddom: inject observer: %w", err)
	}

	return d, nil
}

// Close stops relaying mutation notifications, stops installing the
// observer into new documents and frees every element handle. The page
// itself is left open.
func (d *Document) Close() {
	d.cancel()
	if d.unhook != nil {
		_ = d.unhook()
	}
	d.ReleaseExcept()
}

// ReleaseExcept frees the remote objects of every element handed out
// since the last call, except keep.
func (d *Document) ReleaseExcept(keep ...dom.Element) {
	pinned := make(map[*rod.Element]bool, len(keep))
	for _, k := range keep {
		if el := unwrap(k); el != nil {
			pinned[el] = true
		}
	}

	d.hmu.Lock()
	var release []*rod.Element
	kept := d.handles[:0]
	for _, el := range d.handles {
		if pinned[el] {
			kept = append(kept, el)
		} else {
			release = append(release, el)
		}
	}
	clear(d.handles[len(kept):])
	d.handles = kept
	d.hmu.Unlock()

	for _, el := range release {
		if err := el.Release(); err != nil {
			d.logger.Debug("roddom: release failed", "error", err)
		}
	}
}

// Handles is the number of element handles currently held.
func (d *Document) Handles() int {
	d.hmu.Lock()
	defer d.hmu.Unlock()
	return len(d.handles)
}

func (d *Document) wrap(el *rod.Element) *element {
	d.hmu.Lock()
	d.handles = append(d.handles, el)
	d.hmu.Unlock()
	return &element{doc: d, el: el}
}

func (d *Document) wrapAll(els rod.Elements) []*element {
	out := make([]*element, 0, len(els))
	for _, el := range els {
		out = append(out, d.wrap(el))
	}
	return out
}

// single evaluates opts to at most one element; a null result is nil.
func (d *Document) single(opts *rod.EvalOptions, eval func(*rod.EvalOptions) (*proto.RuntimeRemoteObject, error)) *element {
	obj, err := eval(opts.ByObject())
	if err != nil || obj.ObjectID == "" {
		return nil
	}
	if obj.Subtype != proto.RuntimeRemoteObjectSubtypeNode {
		_ = d.page.Release(obj)
		return nil
	}
	el, err := d.page.ElementFromObject(obj)
	if err != nil {
		_ = d.page.Release(obj)
		return nil
	}
	return d.wrap(el)
}

func (d *Document) Location() string {
	res, err := d.page.Eval(`() => location.href`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (d *Document) Query(selector string) dom.Element {
	if e := d.single(rod.Eval(firstJS, selector), d.page.Evaluate); e != nil {
		return e
	}
	return nil
}

func (d *Document) QueryAll(selector string) []dom.Element {
	els, err := d.page.Elements(selector)
	if err != nil {
		return nil
	}
	wrapped := d.wrapAll(els)
	out := make([]dom.Element, len(wrapped))
	for i, e := range wrapped {
		out[i] = e
	}
	return out
}

func (d *Document) QueryMedia(selector string) dom.Media {
	if e := d.single(rod.Eval(firstMediaJS, selector), d.page.Evaluate); e != nil {
		return &media{e}
	}
	return nil
}

func (d *Document) QueryAllMedia(selector string) []dom.Media {
	els, err := d.page.ElementsByJS(rod.Eval(allMediaJS, selector))
	if err != nil {
		return nil
	}
	wrapped := d.wrapAll(els)
	out := make([]dom.Media, len(wrapped))
	for i, e := range wrapped {
		out[i] = &media{e}
	}
	return out
}

// QueryVisibleByText reads the text and visibility of every candidate in
// one evaluation and only creates handles for the matches.
func (d *Document) QueryVisibleByText(selector string, match func(string) bool) []dom.Element {
	res, err := d.page.Eval(textSnapshotJS, selector)
	if err != nil {
		return nil
	}
	var idx []int
	for i, row := range res.Value.Arr() {
		cols := row.Arr()
		if len(cols) == 2 && cols[1].Bool() && match(cols[0].Str()) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil
	}

	els, err := d.page.ElementsByJS(rod.Eval(pickJS, selector, idx))
	if err != nil {
		return nil
	}
	wrapped := d.wrapAll(els)
	out := make([]dom.Element, len(wrapped))
	for i, e := range wrapped {
		out[i] = e
	}
	return out
}

func (d *Document) Subscribe() (<-chan struct{}, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.next
	d.next++
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

func (d *Document) notify() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
