package htmldom

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/stealthmode/dom"
	"golang.org/x/net/html"
)

// ErrDetached is returned by actions on an element no longer in the tree.
var ErrDetached = errors.New("htmldom: element detached")

type element struct {
	d *Document
	n *html.Node
}

var _ dom.Element = (*element)(nil)

func (e *element) node() *html.Node { return e.n }

func (e *element) Key() string { return fmt.Sprintf("%p", e.n) }

func (e *element) Tag() string { return e.n.Data }

func (e *element) ID() string { return e.Attr("id") }

func (e *element) Attr(name string) string {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return attr(e.n, name)
}

func (e *element) ClassName() string { return e.Attr("class") }

func (e *element) HasClass(name string) bool {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return hasClass(e.n, name)
}

func (e *element) ChildCount() int {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	count := 0
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			count++
		}
	}
	return count
}

func (e *element) Text() string {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if hiddenNode(n) {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func (e *element) Visible() bool {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return e.visibleLocked()
}

func (e *element) visibleLocked() bool {
	if !e.d.attachedLocked(e.n) {
		return false
	}
	for p := e.n; p != nil; p = p.Parent {
		if hiddenNode(p) {
			return false
		}
	}
	return true
}

func (e *element) Query(selector string) dom.Element {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	nodes := e.d.findLocked(e.selection(), selector)
	if len(nodes) == 0 {
		return nil
	}
	return &element{d: e.d, n: nodes[0]}
}

func (e *element) Closest(selector string) dom.Element {
	if selector == "" {
		return nil
	}
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	found := e.selection().ClosestMatcher(e.d.matcherLocked(selector))
	if found.Length() == 0 {
		return nil
	}
	return &element{d: e.d, n: found.Nodes[0]}
}

func (e *element) Click() error {
	e.d.mu.Lock()
	if !e.d.attachedLocked(e.n) {
		e.d.mu.Unlock()
		return ErrDetached
	}
	e.d.clicks[e.n]++
	hook := e.d.OnClick
	e.d.mu.Unlock()

	if hook != nil {
		hook(e)
	}
	return nil
}

func (e *element) Remove() error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if e.n.Parent == nil {
		return nil
	}
	e.n.Parent.RemoveChild(e.n)
	e.d.notifyLocked()
	return nil
}

func (e *element) Hide() error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if hiddenNode(e.n) {
		return nil
	}
	style := strings.TrimSpace(attr(e.n, "style"))
	if style != "" && !strings.HasSuffix(style, ";") {
		style += ";"
	}
	setAttr(e.n, "style", style+"display: none;")
	e.d.notifyLocked()
	return nil
}

func (e *element) selection() *goquery.Selection {
	return goquery.NewDocumentFromNode(e.n).Selection
}
