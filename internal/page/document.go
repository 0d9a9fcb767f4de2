// Package page holds an HTML review page in memory and lets callers watch it
// for structural changes.
package page

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrClosed is returned by Update after Close.
var ErrClosed = errors.New("page: document closed")

// MutationRecord describes one structural change under Target.
type MutationRecord struct {
	Target  *html.Node
	Added   []*html.Node
	Removed []*html.Node
}

// Document is a goquery document guarded by a lock. All reads go through
// View and all writes through Update.
type Document struct {
	mu        sync.Mutex
	doc       *goquery.Document
	observers map[int]*observer
	nextID    int
	closed    bool
}

// Parse reads an HTML page.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("page: parse: %w", err)
	}
	return &Document{doc: doc, observers: make(map[int]*observer)}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// View runs fn with the document root selection. fn must not retain the
// selection or call back into the Document.
func (d *Document) View(fn func(root *goquery.Selection)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.doc.Selection)
}

// Update runs fn with a Mutator and delivers the recorded changes to every
// observer as one batch.
func (d *Document) Update(fn func(m *Mutator)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	m := &Mutator{root: d.doc.Selection}
	fn(m)

	if len(m.records) > 0 {
		for _, o := range d.observers {
			o.push(m.records)
		}
	}
	return m.err
}

// Observe subscribes fn to mutation batches. Batches arrive in order on a
// goroutine owned by the subscription, so fn may call View or Update.
func (d *Document) Observe(fn func([]MutationRecord)) (cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	o := newObserver(fn)
	if d.closed {
		o.stop()
		return func() {}
	}
	d.observers[id] = o

	return func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
		o.stop()
	}
}

// HTML serializes the whole document.
func (d *Document) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Html()
}

// Close stops every observer. Later Updates fail with ErrClosed.
func (d *Document) Close() {
	d.mu.Lock()
	observers := d.observers
	d.observers = make(map[int]*observer)
	d.closed = true
	d.mu.Unlock()

	for _, o := range observers {
		o.stop()
	}
}

// Mutator applies structural changes and records them. Errors are sticky:
// after the first failure later calls are no-ops and Update returns it.
type Mutator struct {
	root    *goquery.Selection
	records []MutationRecord
	err     error
}

// Root is the document selection, for queries and attribute edits.
func (m *Mutator) Root() *goquery.Selection {
	return m.root
}

// Find is shorthand for Root().Find(selector).
func (m *Mutator) Find(selector string) *goquery.Selection {
	return m.root.Find(selector)
}

// AppendHTML parses markup in the context of parent and appends the result.
func (m *Mutator) AppendHTML(parent *html.Node, markup string) []*html.Node {
	if m.err != nil || parent == nil {
		return nil
	}
	nodes, err := parseFragment(parent, markup)
	if err != nil {
		m.err = err
		return nil
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	m.record(parent, nodes, nil)
	return nodes
}

// InsertHTMLAfter parses markup and inserts it as following siblings of ref.
func (m *Mutator) InsertHTMLAfter(ref *html.Node, markup string) []*html.Node {
	if m.err != nil || ref == nil || ref.Parent == nil {
		return nil
	}
	parent := ref.Parent
	nodes, err := parseFragment(parent, markup)
	if err != nil {
		m.err = err
		return nil
	}
	next := ref.NextSibling
	for _, n := range nodes {
		parent.InsertBefore(n, next)
	}
	m.record(parent, nodes, nil)
	return nodes
}

// AppendText appends a new text node; existing children are untouched.
func (m *Mutator) AppendText(parent *html.Node, text string) *html.Node {
	if m.err != nil || parent == nil {
		return nil
	}
	n := &html.Node{Type: html.TextNode, Data: text}
	parent.AppendChild(n)
	m.record(parent, []*html.Node{n}, nil)
	return n
}

// SetInnerHTML replaces every child of parent with the parsed markup.
func (m *Mutator) SetInnerHTML(parent *html.Node, markup string) {
	if m.err != nil || parent == nil {
		return
	}
	nodes, err := parseFragment(parent, markup)
	if err != nil {
		m.err = err
		return
	}
	var removed []*html.Node
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	m.record(parent, nodes, removed)
}

// Remove detaches n from its parent.
func (m *Mutator) Remove(n *html.Node) {
	if m.err != nil || n == nil || n.Parent == nil {
		return
	}
	parent := n.Parent
	parent.RemoveChild(n)
	m.record(parent, nil, []*html.Node{n})
}

func (m *Mutator) record(target *html.Node, added, removed []*html.Node) {
	if len(added) == 0 && len(removed) == 0 {
		return
	}
	m.records = append(m.records, MutationRecord{Target: target, Added: added, Removed: removed})
}

// InnerHTML renders the children of n.
func InnerHTML(n *html.Node) (string, error) {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return "", fmt.Errorf("page: render: %w", err)
		}
	}
	return b.String(), nil
}

func parseFragment(parent *html.Node, markup string) ([]*html.Node, error) {
	ctxNode := parent
	if ctxNode.Type != html.ElementNode {
		ctxNode = &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctxNode)
	if err != nil {
		return nil, fmt.Errorf("page: parse fragment: %w", err)
	}
	return nodes, nil
}
