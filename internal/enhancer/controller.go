// Package enhancer fits review comments with enhancement controls and streams
// rewritten text from the engine back into the page.
package enhancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/watsumi/gentle-review/internal/adapter"
	"github.com/watsumi/gentle-review/internal/page"
	"github.com/watsumi/gentle-review/internal/review"
	"github.com/watsumi/gentle-review/internal/scanner"
)

// Class and id names written into the page.
const (
	ClassTrigger  = "gentle-review-enhance"
	ClassToggle   = "gentle-review-toggle"
	ClassOutput   = "gentle-review-enhanced"
	ClassText     = "gentle-review-text"
	ClassLoading  = "gentle-review-loading"
	ClassToast    = "gentle-review-toast"
	InitMessageID = "gentle-review-init-message"

	labelTrigger      = "Enhance Comment"
	labelShowOriginal = "Show Original"
	labelShowEnhanced = "Show Enhanced"
	initText          = "Initializing Gentle Review..."
	emptyCommentText  = "Comment is empty"
)

var (
	ErrNotReady       = errors.New("enhancer: engine not ready")
	ErrBusy           = errors.New("enhancer: enhancement already in progress")
	ErrUnknownComment = errors.New("enhancer: unknown comment")
	ErrEmptyComment   = errors.New("enhancer: comment is empty")
	ErrNotEnhanced    = errors.New("enhancer: comment has no enhanced text")
)

// Engine is the explicit handle to the LLM client.
type Engine interface {
	Ready() bool
	SetReadyCallback(fn func(ready bool))
	Enhance(ctx context.Context, comment review.ReviewComment) (*adapter.Stream, error)
}

// Initializer is implemented by engines the controller brings up in Start.
type Initializer interface {
	Initialize(ctx context.Context, progress func(float64)) error
}

// ToastKind distinguishes informational notices from failures.
type ToastKind string

const (
	ToastInfo  ToastKind = "info"
	ToastError ToastKind = "error"
)

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier receives a copy of every toast shown in the page.
func WithNotifier(fn func(kind ToastKind, message string)) Option {
	return func(c *Controller) { c.notify = fn }
}

// WithEnabled gates Scan on the stored settings.
func WithEnabled(fn func(ctx context.Context) (bool, error)) Option {
	return func(c *Controller) { c.enabled = fn }
}

// WithRender is called after every chunk with the text accumulated so far.
func WithRender(fn func(id, text string)) Option {
	return func(c *Controller) { c.render = fn }
}

func WithToastTTL(d time.Duration) Option {
	return func(c *Controller) { c.toastTTL = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller owns the interactive loop of every comment in one document.
type Controller struct {
	doc      *page.Document
	engine   Engine
	logger   *slog.Logger
	notify   func(ToastKind, string)
	enabled  func(context.Context) (bool, error)
	render   func(id, text string)
	toastTTL time.Duration

	mu        sync.Mutex
	ready     bool
	seq       int
	snapshots map[string]string
	inFlight  map[string]bool
	unobserve func()
}

// New builds a controller and registers it as the engine's ready subscriber.
func New(doc *page.Document, engine Engine, opts ...Option) *Controller {
	c := &Controller{
		doc:       doc,
		engine:    engine,
		logger:    slog.Default(),
		toastTTL:  3 * time.Second,
		ready:     engine.Ready(),
		snapshots: make(map[string]string),
		inFlight:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	engine.SetReadyCallback(c.setReady)
	return c
}

// Start initializes the engine while showing progress, then scans the page
// and keeps scanning whenever comments are added. An initialization error is
// shown once and returned; the controls stay disabled.
func (c *Controller) Start(ctx context.Context) error {
	var initErr error
	if init, ok := c.engine.(Initializer); ok && !c.engine.Ready() {
		c.showInitMessage()
		initErr = init.Initialize(ctx, c.updateInitMessage)
		c.hideInitMessage()
		if initErr != nil {
			c.toast(ToastError, "Failed to initialize Gentle Review: "+initErr.Error())
		}
	}

	c.Watch(ctx)
	return initErr
}

// Watch scans the page once and then rescans whenever a mutation adds a
// comment. ctx must outlive the controller.
func (c *Controller) Watch(ctx context.Context) {
	if _, err := c.Scan(ctx); err != nil {
		c.logger.Error("initial scan failed", "error", err)
	}

	c.mu.Lock()
	watching := c.unobserve != nil
	c.mu.Unlock()
	if watching {
		return
	}

	// Observe takes the document lock, so it must run without c.mu held.
	stop := c.doc.Observe(func(records []page.MutationRecord) {
		c.handleMutations(ctx, records)
	})
	c.mu.Lock()
	if c.unobserve != nil {
		c.mu.Unlock()
		stop()
		return
	}
	c.unobserve = stop
	c.mu.Unlock()
}

// Close stops observing the document.
func (c *Controller) Close() {
	c.mu.Lock()
	stop := c.unobserve
	c.unobserve = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (c *Controller) handleMutations(ctx context.Context, records []page.MutationRecord) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("mutation handler panicked", "panic", r)
		}
	}()

	added := false
	c.doc.View(func(*goquery.Selection) {
		for _, rec := range records {
			for _, n := range rec.Added {
				if containsComment(n) {
					added = true
					return
				}
			}
		}
	})
	if !added {
		return
	}
	if _, err := c.Scan(ctx); err != nil {
		c.logger.Error("rescan failed", "error", err)
	}
}

// Scan fits every unprocessed comment with controls and returns how many
// were fitted. Running it again without new comments changes nothing.
func (c *Controller) Scan(ctx context.Context) (int, error) {
	if c.enabled != nil {
		on, err := c.enabled(ctx)
		if err != nil {
			return 0, fmt.Errorf("enhancer: read settings: %w", err)
		}
		if !on {
			return 0, nil
		}
	}

	fitted := 0
	err := c.doc.Update(func(m *page.Mutator) {
		ready := c.isReady()
		for _, el := range scanner.Find(m.Root()) {
			body := el.Find(scanner.BodySelector).First()
			if body.Length() == 0 {
				continue
			}
			snapshot, err := page.InnerHTML(body.Get(0))
			if err != nil {
				c.logger.Error("snapshot comment", "error", err)
				continue
			}

			id := c.nextID()
			el.SetAttr(scanner.MarkerAttr, id)
			c.mu.Lock()
			c.snapshots[id] = snapshot
			c.mu.Unlock()

			m.InsertHTMLAfter(body.Get(0), outputMarkup)
			if actions := el.Find(scanner.ActionsSelector).First(); actions.Length() > 0 {
				m.AppendHTML(actions.Get(0), controlsMarkup(ready))
			} else {
				m.InsertHTMLAfter(body.Get(0), controlsMarkup(ready))
			}
			fitted++
		}
	})
	if err != nil {
		return fitted, fmt.Errorf("enhancer: scan: %w", err)
	}
	if fitted > 0 {
		c.logger.Debug("comments fitted", "count", fitted)
	}
	return fitted, nil
}

const outputMarkup = `<div class="` + ClassOutput + `" hidden=""><p class="` + ClassText + `"></p></div>`

func controlsMarkup(ready bool) string {
	disabled := ""
	if !ready {
		disabled = ` disabled=""`
	}
	return `<button type="button" class="` + ClassTrigger + `"` + disabled + `>` + labelTrigger + `</button>` +
		`<button type="button" class="` + ClassToggle + `" hidden="">` + labelShowOriginal + `</button>`
}

func (c *Controller) nextID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return "gr-" + strconv.Itoa(c.seq)
}

func (c *Controller) isReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// setReady enables or disables every trigger. Repeated notifications with the
// same value are ignored.
func (c *Controller) setReady(ready bool) {
	c.mu.Lock()
	if c.ready == ready {
		c.mu.Unlock()
		return
	}
	c.ready = ready
	c.mu.Unlock()

	err := c.doc.Update(func(m *page.Mutator) {
		m.Find("." + ClassTrigger).Each(func(_ int, btn *goquery.Selection) {
			id, _ := btn.Closest(scanner.CommentSelector).Attr(scanner.MarkerAttr)
			if ready && !c.busy(id) {
				btn.RemoveAttr("disabled")
			} else {
				btn.SetAttr("disabled", "")
			}
		})
	})
	if err != nil && !errors.Is(err, page.ErrClosed) {
		c.logger.Error("toggle controls", "ready", ready, "error", err)
	}
}

func (c *Controller) busy(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[id]
}

// Trigger enhances the comment with the given marker id and returns the full
// rewritten text.
func (c *Controller) Trigger(ctx context.Context, id string) (string, error) {
	return c.TriggerStream(ctx, id, nil)
}

// TriggerStream is Trigger with a per-call callback receiving each delta
// after it was rendered into the page.
func (c *Controller) TriggerStream(ctx context.Context, id string, onDelta func(delta string)) (string, error) {
	c.mu.Lock()
	switch {
	case !c.ready:
		c.mu.Unlock()
		return "", ErrNotReady
	case c.inFlight[id]:
		c.mu.Unlock()
		return "", ErrBusy
	}
	c.inFlight[id] = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, id)
		c.mu.Unlock()
	}()

	var (
		comment review.ReviewComment
		found   bool
		hasBody bool
	)
	c.update(func(m *page.Mutator) {
		el := scanner.ByMarker(m.Root(), id)
		if el.Length() == 0 {
			return
		}
		found = true
		el.Find("."+ClassTrigger).SetAttr("disabled", "")
		comment, hasBody = scanner.Extract(el)
	})
	if !found {
		return "", fmt.Errorf("%w: %s", ErrUnknownComment, id)
	}
	if !hasBody || comment.Content == "" {
		c.update(func(m *page.Mutator) { c.enableTrigger(m, id) })
		c.toast(ToastInfo, emptyCommentText)
		return "", ErrEmptyComment
	}

	c.update(func(m *page.Mutator) {
		el := scanner.ByMarker(m.Root(), id)
		body := el.Find(scanner.BodySelector).First()
		out := el.Find("." + ClassOutput).First()
		m.SetInnerHTML(node(out.Find("."+ClassText)), "")
		out.RemoveAttr("data-severity")
		el.Find("."+ClassToggle).SetAttr("hidden", "")
		m.InsertHTMLAfter(node(body), `<div class="`+ClassLoading+`" role="status">Enhancing comment...</div>`)
	})

	text, err := c.stream(ctx, id, comment, onDelta)
	if err != nil {
		c.logger.Warn("enhancement failed", "comment", id, "error", err)
		c.update(func(m *page.Mutator) {
			el := scanner.ByMarker(m.Root(), id)
			removeLoading(m, el)
			if text == "" {
				el.Find(scanner.BodySelector).First().RemoveAttr("hidden")
				el.Find("."+ClassOutput).First().SetAttr("hidden", "")
			} else {
				showToggle(el, labelShowOriginal)
			}
			c.enableTrigger(m, id)
		})
		c.toast(ToastError, "Failed to enhance comment: "+err.Error())
		return text, err
	}

	severity := review.ParseEnhanced(comment, text).Severity
	c.update(func(m *page.Mutator) {
		el := scanner.ByMarker(m.Root(), id)
		removeLoading(m, el)
		if severity != "" {
			el.Find("."+ClassOutput).First().SetAttr("data-severity", string(severity))
		}
		showToggle(el, labelShowOriginal)
		c.enableTrigger(m, id)
	})
	return text, nil
}

// stream consumes the engine output in order, appending each delta as a new
// text node so that earlier output is never rewritten.
func (c *Controller) stream(ctx context.Context, id string, comment review.ReviewComment, onDelta func(string)) (string, error) {
	s, err := c.engine.Enhance(ctx, comment)
	if err != nil {
		return "", err
	}
	defer s.Close()

	var acc strings.Builder
	first := true
	for chunk := range s.Chunks() {
		acc.WriteString(chunk.Delta)
		c.update(func(m *page.Mutator) {
			el := scanner.ByMarker(m.Root(), id)
			if first {
				removeLoading(m, el)
				el.Find(scanner.BodySelector).First().SetAttr("hidden", "")
				el.Find("." + ClassOutput).First().RemoveAttr("hidden")
				first = false
			}
			m.AppendText(node(el.Find("."+ClassText)), chunk.Delta)
		})
		if c.render != nil {
			c.render(id, acc.String())
		}
		if onDelta != nil {
			onDelta(chunk.Delta)
		}
	}
	return acc.String(), s.Err()
}

func (c *Controller) enableTrigger(m *page.Mutator, id string) {
	if !c.isReady() {
		return
	}
	scanner.ByMarker(m.Root(), id).Find("." + ClassTrigger).RemoveAttr("disabled")
}

func removeLoading(m *page.Mutator, el *goquery.Selection) {
	el.Find("." + ClassLoading).Each(func(_ int, s *goquery.Selection) {
		m.Remove(s.Get(0))
	})
}

func showToggle(el *goquery.Selection, label string) {
	el.Find("." + ClassToggle).RemoveAttr("hidden").SetText(label)
}

// ShowOriginal puts the original comment markup back and hides the output.
func (c *Controller) ShowOriginal(id string) error {
	return c.show(id, true)
}

// ShowEnhanced hides the original comment and reveals the output.
func (c *Controller) ShowEnhanced(id string) error {
	return c.show(id, false)
}

// Toggle flips between the original and the enhanced view and reports
// whether the original is now shown.
func (c *Controller) Toggle(id string) (bool, error) {
	original := false
	var found bool
	c.doc.View(func(root *goquery.Selection) {
		el := scanner.ByMarker(root, id)
		if el.Length() == 0 {
			return
		}
		found = true
		_, hidden := el.Find(scanner.BodySelector).First().Attr("hidden")
		original = hidden
	})
	if !found {
		return false, fmt.Errorf("%w: %s", ErrUnknownComment, id)
	}
	if err := c.show(id, original); err != nil {
		return false, err
	}
	return original, nil
}

func (c *Controller) show(id string, original bool) error {
	c.mu.Lock()
	snapshot, ok := c.snapshots[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComment, id)
	}

	var found, enhanced bool
	err := c.doc.Update(func(m *page.Mutator) {
		el := scanner.ByMarker(m.Root(), id)
		if el.Length() == 0 {
			return
		}
		found = true
		body := el.Find(scanner.BodySelector).First()
		out := el.Find("." + ClassOutput).First()
		_, toggleHidden := el.Find("." + ClassToggle).First().Attr("hidden")
		if toggleHidden || out.Find("."+ClassText).Text() == "" {
			return
		}
		enhanced = true
		if original {
			m.SetInnerHTML(node(body), snapshot)
			body.RemoveAttr("hidden")
			out.SetAttr("hidden", "")
			showToggle(el, labelShowEnhanced)
			return
		}
		body.SetAttr("hidden", "")
		out.RemoveAttr("hidden")
		showToggle(el, labelShowOriginal)
	})
	if err != nil {
		return fmt.Errorf("enhancer: show: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownComment, id)
	}
	if !enhanced {
		return fmt.Errorf("%w: %s", ErrNotEnhanced, id)
	}
	return nil
}

// update applies fn and logs failures; a closed document ends quietly.
func (c *Controller) update(fn func(m *page.Mutator)) {
	if err := c.doc.Update(fn); err != nil && !errors.Is(err, page.ErrClosed) {
		c.logger.Error("page update failed", "error", err)
	}
}

func (c *Controller) showInitMessage() {
	c.update(func(m *page.Mutator) {
		if m.Find("#"+InitMessageID).Length() > 0 {
			return
		}
		m.AppendHTML(node(m.Find("body")), `<div id="`+InitMessageID+`" role="status">`+initText+`</div>`)
	})
}

func (c *Controller) updateInitMessage(progress float64) {
	text := fmt.Sprintf("%s %d%%", initText, int(math.Round(progress*100)))
	c.update(func(m *page.Mutator) {
		m.SetInnerHTML(node(m.Find("#"+InitMessageID)), html.EscapeString(text))
	})
}

func (c *Controller) hideInitMessage() {
	c.update(func(m *page.Mutator) {
		m.Remove(node(m.Find("#" + InitMessageID)))
	})
}

// toast shows a transient notice that removes itself after the TTL.
func (c *Controller) toast(kind ToastKind, message string) {
	if c.notify != nil {
		c.notify(kind, message)
	}

	var nodes []*html.Node
	c.update(func(m *page.Mutator) {
		nodes = m.AppendHTML(node(m.Find("body")),
			`<div class="`+ClassToast+` `+ClassToast+`-`+string(kind)+`" role="alert">`+html.EscapeString(message)+`</div>`)
	})
	if len(nodes) == 0 {
		return
	}

	time.AfterFunc(c.toastTTL, func() {
		c.update(func(m *page.Mutator) {
			for _, n := range nodes {
				m.Remove(n)
			}
		})
	})
}

// node is the first node of s, or nil when s is empty.
func node(s *goquery.Selection) *html.Node {
	if s.Length() == 0 {
		return nil
	}
	return s.Get(0)
}

func containsComment(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	s := goquery.NewDocumentFromNode(n).Selection
	return s.Is(scanner.CommentSelector) || s.Find(scanner.CommentSelector).Length() > 0
}

// CommentInfo summarizes one fitted comment.
type CommentInfo struct {
	ID              string `json:"id"`
	CommentID       string `json:"comment_id,omitempty"`
	Content         string `json:"content"`
	Enhanced        string `json:"enhanced,omitempty"`
	Severity        string `json:"severity,omitempty"`
	Busy            bool   `json:"busy"`
	ShowingOriginal bool   `json:"showing_original"`
}

// Comments lists the fitted comments in document order.
func (c *Controller) Comments() []CommentInfo {
	var infos []CommentInfo
	c.doc.View(func(root *goquery.Selection) {
		root.Find(scanner.CommentSelector + "[" + scanner.MarkerAttr + "]").Each(func(_ int, el *goquery.Selection) {
			id, _ := el.Attr(scanner.MarkerAttr)
			info := CommentInfo{ID: id, Busy: c.busy(id)}
			info.CommentID, _ = el.Attr(scanner.IDAttr)
			if rc, ok := scanner.Extract(el); ok {
				info.Content = rc.Content
			}
			output := el.Find("." + ClassOutput).First()
			info.Enhanced = output.Find("." + ClassText).Text()
			info.Severity, _ = output.Attr("data-severity")
			_, hidden := el.Find(scanner.BodySelector).First().Attr("hidden")
			info.ShowingOriginal = !hidden
			infos = append(infos, info)
		})
	})
	return infos
}
