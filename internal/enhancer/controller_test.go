package enhancer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watsumi/gentle-review/internal/adapter"
	"github.com/watsumi/gentle-review/internal/page"
	"github.com/watsumi/gentle-review/internal/review"
)

const reviewPage = `<html><head></head><body>
<div class="review-comment" data-comment-id="a"><div class="comment-body"><p>bad <b>code</b> &amp; more</p></div><div class="comment-actions"></div></div>
<div class="review-comment" data-comment-id="b"><div class="comment-body">also bad</div></div>
<div class="review-comment" data-comment-id="c"><div class="comment-body">   </div><div class="comment-actions"></div></div>
</body></html>`

type fakeEngine struct {
	mu      sync.Mutex
	ready   bool
	cb      func(bool)
	chunks  []string
	err     error
	gate    chan struct{}
	initErr error
	calls   int
}

func (f *fakeEngine) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeEngine) SetReadyCallback(fn func(bool)) {
	f.mu.Lock()
	f.cb = fn
	f.mu.Unlock()
}

func (f *fakeEngine) setReady(ready bool) {
	f.mu.Lock()
	f.ready = ready
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(ready)
	}
}

func (f *fakeEngine) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEngine) Enhance(ctx context.Context, _ review.ReviewComment) (*adapter.Stream, error) {
	f.mu.Lock()
	f.calls++
	chunks, err, gate := f.chunks, f.err, f.gate
	f.mu.Unlock()

	return adapter.NewStream(ctx, func(ctx context.Context, emit adapter.EmitFunc) error {
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		for _, c := range chunks {
			if err := emit(c); err != nil {
				return err
			}
		}
		return err
	}), nil
}

// initEngine adds initialization with progress to fakeEngine.
type initEngine struct {
	*fakeEngine
}

func (e initEngine) Initialize(_ context.Context, progress func(float64)) error {
	progress(0.5)
	if e.initErr != nil {
		e.setReady(false)
		return e.initErr
	}
	progress(1)
	e.setReady(true)
	return nil
}

func newDoc(t *testing.T) *page.Document {
	t.Helper()
	doc, err := page.ParseString(reviewPage)
	require.NoError(t, err)
	t.Cleanup(doc.Close)
	return doc
}

func count(doc *page.Document, selector string) int {
	n := 0
	doc.View(func(root *goquery.Selection) { n = root.Find(selector).Length() })
	return n
}

func hasAttr(doc *page.Document, selector, attr string) bool {
	ok := false
	doc.View(func(root *goquery.Selection) { _, ok = root.Find(selector).First().Attr(attr) })
	return ok
}

func textOf(doc *page.Document, selector string) string {
	var s string
	doc.View(func(root *goquery.Selection) { s = root.Find(selector).First().Text() })
	return s
}

func trigger(id string) string {
	return `[data-gentle-review-id="` + id + `"] .` + ClassTrigger
}

func TestScanIsIdempotent(t *testing.T) {
	doc := newDoc(t)
	c := New(doc, &fakeEngine{ready: true})

	n, err := c.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = c.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, 3, count(doc, "."+ClassTrigger))
	doc.View(func(root *goquery.Selection) {
		root.Find(".review-comment").Each(func(_ int, s *goquery.Selection) {
			assert.Equal(t, 1, s.Find("."+ClassTrigger).Length())
			assert.Equal(t, 1, s.Find("."+ClassOutput).Length())
		})
	})
}

func TestScanWithoutActionsPlacesControlsAfterBody(t *testing.T) {
	doc := newDoc(t)
	c := New(doc, &fakeEngine{ready: true})
	_, err := c.Scan(context.Background())
	require.NoError(t, err)

	doc.View(func(root *goquery.Selection) {
		body := root.Find(`[data-comment-id="b"] .comment-body`)
		assert.True(t, body.Next().Is("."+ClassTrigger))
	})
}

func TestControlsFollowReadyState(t *testing.T) {
	doc := newDoc(t)
	engine := &fakeEngine{}
	c := New(doc, engine)
	_, err := c.Scan(context.Background())
	require.NoError(t, err)

	assert.True(t, hasAttr(doc, trigger("gr-1"), "disabled"))
	_, err = c.Trigger(context.Background(), "gr-1")
	assert.ErrorIs(t, err, ErrNotReady)

	engine.setReady(true)
	for _, id := range []string{"gr-1", "gr-2", "gr-3"} {
		assert.False(t, hasAttr(doc, trigger(id), "disabled"), id)
	}
}

func TestScanSkippedWhenDisabled(t *testing.T) {
	doc := newDoc(t)
	c := New(doc, &fakeEngine{ready: true}, WithEnabled(func(context.Context) (bool, error) { return false, nil }))

	n, err := c.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, count(doc, "."+ClassTrigger))
}

func TestTriggerDisablesOnlyItsComment(t *testing.T) {
	doc := newDoc(t)
	gate := make(chan struct{})
	engine := &fakeEngine{ready: true, chunks: []string{"Let's ", "improve."}, gate: gate}
	c := New(doc, engine)
	_, err := c.Scan(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Trigger(context.Background(), "gr-1")
		done <- err
	}()

	require.Eventually(t, func() bool { return engine.Calls() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, hasAttr(doc, trigger("gr-1"), "disabled"))
	assert.False(t, hasAttr(doc, trigger("gr-2"), "disabled"))

	_, err = c.Trigger(context.Background(), "gr-1")
	assert.ErrorIs(t, err, ErrBusy)

	close(gate)
	require.NoError(t, <-done)
	assert.False(t, hasAttr(doc, trigger("gr-1"), "disabled"))
}

func TestStreamingRenderIsMonotonic(t *testing.T) {
	doc := newDoc(t)
	engine := &fakeEngine{ready: true, chunks: []string{"Let's ", "improve ", "this."}}

	var renders []string
	c := New(doc, engine, WithRender(func(id, text string) {
		assert.Equal(t, "gr-1", id)
		renders = append(renders, text)
	}))
	_, err := c.Scan(context.Background())
	require.NoError(t, err)

	var deltas []string
	got, err := c.TriggerStream(context.Background(), "gr-1", func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)

	const want = "Let's improve this."
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"Let's ", "improve ", "this."}, deltas)
	require.Len(t, renders, 3)
	for i, r := range renders {
		assert.True(t, strings.HasPrefix(want, r), "render %d %q is not a prefix", i, r)
		if i > 0 {
			assert.True(t, strings.HasPrefix(r, renders[i-1]), "render %d shrank", i)
		}
	}
	assert.Equal(t, want, renders[2])

	sel := `[data-gentle-review-id="gr-1"] .` + ClassText
	assert.Equal(t, want, textOf(doc, sel))
	doc.View(func(root *goquery.Selection) {
		assert.Equal(t, 3, len(root.Find(sel).Contents().Nodes), "each chunk is its own text node")
	})
	assert.Zero(t, count(doc, "."+ClassLoading))
	assert.True(t, hasAttr(doc, `[data-gentle-review-id="gr-1"] .comment-body`, "hidden"))
	assert.False(t, hasAttr(doc, `[data-gentle-review-id="gr-1"] .`+ClassToggle, "hidden"))
}

func TestEmptyCommentShowsNoticeWithoutModelCall(t *testing.T) {
	doc := newDoc(t)
	engine := &fakeEngine{ready: true, chunks: []string{"x"}}

	var notices []string
	c := New(doc, engine, WithNotifier(func(kind ToastKind, msg string) {
		assert.Equal(t, ToastInfo, kind)
		notices = append(notices, msg)
	}))
	_, err := c.Scan(context.Background())
	require.NoError(t, err)

	_, err = c.Trigger(context.Background(), "gr-3")
	assert.ErrorIs(t, err, ErrEmptyComment)
	assert.Zero(t, engine.Calls())
	assert.Equal(t, []string{"Comment is empty"}, notices)
	assert.Equal(t, "Comment is empty", textOf(doc, "."+ClassToast))
	assert.False(t, hasAttr(doc, trigger("gr-3"), "disabled"))
}

func TestToastDismissesItself(t *testing.T) {
	doc := newDoc(t)
	c := New(doc, &fakeEngine{ready: true}, WithToastTTL(10*time.Millisecond))
	_, err := c.Scan(context.Background())
	require.NoError(t, err)

	_, err = c.Trigger(context.Background(), "gr-3")
	require.ErrorIs(t, err, ErrEmptyComment)

	assert.Eventually(t, func() bool { return count(doc, "."+ClassToast) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestShowOriginalRestoresMarkup(t *testing.T) {
	doc := newDoc(t)
	c := New(doc, &fakeEngine{ready: true, chunks: []string{"Let's ", "improve ", "this."}})

	bodySel := `[data-comment-id="a"] .comment-body`
	var before string
	doc.View(func(root *goquery.Selection) {
		var err error
		before, err = page.InnerHTML(root.Find(bodySel).Get(0))
		require.NoError(t, err)
	})

	_, err := c.Scan(context.Background())
	require.NoError(t, err)
	_, err = c.Trigger(context.Background(), "gr-1")
	require.NoError(t, err)

	require.NoError(t, c.ShowOriginal("gr-1"))

	var after string
	doc.View(func(root *goquery.Selection) {
		var err error
		after, err = page.InnerHTML(root.Find(bodySel).Get(0))
		require.NoError(t, err)
	})
	assert.Equal(t, before, after)
	assert.False(t, hasAttr(doc, bodySel, "hidden"))
	assert.True(t, hasAttr(doc, `[data-comment-id="a"] .`+ClassOutput, "hidden"))
	assert.Equal(t, "Show Enhanced", textOf(doc, `[data-comment-id="a"] .`+ClassToggle))

	original, err := c.Toggle("gr-1")
	require.NoError(t, err)
	assert.False(t, original)
	assert.True(t, hasAttr(doc, bodySel, "hidden"))

	original, err = c.Toggle("gr-1")
	require.NoError(t, err)
	assert.True(t, original)
	assert.False(t, hasAttr(doc, bodySel, "hidden"))
}

func TestToggleBeforeEnhanceIsRejected(t *testing.T) {
	doc := newDoc(t)
	c := New(doc, &fakeEngine{ready: true})
	_, err := c.Scan(context.Background())
	require.NoError(t, err)

	bodySel := `[data-comment-id="a"] .comment-body`
	original, err := c.Toggle("gr-1")
	assert.ErrorIs(t, err, ErrNotEnhanced)
	assert.False(t, original)
	assert.ErrorIs(t, c.ShowEnhanced("gr-1"), ErrNotEnhanced)
	assert.ErrorIs(t, c.ShowOriginal("gr-1"), ErrNotEnhanced)

	assert.False(t, hasAttr(doc, bodySel, "hidden"))
	assert.True(t, hasAttr(doc, `[data-comment-id="a"] .`+ClassOutput, "hidden"))
	assert.Equal(t, "bad code & more", textOf(doc, bodySel))
}

func TestConcurrentWatchObservesOnce(t *testing.T) {
	doc := newDoc(t)
	engine := &fakeEngine{ready: true}
	c := New(doc, engine)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Watch(context.Background())
		}()
	}
	wg.Wait()
	defer c.Close()

	assert.Equal(t, 3, count(doc, "."+ClassTrigger))
	c.mu.Lock()
	assert.NotNil(t, c.unobserve)
	c.mu.Unlock()
}

func TestStreamFailureReEnablesTrigger(t *testing.T) {
	doc := newDoc(t)
	boom := errors.New("connection reset")
	engine := &fakeEngine{ready: true, chunks: []string{"partial "}, err: boom}

	var kinds []ToastKind
	c := New(doc, engine, WithNotifier(func(kind ToastKind, _ string) { kinds = append(kinds, kind) }))
	_, err := c.Scan(context.Background())
	require.NoError(t, err)

	text, err := c.Trigger(context.Background(), "gr-1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial ", text)
	assert.Equal(t, []ToastKind{ToastError}, kinds)
	assert.False(t, hasAttr(doc, trigger("gr-1"), "disabled"))
	assert.Zero(t, count(doc, "."+ClassLoading))

	// Other comments are unaffected and still work.
	engine.mu.Lock()
	engine.err = nil
	engine.mu.Unlock()
	_, err = c.Trigger(context.Background(), "gr-2")
	assert.NoError(t, err)
}

func TestFailureBeforeFirstChunkKeepsOriginalVisible(t *testing.T) {
	doc := newDoc(t)
	c := New(doc, &fakeEngine{ready: true, err: errors.New("model crashed")})
	_, err := c.Scan(context.Background())
	require.NoError(t, err)

	_, err = c.Trigger(context.Background(), "gr-1")
	require.Error(t, err)
	assert.False(t, hasAttr(doc, `[data-gentle-review-id="gr-1"] .comment-body`, "hidden"))
	assert.True(t, hasAttr(doc, `[data-gentle-review-id="gr-1"] .`+ClassOutput, "hidden"))
	assert.True(t, hasAttr(doc, `[data-gentle-review-id="gr-1"] .`+ClassToggle, "hidden"))
}

func TestTriggerUnknownComment(t *testing.T) {
	c := New(newDoc(t), &fakeEngine{ready: true})

	_, err := c.Trigger(context.Background(), "gr-404")
	assert.ErrorIs(t, err, ErrUnknownComment)
	assert.ErrorIs(t, c.ShowOriginal("gr-404"), ErrUnknownComment)
}

func TestStartInitializesThenWatchesForComments(t *testing.T) {
	doc := newDoc(t)
	engine := initEngine{&fakeEngine{}}
	c := New(doc, engine)
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	assert.Zero(t, count(doc, "#"+InitMessageID))
	assert.Equal(t, 3, count(doc, "."+ClassTrigger))
	assert.False(t, hasAttr(doc, trigger("gr-1"), "disabled"))

	require.NoError(t, doc.Update(func(m *page.Mutator) {
		m.AppendHTML(m.Find("body").Get(0),
			`<div class="review-comment" data-comment-id="d"><div class="comment-body">late comment</div></div>`)
	}))

	assert.Eventually(t, func() bool { return count(doc, "."+ClassTrigger) == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, count(doc, `[data-comment-id="d"] .`+ClassTrigger))
}

func TestStartInitFailureLeavesControlsDisabled(t *testing.T) {
	doc := newDoc(t)
	engine := initEngine{&fakeEngine{initErr: errors.New("download failed")}}

	var notices []string
	c := New(doc, engine, WithNotifier(func(_ ToastKind, msg string) { notices = append(notices, msg) }))
	defer c.Close()

	err := c.Start(context.Background())
	require.Error(t, err)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "download failed")
	assert.Equal(t, 3, count(doc, "."+ClassTrigger))
	assert.True(t, hasAttr(doc, trigger("gr-1"), "disabled"))
}

func TestCommentsReportsState(t *testing.T) {
	doc := newDoc(t)
	c := New(doc, &fakeEngine{ready: true, chunks: []string{"Let's fix this. ", "[Critical]"}})
	_, err := c.Scan(context.Background())
	require.NoError(t, err)
	_, err = c.Trigger(context.Background(), "gr-1")
	require.NoError(t, err)

	infos := c.Comments()
	require.Len(t, infos, 3)
	assert.Equal(t, "gr-1", infos[0].ID)
	assert.Equal(t, "a", infos[0].CommentID)
	assert.Equal(t, "bad code & more", infos[0].Content)
	assert.Equal(t, "Let's fix this. [Critical]", infos[0].Enhanced)
	assert.Equal(t, "Critical", infos[0].Severity)
	assert.False(t, infos[0].ShowingOriginal)
	assert.True(t, infos[1].ShowingOriginal)
	assert.Empty(t, infos[1].Enhanced)
}
