package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/watsumi/gentle-review/internal/enhancer"
	"github.com/watsumi/gentle-review/internal/metrics"
	"github.com/watsumi/gentle-review/internal/page"
	"github.com/watsumi/gentle-review/internal/session"
)

type pageResponse struct {
	ID       string                 `json:"id"`
	Comments []enhancer.CommentInfo `json:"comments"`
	HTML     string                 `json:"html"`
}

type appendRequest struct {
	Selector string `json:"selector"`
	HTML     string `json:"html"`
}

type toggleResponse struct {
	ID              string `json:"id"`
	ShowingOriginal bool   `json:"showing_original"`
}

type enhancedResponse struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Pages serves review pages held in a session registry. provider labels
// the enhancement metrics.
type Pages struct {
	registry *session.Registry
	provider string
}

func NewPages(registry *session.Registry, provider string) *Pages {
	return &Pages{registry: registry, provider: provider}
}

// Create loads the request body as an HTML page and fits its comments.
func (p *Pages) Create(w http.ResponseWriter, r *http.Request) {
	s, err := p.registry.Create(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid page: %v", err))
		return
	}
	p.writePage(w, http.StatusCreated, s)
}

func (p *Pages) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := p.session(w, r)
	if !ok {
		return
	}
	p.writePage(w, http.StatusOK, s)
}

// Append inserts markup into the first element matching selector. New
// comments are fitted asynchronously by the page watcher.
func (p *Pages) Append(w http.ResponseWriter, r *http.Request) {
	s, ok := p.session(w, r)
	if !ok {
		return
	}

	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Selector == "" {
		req.Selector = "body"
	}

	found := false
	err := s.Doc.Update(func(m *page.Mutator) {
		target := m.Find(req.Selector).First()
		if target.Length() == 0 {
			return
		}
		found = true
		m.AppendHTML(target.Get(0), req.HTML)
	})
	switch {
	case errors.Is(err, page.ErrClosed):
		writeError(w, http.StatusNotFound, "page not found")
	case err != nil:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid markup: %v", err))
	case !found:
		writeError(w, http.StatusNotFound, fmt.Sprintf("no element matches %q", req.Selector))
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// Enhance triggers one fitted comment and streams its deltas as NDJSON, or
// returns the whole text when the query has stream=false.
func (p *Pages) Enhance(w http.ResponseWriter, r *http.Request) {
	s, ok := p.session(w, r)
	if !ok {
		return
	}
	id := r.PathValue("cid")
	start := time.Now()

	if r.URL.Query().Get("stream") == "false" {
		text, err := s.Controller.Trigger(r.Context(), id)
		if err != nil {
			p.writeTriggerError(w, err, false)
			return
		}
		metrics.EnhanceDuration.WithLabelValues(p.provider).Observe(time.Since(start).Seconds())
		writeJSON(w, http.StatusOK, enhancedResponse{ID: id, Text: text})
		return
	}

	out := newNDJSON(w)
	_, err := s.Controller.TriggerStream(r.Context(), id, func(delta string) {
		metrics.EnhanceChunks.WithLabelValues(p.provider).Inc()
		out.send(streamLine{Delta: delta})
	})
	if err != nil {
		if !out.started {
			p.writeTriggerError(w, err, false)
			return
		}
		p.writeTriggerError(w, err, true)
		out.send(streamLine{Error: err.Error()})
		return
	}
	metrics.EnhanceDuration.WithLabelValues(p.provider).Observe(time.Since(start).Seconds())
	out.send(streamLine{Done: true, ElapsedMs: time.Since(start).Milliseconds()})
}

// Toggle flips a completed comment between its original and enhanced text.
func (p *Pages) Toggle(w http.ResponseWriter, r *http.Request) {
	s, ok := p.session(w, r)
	if !ok {
		return
	}
	id := r.PathValue("cid")
	original, err := s.Controller.Toggle(id)
	if err != nil {
		p.writeTriggerError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{ID: id, ShowingOriginal: original})
}

func (p *Pages) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := p.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "page not found")
		return nil, false
	}
	return s, true
}

func (p *Pages) writePage(w http.ResponseWriter, code int, s *session.Session) {
	markup, err := s.Doc.HTML()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("render page: %v", err))
		return
	}
	comments := s.Controller.Comments()
	if comments == nil {
		comments = []enhancer.CommentInfo{}
	}
	writeJSON(w, code, pageResponse{ID: s.ID, Comments: comments, HTML: markup})
}

// writeTriggerError maps controller errors to status codes. Once a stream
// has started only the metric is recorded.
func (p *Pages) writeTriggerError(w http.ResponseWriter, err error, started bool) {
	var code int
	var reason string
	switch {
	case errors.Is(err, enhancer.ErrUnknownComment):
		code, reason = http.StatusNotFound, "unknown_comment"
	case errors.Is(err, enhancer.ErrBusy):
		code, reason = http.StatusConflict, "busy"
	case errors.Is(err, enhancer.ErrNotReady):
		code, reason = http.StatusServiceUnavailable, "not_ready"
	case errors.Is(err, enhancer.ErrEmptyComment):
		code, reason = http.StatusBadRequest, "empty"
	case errors.Is(err, enhancer.ErrNotEnhanced):
		code, reason = http.StatusConflict, "not_enhanced"
	default:
		code, reason = http.StatusBadGateway, "stream"
	}
	metrics.EnhanceErrors.WithLabelValues(reason).Inc()
	if !started {
		writeError(w, code, err.Error())
	}
}
