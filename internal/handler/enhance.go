package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/watsumi/gentle-review/internal/adapter"
	"github.com/watsumi/gentle-review/internal/llm"
	"github.com/watsumi/gentle-review/internal/metrics"
	"github.com/watsumi/gentle-review/internal/review"
)

const maxTextLength = 10000

// Enhancer is the engine surface the HTTP layer needs.
type Enhancer interface {
	Name() string
	Ready() bool
	Enhance(ctx context.Context, comment review.ReviewComment) (*adapter.Stream, error)
}

type enhanceRequest struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	FilePath   string `json:"file_path"`
	LineNumber int    `json:"line_number"`
}

// Enhance rewrites a single comment. The response is NDJSON, one
// {"delta":...} per chunk followed by {"done":true,...}, unless the query
// has stream=false, in which case the parsed EnhancedComment is returned.
func Enhance(engine Enhancer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req enhanceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		if req.Content == "" {
			writeError(w, http.StatusBadRequest, "content is required")
			return
		}
		if len(req.Content) > maxTextLength {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("content too long: %d characters (max %d)", len(req.Content), maxTextLength))
			return
		}

		comment := review.ReviewComment{
			ID:         req.ID,
			Content:    req.Content,
			FilePath:   req.FilePath,
			LineNumber: req.LineNumber,
		}

		metrics.InputChars.Observe(float64(len(req.Content)))
		start := time.Now()
		stream, err := engine.Enhance(r.Context(), comment)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		defer stream.Close()

		if r.URL.Query().Get("stream") == "false" {
			text, err := llm.Collect(stream)
			observeStream(engine.Name(), start, err)
			if err != nil {
				writeError(w, http.StatusBadGateway, fmt.Sprintf("enhance failed: %v", err))
				return
			}
			writeJSON(w, http.StatusOK, review.ParseEnhanced(comment, text))
			return
		}

		out := newNDJSON(w)
		for chunk := range stream.Chunks() {
			metrics.EnhanceChunks.WithLabelValues(engine.Name()).Inc()
			out.send(streamLine{Delta: chunk.Delta})
		}
		err = stream.Err()
		observeStream(engine.Name(), start, err)
		if err != nil {
			if !out.started {
				writeError(w, http.StatusBadGateway, fmt.Sprintf("enhance failed: %v", err))
				return
			}
			out.send(streamLine{Error: err.Error()})
			return
		}
		out.send(streamLine{Done: true, ElapsedMs: time.Since(start).Milliseconds()})
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, llm.ErrNotInitialized) {
		metrics.EnhanceErrors.WithLabelValues("not_ready").Inc()
		writeError(w, http.StatusServiceUnavailable, "engine not ready")
		return
	}
	metrics.EnhanceErrors.WithLabelValues("engine").Inc()
	writeError(w, http.StatusBadGateway, fmt.Sprintf("enhance failed: %v", err))
}

func observeStream(provider string, start time.Time, err error) {
	if err != nil {
		reason := "stream"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			reason = "canceled"
		}
		metrics.EnhanceErrors.WithLabelValues(reason).Inc()
		slog.Warn("enhance stream failed", "provider", provider, "error", err)
		return
	}
	metrics.EnhanceDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}
