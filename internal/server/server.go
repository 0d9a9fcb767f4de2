package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/watsumi/gentle-review/internal/adapter"
	"github.com/watsumi/gentle-review/internal/handler"
	"github.com/watsumi/gentle-review/internal/llm"
	"github.com/watsumi/gentle-review/internal/middleware"
	"github.com/watsumi/gentle-review/internal/session"
	"github.com/watsumi/gentle-review/internal/settings"
)

const defaultRequestTimeout = 30 * time.Second

// Deps is everything the HTTP surface serves from.
type Deps struct {
	Adapters map[string]adapter.LLMAdapter
	Models   []adapter.ModelInfo
	Engine   *llm.Client
	Settings *settings.Router
	Sessions *session.Registry

	APIKey         string
	RateLimiter    *middleware.RateLimiter
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

// SetupMux wires handlers with the full middleware chain. Streaming routes
// are registered without a timeout.
func SetupMux(d Deps) http.Handler {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	bounded := func(h http.HandlerFunc) http.Handler {
		return middleware.Timeout(timeout)(h)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /api/health", bounded(handler.Health(d.Adapters, d.Engine)))
	mux.Handle("GET /api/models", bounded(handler.Models(d.Models)))
	mux.Handle("POST /api/messages", bounded(handler.Messages(d.Settings)))
	mux.HandleFunc("/api/enhance", handler.Enhance(d.Engine))

	pages := handler.NewPages(d.Sessions, d.Engine.Name())
	mux.Handle("POST /api/pages", bounded(pages.Create))
	mux.Handle("GET /api/pages/{id}", bounded(pages.Get))
	mux.Handle("POST /api/pages/{id}/append", bounded(pages.Append))
	mux.HandleFunc("POST /api/pages/{id}/comments/{cid}/enhance", pages.Enhance)
	mux.Handle("POST /api/pages/{id}/comments/{cid}/toggle", bounded(pages.Toggle))

	mux.Handle("GET /metrics", promhttp.Handler())

	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 * 1024
	}
	return middleware.Chain(mux, d.RateLimiter, d.APIKey, maxBody)
}
