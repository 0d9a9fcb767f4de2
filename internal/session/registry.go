// Package session keeps the review pages loaded through the HTTP API, each
// with its own enhancement controller, until they expire.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/watsumi/gentle-review/internal/enhancer"
	"github.com/watsumi/gentle-review/internal/page"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session: not found")

// Session is one loaded page.
type Session struct {
	ID         string
	Doc        *page.Document
	Controller *enhancer.Controller
	Created    time.Time

	mu      sync.Mutex
	onReady func(bool)
}

// Close stops the controller and the document's observers.
func (s *Session) Close() {
	s.Controller.Close()
	s.Doc.Close()
}

func (s *Session) notifyReady(ready bool) {
	s.mu.Lock()
	fn := s.onReady
	s.mu.Unlock()
	if fn != nil {
		fn(ready)
	}
}

// sessionEngine gives each controller its own ready subscription while the
// registry stays the engine's single subscriber.
type sessionEngine struct {
	enhancer.Engine
	session *Session
}

func (e sessionEngine) SetReadyCallback(fn func(bool)) {
	e.session.mu.Lock()
	e.session.onReady = fn
	e.session.mu.Unlock()
}

// Registry holds sessions in a go-cache with sliding expiry.
type Registry struct {
	ctx    context.Context
	cache  *gocache.Cache
	engine enhancer.Engine
	opts   []enhancer.Option
	ttl    time.Duration
	logger *slog.Logger
}

// NewRegistry registers itself as the engine's ready subscriber. ctx bounds
// the lifetime of every session's page watcher.
func NewRegistry(ctx context.Context, engine enhancer.Engine, ttl time.Duration, opts ...enhancer.Option) *Registry {
	r := &Registry{
		ctx:    ctx,
		cache:  gocache.New(ttl, ttl/2),
		engine: engine,
		opts:   opts,
		ttl:    ttl,
		logger: slog.Default(),
	}
	r.cache.OnEvicted(func(id string, v interface{}) {
		v.(*Session).Close()
		r.logger.Debug("session closed", "session", id)
	})
	engine.SetReadyCallback(r.broadcast)
	return r
}

func (r *Registry) broadcast(ready bool) {
	for _, item := range r.cache.Items() {
		item.Object.(*Session).notifyReady(ready)
	}
}

// Create parses the page, fits its comments and starts watching it.
func (r *Registry) Create(body io.Reader) (*Session, error) {
	doc, err := page.Parse(body)
	if err != nil {
		return nil, err
	}

	s := &Session{ID: newID(), Doc: doc, Created: time.Now()}
	s.Controller = enhancer.New(doc, sessionEngine{Engine: r.engine, session: s}, r.opts...)
	r.cache.Set(s.ID, s, gocache.DefaultExpiration)
	// A broadcast that fired before Set never reached this session.
	if r.engine.Ready() {
		s.notifyReady(true)
	}
	s.Controller.Watch(r.ctx)

	r.logger.Info("session created", "session", s.ID, "comments", len(s.Controller.Comments()))
	return s, nil
}

// Get returns the session and extends its expiry.
func (r *Registry) Get(id string) (*Session, error) {
	v, ok := r.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	r.cache.Set(id, v, gocache.DefaultExpiration)
	return v.(*Session), nil
}

// Delete closes and forgets the session.
func (r *Registry) Delete(id string) {
	r.cache.Delete(id)
}

func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Close drops every session.
func (r *Registry) Close() {
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
}

func newID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
