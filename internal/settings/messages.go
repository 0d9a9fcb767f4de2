package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Message types understood by the Router.
const (
	MessageGetSettings    = "GET_SETTINGS"
	MessageUpdateSettings = "UPDATE_SETTINGS"
)

// ErrUnknownMessage is returned for message types the Router does not handle.
var ErrUnknownMessage = errors.New("settings: unknown message type")

// Message is one request on the settings channel.
type Message struct {
	Type     string          `json:"type"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// Ack acknowledges an UPDATE_SETTINGS message.
type Ack struct {
	OK bool `json:"ok"`
}

// Router answers settings messages against a Store.
type Router struct {
	store *Store
}

func NewRouter(store *Store) *Router {
	return &Router{store: store}
}

// Handle returns an ExtensionSettings for GET_SETTINGS and an Ack for
// UPDATE_SETTINGS. Storage errors are returned unchanged.
func (r *Router) Handle(ctx context.Context, msg Message) (any, error) {
	switch msg.Type {
	case MessageGetSettings:
		return r.store.Get(ctx)
	case MessageUpdateSettings:
		var p Patch
		if len(msg.Settings) > 0 {
			if err := json.Unmarshal(msg.Settings, &p); err != nil {
				return nil, fmt.Errorf("settings: decode patch: %w", err)
			}
		}
		if _, err := r.store.Update(ctx, p); err != nil {
			return nil, err
		}
		return Ack{OK: true}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}
