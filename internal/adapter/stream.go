package adapter

import (
	"context"
	"sync"
)

// streamBuffer bounds how far a producer may run ahead of the reader.
const streamBuffer = 16

// Chunk is one incremental fragment of generated text.
type Chunk struct {
	Delta string
}

// Stream carries the chunks of a single completion to a single reader.
// Chunks is closed when the engine stops or fails; Err reports the terminal
// error once Chunks is closed. A stream cannot be restarted.
type Stream struct {
	ch     chan Chunk
	err    error
	cancel context.CancelFunc
	once   sync.Once
}

// EmitFunc delivers one delta to the reader, blocking while the buffer is full.
type EmitFunc func(delta string) error

// NewStream runs produce on its own goroutine and exposes what it emits.
// The producer must return when emit returns an error.
func NewStream(ctx context.Context, produce func(ctx context.Context, emit EmitFunc) error) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		ch:     make(chan Chunk, streamBuffer),
		cancel: cancel,
	}

	go func() {
		defer close(s.ch)
		defer cancel()
		s.err = produce(ctx, func(delta string) error {
			if delta == "" {
				return nil
			}
			select {
			case s.ch <- Chunk{Delta: delta}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	return s
}

// Chunks returns the receive side of the stream.
func (s *Stream) Chunks() <-chan Chunk {
	return s.ch
}

// Err returns the terminal error. Only meaningful after Chunks is closed.
func (s *Stream) Err() error {
	return s.err
}

// Close stops the producer and drains what is left.
func (s *Stream) Close() {
	s.once.Do(func() {
		s.cancel()
		for range s.ch {
		}
	})
}
