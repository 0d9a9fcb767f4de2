package adapter

import (
	"context"
	"errors"
	"testing"
)

func TestStreamPreservesOrder(t *testing.T) {
	parts := []string{"Let's ", "improve ", "this."}
	s := NewStream(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		for _, p := range parts {
			if err := emit(p); err != nil {
				return err
			}
		}
		return nil
	})

	i := 0
	for c := range s.Chunks() {
		if c.Delta != parts[i] {
			t.Errorf("chunk %d: got %q, want %q", i, c.Delta, parts[i])
		}
		i++
	}
	if i != len(parts) {
		t.Errorf("chunks: got %d, want %d", i, len(parts))
	}
	if s.Err() != nil {
		t.Errorf("err: got %v, want nil", s.Err())
	}
}

func TestStreamSkipsEmptyDeltas(t *testing.T) {
	s := NewStream(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		emit("")
		emit("x")
		emit("")
		return nil
	})

	got, _ := collect(t, s)
	if got != "x" {
		t.Errorf("got %q, want %q", got, "x")
	}
}

func TestStreamTerminalError(t *testing.T) {
	boom := errors.New("boom")
	s := NewStream(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		emit("partial")
		return boom
	})

	got, err := collect(t, s)
	if !errors.Is(err, boom) {
		t.Errorf("err: got %v, want %v", err, boom)
	}
	if got != "partial" {
		t.Errorf("got %q, want %q", got, "partial")
	}
}

func TestStreamCloseStopsProducer(t *testing.T) {
	stopped := make(chan error, 1)
	s := NewStream(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		for {
			if err := emit("tick "); err != nil {
				stopped <- err
				return err
			}
		}
	})

	<-s.Chunks()
	s.Close()

	if err := <-stopped; !errors.Is(err, context.Canceled) {
		t.Errorf("producer error: got %v, want %v", err, context.Canceled)
	}
	if _, ok := <-s.Chunks(); ok {
		t.Error("chunks channel should be closed after Close")
	}
}
