package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestOpenAIAdapterStreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("expected /v1/chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization: got %q", got)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Let's ", "improve ", "this."} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4o-mini\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q},\"finish_reason\":null}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a := &OpenAIAdapter{
		BaseURL: srv.URL + "/v1/",
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
		Client:  &http.Client{Timeout: 5 * time.Second},
	}

	s, err := a.StreamChat(context.Background(), []Message{{Role: "system", Content: "Be gentle."}, {Role: "user", Content: "bad code"}}, Options{Temperature: 0.7, MaxTokens: 500})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	got, err := collect(t, s)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got != "Let's improve this." {
		t.Errorf("got %q, want %q", got, "Let's improve this.")
	}
}

func TestOpenAIAdapterBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := &OpenAIAdapter{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "gpt-4o-mini", Client: &http.Client{Timeout: 5 * time.Second}}

	for i := 0; i < 4; i++ {
		s, err := a.StreamChat(context.Background(), []Message{{Role: "user", Content: "x"}}, Options{})
		if err != nil {
			t.Fatalf("StreamChat: %v", err)
		}
		if _, err := collect(t, s); err == nil {
			t.Errorf("call %d: expected error, got nil", i)
		}
	}

	if got := calls.Load(); got != 3 {
		t.Errorf("server calls: got %d, want 3 (breaker should short-circuit the 4th)", got)
	}
	if a.Available() {
		t.Error("adapter should be unavailable while the breaker is open")
	}
}

func TestOpenAIAdapterNoKey(t *testing.T) {
	a := &OpenAIAdapter{Model: "gpt-4o-mini"}
	if a.Available() {
		t.Error("expected unavailable without API key")
	}
	if _, err := a.StreamChat(context.Background(), nil, Options{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestClaudeAdapterStreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("expected /v1/messages, got %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant-test" {
			t.Errorf("x-api-key: got %q", got)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_1\",\"type\":\"message\",\"role\":\"assistant\",\"content\":[],\"model\":\"claude-sonnet-4-5\",\"stop_reason\":null,\"stop_sequence\":null,\"usage\":{\"input_tokens\":5,\"output_tokens\":1}}}\n\n")
		fmt.Fprint(w, "event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n")
		for _, part := range []string{"Let's ", "improve ", "this."} {
			fmt.Fprintf(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":%q}}\n\n", part)
		}
		fmt.Fprint(w, "event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":0}\n\n")
		fmt.Fprint(w, "event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\",\"stop_sequence\":null},\"usage\":{\"output_tokens\":3}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	a := &ClaudeAdapter{BaseURL: srv.URL, APIKey: "sk-ant-test", Model: "claude-sonnet-4-5", Client: &http.Client{Timeout: 5 * time.Second}}

	s, err := a.StreamChat(context.Background(), []Message{{Role: "system", Content: "Be gentle."}, {Role: "user", Content: "bad code"}}, Options{})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	got, err := collect(t, s)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got != "Let's improve this." {
		t.Errorf("got %q, want %q", got, "Let's improve this.")
	}
}

func TestClaudeAdapterAvailable(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"with key", "sk-ant", true},
		{"without key", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &ClaudeAdapter{APIKey: tt.key, Model: "claude-sonnet"}
			if got := a.Available(); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
