package handler

import (
	"encoding/json"
	"net/http"

	"github.com/watsumi/gentle-review/internal/adapter"
	"github.com/watsumi/gentle-review/internal/llm"
	"github.com/watsumi/gentle-review/internal/metrics"
)

// EngineStatus reports the state of the shared engine handle.
type EngineStatus interface {
	Name() string
	State() (llm.State, float64)
}

type adapterStatus struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type engineState struct {
	Adapter  string  `json:"adapter"`
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
}

type healthResponse struct {
	Status   string                   `json:"status"`
	Engine   *engineState             `json:"engine,omitempty"`
	Adapters map[string]adapterStatus `json:"adapters"`
}

// Health reports adapter reachability and, when engine is non-nil, its
// initialization state.
func Health(adapters map[string]adapter.LLMAdapter, engine EngineStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := make(map[string]adapterStatus, len(adapters))
		for id, a := range adapters {
			s := adapterStatus{Available: a.Available()}
			if s.Available {
				metrics.AdapterAvailable.WithLabelValues(id).Set(1)
			} else {
				metrics.AdapterAvailable.WithLabelValues(id).Set(0)
				s.Reason = unavailableReason(a)
			}
			statuses[id] = s
		}

		resp := healthResponse{Status: "ok", Adapters: statuses}
		if engine != nil {
			state, progress := engine.State()
			resp.Engine = &engineState{Adapter: engine.Name(), State: state.String(), Progress: progress}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func unavailableReason(a adapter.LLMAdapter) string {
	switch v := a.(type) {
	case *adapter.ClaudeAdapter:
		return "no API key"
	case *adapter.OpenAIAdapter:
		if v.APIKey == "" {
			return "no API key"
		}
		return "circuit open"
	case *adapter.OllamaAdapter:
		return "ollama unreachable"
	case *adapter.LlamaCppAdapter:
		return "llama-server unreachable"
	default:
		return "unavailable"
	}
}
