// Package api exposes the engine's operational HTTP surface: a liveness
// check and a Prometheus scrape endpoint. The teacher's dashboard
// (WebSocket push hub, per-market snapshot JSON) has no equivalent here
// — there is exactly one strategy machine, not a fleet of markets to
// browse — so that surface is replaced outright rather than adapted.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"arbengine/pkg/types"
)

// StateProvider is the read-only view the health handler needs from the
// engine.
type StateProvider interface {
	State() types.StrategyState
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	provider StateProvider
	logger   *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(provider StateProvider, logger *slog.Logger) *Handlers {
	return &Handlers{provider: provider, logger: logger.With("component", "api_handlers")}
}

// HandleHealth reports process liveness and the strategy machine's
// current state.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"state":  string(h.provider.State()),
	}); err != nil {
		h.logger.Error("encode health response", "err", err)
	}
}
