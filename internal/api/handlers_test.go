package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"arbengine/pkg/types"
)

type fakeProvider struct{ state types.StrategyState }

func (f fakeProvider) State() types.StrategyState { return f.state }

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	h := NewHandlers(fakeProvider{state: types.OpenLeg2Chasing}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	h.HandleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
	if body["state"] != string(types.OpenLeg2Chasing) {
		t.Errorf("state field = %q, want %q", body["state"], types.OpenLeg2Chasing)
	}
}
