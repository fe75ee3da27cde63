// ABOUTME: HTTP handlers for webhook ingestion and health checks
// ABOUTME: Handled events always return 200; only malformed requests get 400

package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/lobbybee/concierge-gateway/internal/flow"
)

// webhookResponse is the JSON envelope for POST /webhook/{channel}
type webhookResponse struct {
	Status   string         `json:"status"`
	Response *flow.Response `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// handleWebhook handles POST /webhook/{channel} requests. The provider
// retries on non-200, so processing failures still answer 200 with an error
// status; retries are absorbed by the idempotency ledger.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	if channel == "" {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Error: "missing channel"})
		return
	}

	var ev flow.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Error: "malformed JSON body"})
		return
	}
	if ev.ExternalID == "" || ev.SenderAddress == "" {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Error: "external_id and sender_address are required"})
		return
	}

	resp, err := g.engine.Process(r.Context(), channel, &ev)
	if err != nil {
		g.logger.Error("webhook processing failed",
			"error", err, "channel", channel, "external_id", ev.ExternalID)
		writeJSON(w, http.StatusOK, webhookResponse{Status: "error", Error: "processing failed"})
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Status: "ok", Response: resp})
}

// handleHealth handles GET /health requests
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
