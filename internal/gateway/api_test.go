// ABOUTME: HTTP surface tests: webhook ingestion, validation and health
// ABOUTME: Runs against a fully wired gateway over a temp-dir SQLite store

package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lobbybee/concierge-gateway/internal/config"
	"github.com/lobbybee/concierge-gateway/internal/flow"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")},
		Auth:     config.AuthConfig{JWTSecret: "test-secret-key-for-jwt-signing"},
		Routing:  config.RoutingConfig{ExpiryWindow: 2 * time.Minute},
	}

	g, err := New(cfg, Dependencies{}, nil)
	require.NoError(t, err)
	t.Cleanup(g.close)
	return g
}

func postWebhook(t *testing.T, handler http.Handler, channel string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook/"+channel, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_MalformedJSON(t *testing.T) {
	g := newTestGateway(t)
	handler := g.routes()

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
}

func TestWebhook_MissingRequiredFields(t *testing.T) {
	g := newTestGateway(t)
	handler := g.routes()

	rec := postWebhook(t, handler, "whatsapp", map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_ProcessesEvent(t *testing.T) {
	g := newTestGateway(t)
	handler := g.routes()

	ev := flow.Event{
		SenderAddress: "+1 555 123 4567",
		ExternalID:    uuid.New().String(),
		Kind:          flow.KindText,
		Text:          "/checkin-42",
	}
	rec := postWebhook(t, handler, "whatsapp", ev)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Response)
	assert.Equal(t, flow.ResponseList, resp.Response.Type)
}

func TestWebhook_DuplicateDeliverySameResponse(t *testing.T) {
	g := newTestGateway(t)
	handler := g.routes()

	ev := flow.Event{
		SenderAddress: "+1 555 123 4567",
		ExternalID:    uuid.New().String(),
		Kind:          flow.KindText,
		Text:          "/demo",
	}

	first := postWebhook(t, handler, "whatsapp", ev)
	second := postWebhook(t, handler, "whatsapp", ev)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestHealth(t *testing.T) {
	g := newTestGateway(t)
	handler := g.routes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}
