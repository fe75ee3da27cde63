// ABOUTME: WebSocket endpoint streaming broadcast events to live clients
// ABOUTME: Staff tokens join their department; guests join their own address

package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lobbybee/concierge-gateway/internal/auth"
	"github.com/lobbybee/concierge-gateway/internal/broadcast"
	"github.com/lobbybee/concierge-gateway/internal/store"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
)

// ParticipantStore records staff membership in conversations
type ParticipantStore interface {
	AddParticipant(ctx context.Context, p *store.Participant) error
	MarkConversationRead(ctx context.Context, conversationID, staffID string) error
}

// Handler upgrades authenticated clients and streams their groups' events.
// Group membership lives only in the broadcaster; a disconnect removes it.
type Handler struct {
	broadcaster  *broadcast.Broadcaster
	verifier     auth.TokenVerifier
	participants ParticipantStore
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

// New creates the WebSocket handler. Pass nil logger for default.
func New(b *broadcast.Broadcaster, verifier auth.TokenVerifier, participants ParticipantStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		broadcaster:  b,
		verifier:     verifier,
		participants: participants,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser staff consoles connect cross-origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With("component", "ws"),
	}
}

// ServeHTTP authenticates via the token query parameter, upgrades the
// connection, and streams events until the client disconnects. Staff passing a
// conversation parameter are also joined as participants of that conversation.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Debug("token rejected", "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	groups := h.groupsForClaims(r, claims)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("upgrade failed", "error", err)
		return
	}

	h.logger.Info("client connected", "subject", claims.Subject, "groups", groups)

	// The request context dies with the handler; the connection's lifetime is
	// governed by the reader goroutine instead.
	h.serve(context.Background(), conn, claims, groups)
}

// groupsForClaims derives the broadcast groups a client may join and records
// staff participation when a conversation is named.
func (h *Handler) groupsForClaims(r *http.Request, claims *auth.Claims) []string {
	var groups []string

	if claims.Staff() {
		groups = append(groups, broadcast.GroupDepartment(claims.Department))

		if convID := r.URL.Query().Get("conversation"); convID != "" {
			groups = append(groups, broadcast.GroupConversation(convID))

			now := time.Now()
			p := &store.Participant{
				ConversationID: convID,
				StaffID:        claims.Subject,
				LastReadAt:     now,
				JoinedAt:       now,
			}
			if err := h.participants.AddParticipant(r.Context(), p); err != nil {
				h.logger.Warn("failed to join participant",
					"error", err, "conversation_id", convID, "staff_id", claims.Subject)
			} else if err := h.participants.MarkConversationRead(r.Context(), convID, claims.Subject); err != nil {
				h.logger.Warn("failed to mark conversation read",
					"error", err, "conversation_id", convID, "staff_id", claims.Subject)
			}
		}
	} else {
		groups = append(groups, broadcast.GroupGuest(claims.GuestAddress))
	}

	return groups
}

// serve pumps events from the subscribed groups to the connection. The
// subscriber contexts share the connection's lifetime, so closing the socket
// unsubscribes everything.
func (h *Handler) serve(parent context.Context, conn *websocket.Conn, claims *auth.Claims, groups []string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer conn.Close()

	events := make(chan *broadcast.Event, 64)
	for _, group := range groups {
		ch, _ := h.broadcaster.Subscribe(ctx, group)
		go func() {
			for event := range ch {
				select {
				case events <- event:
				default:
					// Slow client; the broadcaster already guards its own
					// buffers, this guards the merged channel.
				}
			}
		}()
	}

	// Reader detects disconnects and keeps pong handling alive. Inbound
	// payloads are ignored; clients talk to the HTTP API, not the socket.
	go func() {
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("client disconnected", "subject", claims.Subject)
			return

		case event := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("write failed", "error", err, "subject", claims.Subject)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
