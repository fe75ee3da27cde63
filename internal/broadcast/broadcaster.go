// ABOUTME: In-memory fan-out broadcaster for live staff and guest clients
// ABOUTME: Groups key on department, conversation id or guest address

package broadcast

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber
	subscriberBufferSize = 64
)

// Group key prefixes. Keys are deterministic strings so any component can
// compute them without coordination.
func GroupDepartment(name string) string { return "department:" + strings.ToLower(name) }
func GroupConversation(id string) string { return "conversation:" + id }
func GroupGuest(address string) string   { return "guest:" + address }

// Event is one fan-out payload delivered to live connections
type Event struct {
	Group          string    `json:"group"`
	ConversationID string    `json:"conversation_id,omitempty"`
	GuestAddress   string    `json:"guest_address,omitempty"`
	Department     string    `json:"department,omitempty"`
	Sender         string    `json:"sender,omitempty"`
	Payload        any       `json:"payload"`
	CreatedAt      time.Time `json:"created_at"`
}

// Broadcaster provides in-memory pub/sub keyed by group. Publishing is
// fire-and-forget: a failed or slow delivery never affects the state mutation
// that produced the event, and group membership has no persistence.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Event // group -> subID -> ch
	logger      *slog.Logger
}

// New creates a broadcaster. Pass nil logger for default.
func New(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on the given group. Returns a
// channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, group string) (<-chan *Event, string) {
	subID := uuid.New().String()
	ch := make(chan *Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[group]; !ok {
		b.subscribers[group] = make(map[string]chan *Event)
	}
	b.subscribers[group][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "group", group, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(group, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of the given group.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(group string, event *Event) {
	event.Group = group

	// Sends happen under the read lock. Unsubscribe and Close take the write
	// lock before closing a channel, so a send can never hit a closed channel.
	// The sends are non-blocking, so the lock is held only briefly.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[group] {
		select {
		case ch <- event:
			// Sent
		default:
			// Subscriber channel full, drop event for this subscriber
			b.logger.Debug("dropped event for slow subscriber", "group", group)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(group, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[group]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty group entries
	if len(subs) == 0 {
		delete(b.subscribers, group)
	}

	b.logger.Debug("subscriber removed", "group", group, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for group, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, group)
	}

	b.logger.Debug("broadcaster closed")
}
