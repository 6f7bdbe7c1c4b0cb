// Package realtime provides real-time communication adapters.
package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"inboxie_server/core/port/out"
)

// ProgressAdapter implements out.ProgressPublisher using in-memory fan-out
// channels, consumed by the SSE handler. Events are best-effort: slow
// subscribers drop events rather than stall the pipeline.
type ProgressAdapter struct {
	clients map[uuid.UUID]map[chan out.ProgressEvent]struct{}
	mu      sync.RWMutex
	log     zerolog.Logger

	eventsSent    int64
	eventsDropped int64
}

// NewProgressAdapter creates a new progress adapter.
func NewProgressAdapter(log zerolog.Logger) *ProgressAdapter {
	return &ProgressAdapter{
		clients: make(map[uuid.UUID]map[chan out.ProgressEvent]struct{}),
		log:     log.With().Str("component", "progress_adapter").Logger(),
	}
}

// Subscribe registers a listener for a user's pipeline events. The returned
// cancel func must be called when the listener disconnects.
func (a *ProgressAdapter) Subscribe(userID uuid.UUID) (<-chan out.ProgressEvent, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan out.ProgressEvent, 64)

	if a.clients[userID] == nil {
		a.clients[userID] = make(map[chan out.ProgressEvent]struct{})
	}
	a.clients[userID][ch] = struct{}{}

	a.log.Debug().
		Str("user_id", userID.String()).
		Int("total_connections", len(a.clients[userID])).
		Msg("client subscribed")

	// The channel is never closed: Publish may still hold a reference to it
	// after the map delete, and a send on a closed channel would panic the
	// publishing request. The subscriber owns its own exit.
	cancel := func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		if channels, ok := a.clients[userID]; ok {
			delete(channels, ch)
			if len(channels) == 0 {
				delete(a.clients, userID)
			}
		}

		a.log.Debug().
			Str("user_id", userID.String()).
			Msg("client unsubscribed")
	}

	return ch, cancel
}

// Publish sends an event to all of a user's subscribers.
func (a *ProgressAdapter) Publish(userID uuid.UUID, event out.ProgressEvent) {
	a.mu.RLock()
	channels, ok := a.clients[userID]
	if !ok || len(channels) == 0 {
		a.mu.RUnlock()
		return
	}

	// Copy channels to avoid holding the lock during sends.
	chList := make([]chan out.ProgressEvent, 0, len(channels))
	for ch := range channels {
		chList = append(chList, ch)
	}
	a.mu.RUnlock()

	for _, ch := range chList {
		select {
		case ch <- event:
			atomic.AddInt64(&a.eventsSent, 1)
		default:
			atomic.AddInt64(&a.eventsDropped, 1)
			a.log.Warn().
				Str("user_id", userID.String()).
				Str("phase", string(event.Phase)).
				Msg("dropped event due to full buffer")
		}
	}
}

// ConnectedCount returns the number of users with active subscriptions.
func (a *ProgressAdapter) ConnectedCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clients)
}
