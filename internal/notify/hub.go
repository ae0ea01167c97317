package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultBuffer is the per-subscriber event buffer used by NewHub when the
// caller passes a non-positive size.
const DefaultBuffer = 16

// Subscriber is one live connection of a user.
type Subscriber struct {
	ID     string
	UserID int64
	// Events is closed by Unsubscribe.
	Events chan Event
}

// Hub is the process-local registry of live subscribers, keyed by user id.
// A user may hold several subscriptions (tabs, devices); each receives every
// event addressed to that user.
type Hub struct {
	mu     sync.RWMutex
	users  map[int64]map[*Subscriber]struct{}
	buffer int
}

// NewHub returns an empty Hub with the given per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{users: make(map[int64]map[*Subscriber]struct{}), buffer: buffer}
}

// channelFor returns the subscriber set of userID, creating it when absent.
// The caller must hold h.mu for writing.
func (h *Hub) channelFor(userID int64) map[*Subscriber]struct{} {
	set, ok := h.users[userID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.users[userID] = set
	}
	return set
}

// Subscribe registers a new live subscription for userID.
func (h *Hub) Subscribe(userID int64) *Subscriber {
	s := &Subscriber{
		ID:     uuid.NewString(),
		UserID: userID,
		Events: make(chan Event, h.buffer),
	}
	h.mu.Lock()
	h.channelFor(userID)[s] = struct{}{}
	h.mu.Unlock()
	log.Debug().Int64("user_id", userID).Str("subscriber_id", s.ID).Msg("notification subscriber added")
	return s
}

// Unsubscribe removes s and closes its Events channel. Calling it twice is a
// no-op.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.users[s.UserID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.users, s.UserID)
	}
	close(s.Events)
}

// Subscribers reports how many live subscriptions userID holds.
func (h *Hub) Subscribers(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Publish implements Publisher by delivering e to every local subscription
// of e.UserID. Subscribers whose buffer is full miss the event.
func (h *Hub) Publish(_ context.Context, e Event) error {
	h.Deliver(e)
	return nil
}

// Deliver fans e out to the local subscribers of e.UserID without blocking.
func (h *Hub) Deliver(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.users[e.UserID] {
		select {
		case s.Events <- e:
		default:
			log.Warn().
				Int64("user_id", e.UserID).
				Str("subscriber_id", s.ID).
				Str("kind", string(e.Kind)).
				Msg("dropping notification event; subscriber buffer full")
		}
	}
}
