// Package hub provides the in-process observer registry that implements broker.Broker.
package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/erennakbas/tasksync/broker"
	"github.com/erennakbas/tasksync/types"
)

// DefaultBufferSize is the per-observer event buffer used when Config.BufferSize is unset.
const DefaultBufferSize = 64

// ErrClosed is returned by Join after the hub has been closed.
var ErrClosed = errors.New("hub closed")

// Config configures the hub.
type Config struct {
	// BufferSize is how many events an observer may lag behind before
	// further events are dropped for it.
	BufferSize int

	Logger types.Logger
}

// Observer is one connected push-channel session.
type Observer struct {
	// ID is an ephemeral connection handle.
	ID string

	events chan types.Event
}

// Events returns the channel the observer receives announcements on.
// It is closed when the observer leaves or the hub closes.
func (o *Observer) Events() <-chan types.Event {
	return o.events
}

// Hub tracks connected observers and fans events out to them.
type Hub struct {
	bufferSize int
	logger     types.Logger

	mu        sync.RWMutex
	observers map[string]*Observer
	closed    bool
}

var _ broker.Broker = (*Hub)(nil)

// New creates an empty hub.
func New(cfg Config) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = types.DefaultLogger()
	}

	return &Hub{
		bufferSize: cfg.BufferSize,
		logger:     cfg.Logger,
		observers:  make(map[string]*Observer),
	}
}

// Join registers a new observer.
func (h *Hub) Join() (*Observer, error) {
	o := &Observer{
		ID:     uuid.NewString(),
		events: make(chan types.Event, h.bufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.observers[o.ID] = o
	count := len(h.observers)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"observer_id": o.ID,
		"observers":   count,
	}).Info("observer connected")

	return o, nil
}

// Leave unregisters an observer and closes its channel. Unknown IDs are ignored.
func (h *Hub) Leave(id string) {
	h.mu.Lock()
	o, ok := h.observers[id]
	if ok {
		delete(h.observers, id)
		close(o.events)
	}
	count := len(h.observers)
	h.mu.Unlock()

	if ok {
		h.logger.WithFields(logrus.Fields{
			"observer_id": id,
			"observers":   count,
		}).Info("observer disconnected")
	}
}

// Announce sends event to every current observer without blocking.
// Observers with a full buffer miss the event.
func (h *Hub) Announce(ctx context.Context, event types.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, o := range h.observers {
		select {
		case o.events <- event:
		default:
			h.logger.WithFields(logrus.Fields{
				"observer_id": id,
				"event":       event.Kind,
			}).Debug("observer buffer full, dropping event")
		}
	}
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Close disconnects every observer. Later announcements are no-ops and Join fails.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, o := range h.observers {
		close(o.events)
		delete(h.observers, id)
	}
}
