// Package broker defines the interface for announcing task changes.
package broker

import (
	"context"

	"github.com/erennakbas/tasksync/types"
)

// Broker fans change events out to connected observers.
// The primary implementation is the in-process hub.Hub.
type Broker interface {
	// Announce sends the event to every observer connected at call time.
	// It never blocks on slow observers and reports no delivery outcome.
	Announce(ctx context.Context, event types.Event)
}

// BrokerFunc adapts an ordinary function to the Broker interface.
type BrokerFunc func(ctx context.Context, event types.Event)

// Announce calls f(ctx, event).
func (f BrokerFunc) Announce(ctx context.Context, event types.Event) {
	f(ctx, event)
}

// Multi returns a Broker that announces to each broker in order.
func Multi(brokers ...Broker) Broker {
	return BrokerFunc(func(ctx context.Context, event types.Event) {
		for _, b := range brokers {
			b.Announce(ctx, event)
		}
	})
}
