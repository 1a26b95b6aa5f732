/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventBroadcastScheduled EventType = "broadcast.scheduled"
	EventBroadcastStarted   EventType = "broadcast.started"
	EventBroadcastFailed    EventType = "broadcast.start_failed"
	EventBroadcastCompleted EventType = "broadcast.completed"
	EventBroadcastStopped   EventType = "broadcast.stopped"

	EventListenerJoined EventType = "listener.joined"
	EventListenerLeft   EventType = "listener.left"
	EventReaction       EventType = "listener.reaction"
)

// BroadcastEvents lists every type a coordinator publishes.
var BroadcastEvents = []EventType{
	EventBroadcastScheduled,
	EventBroadcastStarted,
	EventBroadcastFailed,
	EventBroadcastCompleted,
	EventBroadcastStopped,
	EventListenerJoined,
	EventListenerLeft,
	EventReaction,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub. Slow subscribers miss events
// rather than block publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 32)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. A nil bus discards.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	if b == nil {
		return
	}
	// Sends never block, so holding the read lock keeps Unsubscribe from
	// closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}
