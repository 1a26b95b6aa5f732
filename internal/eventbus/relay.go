/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus relays in-process broadcast events to an external broker
// so other services can react to concerts going live.
package eventbus

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/encore/internal/events"
)

// Publisher delivers one encoded message to a subject or channel.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// message is the wire envelope.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"` // For deduplication
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

// Relay forwards local bus events to a Publisher.
type Relay struct {
	bus       *events.Bus
	publisher Publisher
	prefix    string
	nodeID    string
	logger    zerolog.Logger

	mu     sync.Mutex
	subs   map[events.EventType]events.Subscriber
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRelay creates a relay publishing to "<prefix>.<event type>".
func NewRelay(bus *events.Bus, p Publisher, prefix string, logger zerolog.Logger) *Relay {
	if prefix == "" {
		prefix = "encore.events"
	}
	return &Relay{
		bus:       bus,
		publisher: p,
		prefix:    prefix,
		nodeID:    nodeID(),
		logger:    logger.With().Str("component", "event-relay").Logger(),
		subs:      make(map[events.EventType]events.Subscriber),
	}
}

// Start subscribes to every broadcast event type.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)

	for _, et := range events.BroadcastEvents {
		sub := r.bus.Subscribe(et)
		r.subs[et] = sub
		r.wg.Add(1)
		go r.forward(ctx, et, sub)
	}
	r.logger.Info().Str("prefix", r.prefix).Str("node_id", r.nodeID).Msg("event relay started")
}

func (r *Relay) forward(ctx context.Context, et events.EventType, sub events.Subscriber) {
	defer r.wg.Done()
	subject := r.prefix + "." + string(et)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			data, err := marshalMessage(et, payload, r.nodeID)
			if err != nil {
				r.logger.Error().Err(err).Str("event_type", string(et)).Msg("encode event")
				continue
			}
			pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if err := r.publisher.Publish(pubCtx, subject, data); err != nil {
				r.logger.Warn().Err(err).Str("subject", subject).Msg("relay publish failed")
			}
			cancel()
		}
	}
}

// Close stops forwarding and closes the publisher.
func (r *Relay) Close() error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	subs := r.subs
	r.subs = make(map[events.EventType]events.Subscriber)
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	r.wg.Wait()
	for et, sub := range subs {
		r.bus.Unsubscribe(et, sub)
	}
	return r.publisher.Close()
}

func nodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "encore"
	}
	return host + "-" + uuid.NewString()[:8]
}
