/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package broadcast

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/encore/internal/feed"
	"github.com/friendsincode/encore/internal/rtc"
	"github.com/friendsincode/encore/internal/signaling"
	"github.com/friendsincode/encore/internal/telemetry"
)

const (
	outboxSize   = 32
	callbackSize = 64
	sendTimeout  = 5 * time.Second
)

type listenerState int

const (
	stateJoining listenerState = iota
	stateActive
	stateClosed
)

func (s listenerState) String() string {
	switch s {
	case stateJoining:
		return "joining"
	case stateActive:
		return "active"
	default:
		return "closed"
	}
}

// listener is one connected client. Its fields are owned by the
// coordinator loop; only the outbox and callback queues are touched by the
// listener's own goroutines.
type listener struct {
	id      string
	channel signaling.Channel
	peer    rtc.Peer
	sub     *feed.Subscription
	state   listenerState
	tracked bool
	logger  zerolog.Logger

	outbox    chan signaling.Message
	callbacks chan func()
	done      chan struct{}
}

func newListener(id string, ch signaling.Channel, logger zerolog.Logger) *listener {
	return &listener{
		id:        id,
		channel:   ch,
		state:     stateJoining,
		logger:    logger.With().Str("listener_id", id).Logger(),
		outbox:    make(chan signaling.Message, outboxSize),
		callbacks: make(chan func(), callbackSize),
		done:      make(chan struct{}),
	}
}

// run starts the writer and the callback pump. post hands a task to the
// coordinator loop and reports false once the loop is gone.
func (l *listener) run(post func(func()) bool) {
	go l.writeLoop()
	go l.pump(post)
}

// send queues msg for delivery. A full outbox drops the message for this
// listener only.
func (l *listener) send(msg signaling.Message) bool {
	if l.state == stateClosed {
		return false
	}
	select {
	case l.outbox <- msg:
		return true
	default:
		telemetry.DeliveryFailures.WithLabelValues("outbox_full").Inc()
		l.logger.Warn().Str("type", msg.Type).Msg("signaling outbox full, message dropped")
		return false
	}
}

func (l *listener) writeLoop() {
	for {
		select {
		case <-l.done:
			return
		case msg := <-l.outbox:
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			err := l.channel.Send(ctx, msg)
			cancel()
			if err != nil {
				telemetry.DeliveryFailures.WithLabelValues("signaling").Inc()
				l.logger.Warn().Err(err).Str("type", msg.Type).Msg("signaling send failed")
			}
		}
	}
}

// notify queues a peer callback. Peer handlers must not block, so a full
// queue drops the event.
func (l *listener) notify(fn func()) {
	select {
	case l.callbacks <- fn:
	default:
		l.logger.Warn().Msg("peer callback queue full, event dropped")
	}
}

func (l *listener) pump(post func(func()) bool) {
	for {
		select {
		case <-l.done:
			return
		case fn := <-l.callbacks:
			if !post(fn) {
				return
			}
		}
	}
}

// close releases the signaling channel and the peer connection. Failures
// are logged; the listener is gone either way.
func (l *listener) close() {
	if l.state == stateClosed {
		return
	}
	l.state = stateClosed
	close(l.done)

	if err := l.channel.Close(); err != nil {
		telemetry.DeliveryFailures.WithLabelValues("channel_close").Inc()
		l.logger.Debug().Err(err).Msg("close signaling channel")
	}
	if l.peer != nil {
		if err := l.peer.Close(); err != nil {
			telemetry.DeliveryFailures.WithLabelValues("peer_close").Inc()
			l.logger.Warn().Err(err).Msg("close peer connection")
		}
	}
}
