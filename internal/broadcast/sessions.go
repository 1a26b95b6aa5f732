/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/friendsincode/encore/internal/events"
	"github.com/friendsincode/encore/internal/rtc"
	"github.com/friendsincode/encore/internal/signaling"
	"github.com/friendsincode/encore/internal/telemetry"
)

// Join registers a listener reachable over ch and returns its id. The
// listener is subscribed to the feed right away; its outbound track is
// attached now if the broadcast is playing, otherwise when it starts.
func (c *Coordinator) Join(ctx context.Context, ch signaling.Channel) (string, error) {
	id := uuid.NewString()
	var err error
	if cerr := c.call(ctx, func() { err = c.join(id, ch) }); cerr != nil {
		return "", cerr
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *Coordinator) join(id string, ch signaling.Channel) error {
	if c.phase == phaseStopped {
		return ErrCoordinatorStopped
	}

	l := newListener(id, ch, c.logger)
	peer, err := c.opts.Engine.NewPeer(c.ctx, rtc.Handlers{
		OnStateChange: func(state webrtc.PeerConnectionState) {
			l.notify(func() { c.onPeerState(id, state) })
		},
		OnCandidate: func(cand webrtc.ICECandidateInit) {
			l.notify(func() { c.sendTo(id, signaling.Candidate(cand)) })
		},
	})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	l.peer = peer
	l.sub = c.feed.Subscribe()
	l.state = stateActive
	c.listeners[id] = l
	l.run(c.post)

	if c.phase == phasePlaying || c.phase == phaseCompleted {
		c.attach(l)
	}

	telemetry.ListenersTotal.WithLabelValues(c.label).Inc()
	telemetry.ListenersActive.WithLabelValues(c.label).Set(float64(len(c.listeners)))
	c.publish(events.EventListenerJoined, events.Payload{"listener_id": id})
	l.logger.Info().Str("phase", c.phase.String()).Int("listeners", len(c.listeners)).Msg("listener joined")
	return nil
}

// attach adds the outbound track to l. A failure leaves l connected but
// without audio.
func (c *Coordinator) attach(l *listener) bool {
	if l.tracked {
		return true
	}
	if err := l.peer.AttachTrack(l.sub); err != nil {
		telemetry.DeliveryFailures.WithLabelValues("track").Inc()
		l.logger.Warn().Err(err).Msg("attach outbound track")
		return false
	}
	l.tracked = true
	return true
}

func (c *Coordinator) onPeerState(id string, state webrtc.PeerConnectionState) {
	l, ok := c.listeners[id]
	if !ok {
		return
	}
	l.logger.Debug().Str("state", state.String()).Msg("peer connection state changed")

	switch state {
	case webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed,
		webrtc.PeerConnectionStateDisconnected:
		c.removeListener(id, "peer "+state.String())
	}
}

func (c *Coordinator) sendTo(id string, msg signaling.Message) {
	if l, ok := c.listeners[id]; ok {
		l.send(msg)
	}
}

// active returns the listener for a signaling message of type msgType.
func (c *Coordinator) active(id, msgType string) (*listener, error) {
	l, ok := c.listeners[id]
	if !ok {
		return nil, &SignalingError{ListenerID: id, Type: msgType, Err: ErrUnknownListener}
	}
	if l.state != stateActive {
		return nil, &SignalingError{ListenerID: id, Type: msgType, Err: ErrListenerClosed}
	}
	return l, nil
}

// ReceiveOffer answers a listener's SDP offer.
func (c *Coordinator) ReceiveOffer(ctx context.Context, id string, offer webrtc.SessionDescription) error {
	var err error
	if cerr := c.call(ctx, func() { err = c.receiveOffer(id, offer) }); cerr != nil {
		return cerr
	}
	return err
}

func (c *Coordinator) receiveOffer(id string, offer webrtc.SessionDescription) error {
	l, err := c.active(id, signaling.TypeOffer)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		return &SignalingError{ListenerID: id, Type: signaling.TypeOffer, Err: err}
	}

	if err := l.peer.SetRemoteDescription(offer); err != nil {
		return fail(fmt.Errorf("set remote description: %w", err))
	}
	answer, err := l.peer.CreateAnswer()
	if err != nil {
		return fail(fmt.Errorf("create answer: %w", err))
	}
	if err := l.peer.SetLocalDescription(answer); err != nil {
		return fail(fmt.Errorf("set local description: %w", err))
	}
	l.send(signaling.Answer(answer))
	l.logger.Debug().Msg("offer answered")
	return nil
}

// ReceiveCandidate adds a remote ICE candidate. Candidates the peer rejects
// are logged and ignored.
func (c *Coordinator) ReceiveCandidate(ctx context.Context, id string, cand webrtc.ICECandidateInit) error {
	var err error
	if cerr := c.call(ctx, func() {
		var l *listener
		if l, err = c.active(id, signaling.TypeCandidate); err != nil {
			return
		}
		if aerr := l.peer.AddICECandidate(cand); aerr != nil {
			l.logger.Debug().Err(aerr).Str("candidate", cand.Candidate).Msg("ignoring rejected ICE candidate")
		}
	}); cerr != nil {
		return cerr
	}
	return err
}

// RemoveListener disconnects a listener. Removing an unknown listener, or
// removing after Stop, is a no-op.
func (c *Coordinator) RemoveListener(ctx context.Context, id string) error {
	err := c.call(ctx, func() { c.removeListener(id, "removed") })
	if errors.Is(err, ErrCoordinatorStopped) {
		return nil
	}
	return err
}

func (c *Coordinator) removeListener(id, reason string) {
	l, ok := c.listeners[id]
	if !ok {
		return
	}
	delete(c.listeners, id)
	c.feed.Unsubscribe(l.sub)
	l.close()

	if c.phase != phaseStopped {
		telemetry.ListenersActive.WithLabelValues(c.label).Set(float64(len(c.listeners)))
	}
	c.publish(events.EventListenerLeft, events.Payload{"listener_id": id, "reason": reason})
	l.logger.Info().Str("reason", reason).Uint64("frames_dropped", l.sub.Dropped()).Msg("listener removed")
}

// SendReaction relays emoji from one listener to every other listener.
func (c *Coordinator) SendReaction(ctx context.Context, emoji, from string) error {
	var err error
	if cerr := c.call(ctx, func() {
		if _, err = c.active(from, signaling.TypeEmoji); err != nil {
			return
		}
		msg := signaling.Emoji(emoji, from)
		delivered := 0
		for id, l := range c.listeners {
			if id == from || l.state != stateActive {
				continue
			}
			if l.send(msg) {
				delivered++
			}
		}
		telemetry.Reactions.Inc()
		c.publish(events.EventReaction, events.Payload{"listener_id": from, "emoji": emoji, "delivered": delivered})
	}); cerr != nil {
		return cerr
	}
	return err
}

// HandleMessage dispatches one inbound signaling message. Types the server
// does not act on are ignored.
func (c *Coordinator) HandleMessage(ctx context.Context, id string, msg signaling.Message) error {
	switch msg.Type {
	case signaling.TypeOffer:
		return c.ReceiveOffer(ctx, id, msg.SessionDescription())
	case signaling.TypeCandidate:
		return c.ReceiveCandidate(ctx, id, msg.ICECandidate())
	case signaling.TypeEmoji:
		return c.SendReaction(ctx, msg.Emoji, id)
	default:
		c.logger.Debug().Str("listener_id", id).Str("type", msg.Type).Msg("ignoring signaling message")
		return nil
	}
}

// Serve joins a listener on ch and processes its messages in arrival order
// until the channel closes, ctx ends or the coordinator stops. The listener
// is removed on return. Rejected messages are reported back to the listener
// and do not end the session.
func (c *Coordinator) Serve(ctx context.Context, ch signaling.Channel) error {
	id, err := c.Join(ctx, ch)
	if err != nil {
		ch.Close()
		return err
	}
	defer c.RemoveListener(context.Background(), id)

	for {
		msg, err := ch.Receive(ctx)
		switch {
		case err == nil:
		case errors.Is(err, signaling.ErrChannelClosed) || ctx.Err() != nil:
			return nil
		case errors.Is(err, signaling.ErrMalformedMessage):
			telemetry.SignalingErrors.WithLabelValues("malformed").Inc()
			c.logger.Warn().Err(err).Str("listener_id", id).Msg("malformed signaling message")
			serr := &SignalingError{ListenerID: id, Type: "malformed", Err: err}
			if cerr := c.call(ctx, func() { c.sendTo(id, signaling.Error(serr)) }); cerr != nil {
				return nil
			}
			continue
		default:
			return fmt.Errorf("receive from listener %s: %w", id, err)
		}

		herr := c.HandleMessage(ctx, id, msg)
		switch {
		case herr == nil:
		case errors.Is(herr, ErrCoordinatorStopped):
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			telemetry.SignalingErrors.WithLabelValues(msg.Type).Inc()
			c.logger.Warn().Err(herr).Str("listener_id", id).Msg("signaling message rejected")
			c.call(ctx, func() { c.sendTo(id, signaling.Error(herr)) })
		}
	}
}
