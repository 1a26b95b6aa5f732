/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package signaling defines the listener signaling protocol and its
// websocket transport.
package signaling

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// Message types.
const (
	TypeOffer       = "offer"
	TypeAnswer      = "answer"
	TypeCandidate   = "candidate"
	TypeEmoji       = "emoji"
	TypeRenegotiate = "renegotiate"
	TypeError       = "error"
)

var (
	// ErrChannelClosed is returned by Send and Receive after Close.
	ErrChannelClosed = errors.New("signaling channel closed")
	// ErrMalformedMessage is returned by Receive for a frame that does not
	// decode. The channel stays open.
	ErrMalformedMessage = errors.New("malformed signaling message")
)

// Message is the flat JSON envelope exchanged with listeners.
type Message struct {
	Type string `json:"type"`

	// offer, answer
	SDP string `json:"sdp,omitempty"`

	// candidate
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`

	// emoji
	Emoji string `json:"emoji,omitempty"`
	From  string `json:"from,omitempty"`

	Error string `json:"error,omitempty"`
}

// SessionDescription converts an offer or answer to Pion's form.
func (m Message) SessionDescription() webrtc.SessionDescription {
	sdpType := webrtc.SDPTypeOffer
	if m.Type == TypeAnswer {
		sdpType = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: sdpType, SDP: m.SDP}
}

// ICECandidate converts a candidate message to Pion's form.
func (m Message) ICECandidate() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     m.Candidate,
		SDPMid:        m.SDPMid,
		SDPMLineIndex: m.SDPMLineIndex,
	}
}

// Answer builds an answer message.
func Answer(sdp webrtc.SessionDescription) Message {
	return Message{Type: TypeAnswer, SDP: sdp.SDP}
}

// Candidate builds a candidate message.
func Candidate(c webrtc.ICECandidateInit) Message {
	return Message{
		Type:          TypeCandidate,
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

// Emoji builds a reaction message attributed to from.
func Emoji(emoji, from string) Message {
	return Message{Type: TypeEmoji, Emoji: emoji, From: from}
}

// Renegotiate asks the listener to send a fresh offer.
func Renegotiate() Message {
	return Message{Type: TypeRenegotiate}
}

// Error reports a rejected message to the listener.
func Error(err error) Message {
	return Message{Type: TypeError, Error: err.Error()}
}

// Channel is a bidirectional, ordered message channel to one listener.
// Receive is called from a single reader goroutine.
type Channel interface {
	Send(ctx context.Context, msg Message) error
	Receive(ctx context.Context) (Message, error)
	Close() error
}
