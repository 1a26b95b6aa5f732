/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rtc drives per-listener WebRTC peer connections using Pion.
package rtc

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/friendsincode/encore/internal/feed"
)

// ErrPeerClosed is returned by operations on a closed peer.
var ErrPeerClosed = errors.New("peer connection closed")

// Handlers receive peer events. Both may be called from Pion's goroutines
// and must not block.
type Handlers struct {
	OnStateChange func(webrtc.PeerConnectionState)
	OnCandidate   func(webrtc.ICECandidateInit)
}

// Engine creates peer connections.
type Engine interface {
	NewPeer(ctx context.Context, h Handlers) (Peer, error)
}

// Peer is one listener's peer connection.
type Peer interface {
	SetRemoteDescription(sdp webrtc.SessionDescription) error
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(sdp webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	// AttachTrack adds the outbound audio track and starts writing frames
	// from sub to it. Attaching twice is a no-op.
	AttachTrack(sub *feed.Subscription) error
	Close() error
}

// Config holds engine configuration.
type Config struct {
	STUNServer   string // STUN server URL (set via ENCORE_WEBRTC_STUN_URL)
	TURNServer   string // TURN server URL (optional)
	TURNUsername string // TURN username
	TURNPassword string // TURN password
	StreamID     string // media stream id announced to listeners (default: "encore")
}

// PionEngine creates Pion peer connections sharing one MediaEngine.
type PionEngine struct {
	api    *webrtc.API
	config Config
	logger zerolog.Logger
}

// NewPionEngine creates an engine with Opus registered.
func NewPionEngine(cfg Config, logger zerolog.Logger) (*PionEngine, error) {
	if cfg.StreamID == "" {
		cfg.StreamID = "encore"
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}

	i := &interceptor.Registry{}
	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create pli interceptor: %w", err)
	}
	i.Add(pli)

	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	return &PionEngine{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i)),
		config: cfg,
		logger: logger.With().Str("component", "rtc").Logger(),
	}, nil
}

// ICEServers returns the configured STUN/TURN servers.
func (e *PionEngine) ICEServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if e.config.STUNServer != "" {
		servers = append(servers, webrtc.ICEServer{URLs: []string{e.config.STUNServer}})
	}
	// TURN for listeners behind strict NATs
	if e.config.TURNServer != "" {
		turn := webrtc.ICEServer{URLs: []string{e.config.TURNServer}}
		if e.config.TURNUsername != "" {
			turn.Username = e.config.TURNUsername
			turn.Credential = e.config.TURNPassword
			turn.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, turn)
	}
	return servers
}

// NewPeer creates a peer connection and registers h.
func (e *PionEngine) NewPeer(ctx context.Context, h Handlers) (Peer, error) {
	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.ICEServers()})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	if h.OnCandidate != nil {
		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil {
				return
			}
			h.OnCandidate(c.ToJSON())
		})
	}
	if h.OnStateChange != nil {
		pc.OnConnectionStateChange(h.OnStateChange)
	}

	ctx, cancel := context.WithCancel(ctx)
	return &pionPeer{
		pc:       pc,
		streamID: e.config.StreamID,
		ctx:      ctx,
		cancel:   cancel,
		logger:   e.logger,
	}, nil
}
