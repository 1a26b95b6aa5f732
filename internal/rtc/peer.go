/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/friendsincode/encore/internal/feed"
)

const opusPayloadType = 111

type pionPeer struct {
	pc       *webrtc.PeerConnection
	streamID string
	ctx      context.Context
	cancel   context.CancelFunc
	logger   zerolog.Logger

	mu     sync.Mutex
	track  *webrtc.TrackLocalStaticRTP
	closed bool
	wg     sync.WaitGroup
}

func (p *pionPeer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(sdp)
}

func (p *pionPeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *pionPeer) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(sdp)
}

func (p *pionPeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

func (p *pionPeer) AttachTrack(sub *feed.Subscription) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPeerClosed
	}
	if p.track != nil {
		return nil
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio-"+uuid.NewString()[:8],
		p.streamID,
	)
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	p.track = track

	// Frames queued while the track was detached are stale.
	sub.Drain()

	p.wg.Add(2)
	go p.readRTCP(sender)
	go p.writeFrames(track, sub)
	return nil
}

// readRTCP drains incoming RTCP so interceptors keep running.
func (p *pionPeer) readRTCP(sender *webrtc.RTPSender) {
	defer p.wg.Done()
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (p *pionPeer) writeFrames(track *webrtc.TrackLocalStaticRTP, sub *feed.Subscription) {
	defer p.wg.Done()

	var seq uint16
	first := true
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-sub.Done():
			return
		case frame := <-sub.Frames():
			if len(frame.Payload) == 0 {
				continue
			}
			seq++
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					Marker:         first,
					PayloadType:    opusPayloadType,
					SequenceNumber: seq,
					Timestamp:      uint32(frame.Timestamp),
				},
				Payload: frame.Payload,
			}
			first = false
			if err := track.WriteRTP(pkt); err != nil {
				if errors.Is(err, io.ErrClosedPipe) {
					continue
				}
				p.logger.Debug().Err(err).Msg("track write error")
			}
		}
	}
}

func (p *pionPeer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	err := p.pc.Close()
	p.wg.Wait()
	return err
}
