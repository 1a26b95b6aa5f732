/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// maxPacketSize is the upper bound libopus recommends for one packet.
const maxPacketSize = 4000

// Encoder packs a frame's samples for transmission.
type Encoder interface {
	Encode(samples []int16) ([]byte, error)
}

// OpusConfig tunes the Opus encoder.
type OpusConfig struct {
	Bitrate int  // bits per second, 0 keeps the libopus default
	FEC     bool // in-band forward error correction
}

// OpusEncoder encodes 20 ms stereo frames with libopus.
type OpusEncoder struct {
	enc *opus.Encoder
	buf []byte
}

// NewOpusEncoder creates an encoder for the broadcast frame shape.
func NewOpusEncoder(cfg OpusConfig) (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(SampleRate, Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if cfg.Bitrate > 0 {
		if err := enc.SetBitrate(cfg.Bitrate); err != nil {
			return nil, fmt.Errorf("set opus bitrate: %w", err)
		}
	}
	if err := enc.SetInBandFEC(cfg.FEC); err != nil {
		return nil, fmt.Errorf("set opus fec: %w", err)
	}
	return &OpusEncoder{enc: enc, buf: make([]byte, maxPacketSize)}, nil
}

// Encode implements Encoder. The returned slice is owned by the caller.
// OpusEncoder is not safe for concurrent use; the feed calls it from a
// single goroutine.
func (e *OpusEncoder) Encode(samples []int16) ([]byte, error) {
	n, err := e.enc.Encode(samples, e.buf)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, nil
}
