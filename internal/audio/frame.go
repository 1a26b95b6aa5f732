/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audio provides the fixed-shape PCM frames carried by a broadcast,
// the sources that produce them and the encoder that packs them for the wire.
package audio

import "time"

// Frame shape shared by every source. 960 samples at 48 kHz is 20 ms.
const (
	SampleRate      = 48000
	Channels        = 2
	SamplesPerFrame = 960
	BytesPerSample  = 2
	FrameDuration   = time.Duration(SamplesPerFrame) * time.Second / SampleRate
	FrameBytes      = SamplesPerFrame * Channels * BytesPerSample
)

// Frame is one 20 ms chunk of interleaved s16 stereo audio.
//
// Frames handed out by the feed are shared between subscribers and must be
// treated as read-only.
type Frame struct {
	// Samples holds SamplesPerFrame*Channels interleaved samples.
	Samples []int16

	// Timestamp is the presentation time in samples (48 kHz clock).
	Timestamp uint64

	// Payload is the encoded form of Samples, filled in once by the feed.
	Payload []byte

	// Silent marks frames produced by the silence generator.
	Silent bool
}

// SampleCount returns the number of samples per channel in the frame.
func (f *Frame) SampleCount() int {
	if f == nil {
		return 0
	}
	return len(f.Samples) / Channels
}

// Source produces frames in order. ReadFrame returns io.EOF once the source
// is exhausted; no further frames follow.
type Source interface {
	ReadFrame() (*Frame, error)
	Close() error
}
