/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import "sync"

// SilenceGenerator emits all-zero frames with a timestamp that advances by
// SamplesPerFrame on every call. It never runs out.
type SilenceGenerator struct {
	mu        sync.Mutex
	timestamp uint64
}

// NewSilenceGenerator creates a generator whose first frame is stamped start.
func NewSilenceGenerator(start uint64) *SilenceGenerator {
	return &SilenceGenerator{timestamp: start}
}

// ReadFrame implements Source.
func (g *SilenceGenerator) ReadFrame() (*Frame, error) {
	g.mu.Lock()
	ts := g.timestamp
	g.timestamp += SamplesPerFrame
	g.mu.Unlock()

	return &Frame{
		Samples:   make([]int16, SamplesPerFrame*Channels),
		Timestamp: ts,
		Silent:    true,
	}, nil
}

// Close implements Source. Silence has nothing to release.
func (g *SilenceGenerator) Close() error { return nil }
