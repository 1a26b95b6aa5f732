/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package feed

import (
	"sync"
	"sync/atomic"

	"github.com/friendsincode/encore/internal/audio"
)

// Subscription is one subscriber's bounded queue of frames. Only the feed
// writes to it and only the owning listener reads from it.
type Subscription struct {
	id      uint64
	frames  chan *audio.Frame
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

func newSubscription(id uint64, depth int) *Subscription {
	return &Subscription{
		id:     id,
		frames: make(chan *audio.Frame, depth),
		done:   make(chan struct{}),
	}
}

// ID returns the subscription's feed-local identifier.
func (s *Subscription) ID() uint64 { return s.id }

// Frames delivers frames in production order.
func (s *Subscription) Frames() <-chan *audio.Frame { return s.frames }

// Done is closed once the subscription is removed from the feed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Dropped returns how many frames were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Drain discards everything currently queued and returns the number of
// frames removed.
func (s *Subscription) Drain() int {
	n := 0
	for {
		select {
		case <-s.frames:
			n++
		default:
			return n
		}
	}
}

// push enqueues f, evicting the oldest queued frame when full. It never
// blocks and reports whether a frame was evicted.
func (s *Subscription) push(f *audio.Frame) bool {
	evicted := false
	for {
		select {
		case s.frames <- f:
			return evicted
		default:
		}
		select {
		case <-s.frames:
			s.dropped.Add(1)
			evicted = true
		default:
		}
	}
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.done) })
}
