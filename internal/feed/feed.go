/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package feed implements the single decode-once, deliver-to-many audio
// pipeline of a broadcast.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/encore/internal/audio"
	"github.com/friendsincode/encore/internal/telemetry"
)

// ErrAlreadyPlaying is returned when a second source is attached.
var ErrAlreadyPlaying = errors.New("feed already has a playing source")

// ErrSourceFailed is returned once the playing source has failed too many
// reads in a row. The feed is then complete.
var ErrSourceFailed = errors.New("playlist source failed")

const (
	defaultQueueDepth = 50

	// maxReadFailures is one second of consecutive failed reads.
	maxReadFailures = 50
)

// Config holds feed configuration.
type Config struct {
	Label      string        // metrics label, usually the concert id
	QueueDepth int           // frames buffered per subscriber (default: 50, one second)
	Interval   time.Duration // pacing interval (default: audio.FrameDuration)
}

// Feed pulls one frame per tick from the active source and hands the same
// frame to every subscriber. Before a source is attached it plays silence.
type Feed struct {
	cfg     Config
	encoder audio.Encoder
	logger  zerolog.Logger

	// produceMu serialises frame production and source switching.
	produceMu sync.Mutex
	silence   *audio.SilenceGenerator
	source    audio.Source
	clock     uint64
	exhausted bool
	failures  int
	completed chan struct{}

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a feed in the silent state. encoder may be nil, in which case
// frames carry no payload.
func New(cfg Config, encoder audio.Encoder, logger zerolog.Logger) *Feed {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.Interval <= 0 {
		cfg.Interval = audio.FrameDuration
	}
	return &Feed{
		cfg:       cfg,
		encoder:   encoder,
		logger:    logger.With().Str("component", "feed").Str("concert_id", cfg.Label).Logger(),
		silence:   audio.NewSilenceGenerator(0),
		completed: make(chan struct{}),
		subs:      make(map[uint64]*Subscription),
	}
}

// Subscribe registers a new subscriber. It receives every frame produced
// from now on; earlier frames are not replayed.
func (f *Feed) Subscribe() *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	sub := newSubscription(f.nextID, f.cfg.QueueDepth)
	f.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes sub. Calling it more than once is harmless.
func (f *Feed) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	f.mu.Lock()
	delete(f.subs, sub.id)
	f.mu.Unlock()
	sub.close()
}

// Subscribers returns the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// SetSource switches the feed from silence to src. The feed clock carries
// on from the last silent frame.
func (f *Feed) SetSource(src audio.Source) error {
	f.produceMu.Lock()
	defer f.produceMu.Unlock()

	if f.source != nil || f.exhausted {
		return ErrAlreadyPlaying
	}
	f.source = src
	f.logger.Info().Uint64("timestamp", f.clock).Msg("feed switched to playlist source")
	return nil
}

// Playing reports whether a playlist source is attached.
func (f *Feed) Playing() bool {
	f.produceMu.Lock()
	defer f.produceMu.Unlock()
	return f.source != nil
}

// Completed is closed when the playing source reaches end of stream.
func (f *Feed) Completed() <-chan struct{} { return f.completed }

// Clock returns the timestamp the next frame will carry.
func (f *Feed) Clock() uint64 {
	f.produceMu.Lock()
	defer f.produceMu.Unlock()
	return f.clock
}

// ProduceNext produces one frame and delivers it to every subscriber. It
// returns io.EOF once the playing source is exhausted, and ErrSourceFailed
// when the source keeps failing.
func (f *Feed) ProduceNext() (*audio.Frame, error) {
	f.produceMu.Lock()
	defer f.produceMu.Unlock()

	if f.exhausted {
		return nil, io.EOF
	}

	kind := "silence"
	var (
		frame *audio.Frame
		err   error
	)
	if f.source != nil {
		kind = "playlist"
		frame, err = f.source.ReadFrame()
		if errors.Is(err, io.EOF) {
			f.finish()
			f.logger.Info().Uint64("timestamp", f.clock).Msg("playlist source exhausted")
			return nil, io.EOF
		}
		if err != nil {
			f.failures++
			if f.failures >= maxReadFailures {
				f.finish()
				f.logger.Error().Err(err).Int("failures", f.failures).Msg("playlist source failed, ending broadcast")
				return nil, fmt.Errorf("%w: %w", ErrSourceFailed, err)
			}
			if f.failures == 1 {
				f.logger.Warn().Err(err).Msg("playlist read failed")
			}
			return nil, fmt.Errorf("read frame: %w", err)
		}
		f.failures = 0
	} else {
		frame, _ = f.silence.ReadFrame()
	}

	// Rewrite onto the feed clock so receivers see one continuous timeline
	// across the silence to playlist switch. The clock only moves for frames
	// that are delivered.
	frame.Timestamp = f.clock
	if f.encoder != nil {
		payload, err := f.encoder.Encode(frame.Samples)
		if err != nil {
			return nil, fmt.Errorf("encode frame at %d: %w", frame.Timestamp, err)
		}
		frame.Payload = payload
	}
	f.clock += uint64(frame.SampleCount())

	f.fanOut(frame)
	telemetry.FramesProduced.WithLabelValues(f.cfg.Label, kind).Inc()
	return frame, nil
}

// finish marks the feed complete. Callers hold produceMu.
func (f *Feed) finish() {
	f.exhausted = true
	close(f.completed)
}

func (f *Feed) fanOut(frame *audio.Frame) {
	f.mu.RLock()
	subs := make([]*Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.RUnlock()

	dropped := 0
	for _, sub := range subs {
		if sub.push(frame) {
			dropped++
		}
	}
	if dropped > 0 {
		telemetry.FramesDropped.WithLabelValues(f.cfg.Label).Add(float64(dropped))
	}
}

// Start launches the pacing loop. It is a no-op if the loop is running.
func (f *Feed) Start(ctx context.Context) {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	if f.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(ctx, f.done)
}

// Stop cancels the pacing loop and waits for it to exit, so no frame is
// produced after Stop returns.
func (f *Feed) Stop() {
	f.runMu.Lock()
	cancel, done := f.cancel, f.done
	f.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (f *Feed) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	f.logger.Debug().Dur("interval", f.cfg.Interval).Msg("feed pacing loop started")
	for {
		select {
		case <-ctx.Done():
			f.logger.Debug().Msg("feed pacing loop stopped")
			return
		case <-ticker.C:
			if _, err := f.ProduceNext(); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, ErrSourceFailed) {
					return
				}
				f.logger.Debug().Err(err).Msg("frame production failed")
			}
		}
	}
}
