/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package broadcast coordinates one live concert broadcast: a single decode
// pipeline fanned out to every connected listener, a silent pre-show, and a
// scheduled start.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/encore/internal/audio"
	"github.com/friendsincode/encore/internal/events"
	"github.com/friendsincode/encore/internal/feed"
	"github.com/friendsincode/encore/internal/playlist"
	"github.com/friendsincode/encore/internal/rtc"
	"github.com/friendsincode/encore/internal/schedule"
	"github.com/friendsincode/encore/internal/signaling"
	"github.com/friendsincode/encore/internal/telemetry"
)

// PlaylistSource returns the ordered asset locations of a concert.
type PlaylistSource interface {
	Playlist(ctx context.Context, concertID int64) ([]string, error)
}

// Options are the collaborators shared by every coordinator.
type Options struct {
	Engine    rtc.Engine
	Compiler  playlist.Compiler
	Playlists PlaylistSource
	Scheduler schedule.Scheduler
	Bus       *events.Bus // optional

	// NewEncoder builds the per-broadcast encoder. Nil leaves frames
	// unencoded, which is only useful in tests.
	NewEncoder func() (audio.Encoder, error)

	// OpenSource opens a compiled resource (default: audio.OpenPCM).
	OpenSource func(path string) (audio.Source, error)

	QueueDepth    int           // frames buffered per listener
	FrameInterval time.Duration // pacing interval (default: audio.FrameDuration)
}

type phase int

const (
	phaseSilent phase = iota
	phaseCompiling
	phasePlaying
	phaseCompleted
	phaseStopped
)

func (p phase) String() string {
	switch p {
	case phaseSilent:
		return "silent"
	case phaseCompiling:
		return "compiling"
	case phasePlaying:
		return "playing"
	case phaseCompleted:
		return "completed"
	default:
		return "stopped"
	}
}

// Status is a point-in-time view of a coordinator.
type Status struct {
	ConcertID   int64      `json:"concert_id"`
	State       string     `json:"state"`
	Started     bool       `json:"started"`
	Completed   bool       `json:"completed"`
	Listeners   int        `json:"listeners"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	FrameClock  uint64     `json:"frame_clock"`
}

// Coordinator owns the feed, the listener registry and the start/stop
// lifecycle of one concert. Fields after the loop marker are mutated only
// on the loop goroutine.
type Coordinator struct {
	concertID int64
	label     string
	opts      Options
	logger    zerolog.Logger

	feed    *feed.Feed
	trigger *schedule.Trigger

	ctx      context.Context
	cancel   context.CancelFunc
	tasks    chan func()
	loopDone chan struct{}

	// loop
	phase     phase
	listeners map[string]*listener
	source    audio.Source
	resource  *playlist.Resource
	waiters   []chan error
}

// New creates a coordinator in the silent state and starts its pacing loop.
func New(concertID int64, opts Options, logger zerolog.Logger) (*Coordinator, error) {
	switch {
	case opts.Engine == nil:
		return nil, errors.New("broadcast: rtc engine is required")
	case opts.Compiler == nil:
		return nil, errors.New("broadcast: playlist compiler is required")
	case opts.Playlists == nil:
		return nil, errors.New("broadcast: playlist source is required")
	case opts.Scheduler == nil:
		return nil, errors.New("broadcast: scheduler is required")
	}
	if opts.OpenSource == nil {
		opts.OpenSource = func(path string) (audio.Source, error) {
			return audio.OpenPCM(path)
		}
	}

	var encoder audio.Encoder
	if opts.NewEncoder != nil {
		enc, err := opts.NewEncoder()
		if err != nil {
			return nil, fmt.Errorf("create encoder: %w", err)
		}
		encoder = enc
	}

	label := strconv.FormatInt(concertID, 10)
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		concertID: concertID,
		label:     label,
		opts:      opts,
		logger:    logger.With().Str("component", "broadcast").Int64("concert_id", concertID).Logger(),
		feed: feed.New(feed.Config{
			Label:      label,
			QueueDepth: opts.QueueDepth,
			Interval:   opts.FrameInterval,
		}, encoder, logger),
		ctx:       ctx,
		cancel:    cancel,
		tasks:     make(chan func()),
		loopDone:  make(chan struct{}),
		listeners: make(map[string]*listener),
	}
	c.trigger = schedule.NewTrigger(opts.Scheduler, c.startFromSchedule)

	go c.loop()
	c.feed.Start(ctx)

	c.logger.Info().Msg("broadcast coordinator created")
	return c, nil
}

// ConcertID returns the concert this coordinator broadcasts.
func (c *Coordinator) ConcertID() int64 { return c.concertID }

func (c *Coordinator) loop() {
	defer close(c.loopDone)

	completed := c.feed.Completed()
	for {
		select {
		case <-c.ctx.Done():
			return
		case fn := <-c.tasks:
			fn()
		case <-completed:
			completed = nil
			c.complete()
		}
	}
}

// call runs fn on the loop and waits for it. Once the loop has accepted fn
// it runs to completion even if ctx is cancelled.
func (c *Coordinator) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case c.tasks <- task:
	case <-c.loopDone:
		return ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// post hands fn to the loop without waiting for it to run.
func (c *Coordinator) post(fn func()) bool {
	select {
	case c.tasks <- fn:
		return true
	case <-c.loopDone:
		return false
	}
}

// Start compiles the playlist and switches every listener from silence to
// the broadcast. It returns once the broadcast is playing or the start has
// failed. Calls made while a start is in progress share its outcome; calls
// after a successful start return nil.
func (c *Coordinator) Start(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "broadcast.start", telemetry.ConcertID(c.concertID))

	result := make(chan error, 1)
	if err := c.call(ctx, func() { c.requestStart(result) }); err != nil {
		telemetry.EndSpan(span, err)
		return err
	}

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	}
	telemetry.EndSpan(span, err)
	return err
}

func (c *Coordinator) startFromSchedule() {
	c.logger.Info().Msg("scheduled start fired")
	if err := c.Start(c.ctx); err != nil && !errors.Is(err, ErrCoordinatorStopped) {
		c.logger.Error().Err(err).Msg("scheduled start failed")
	}
}

func (c *Coordinator) requestStart(result chan error) {
	switch c.phase {
	case phasePlaying, phaseCompleted:
		result <- nil
	case phaseStopped:
		result <- ErrCoordinatorStopped
	case phaseCompiling:
		c.waiters = append(c.waiters, result)
	case phaseSilent:
		c.phase = phaseCompiling
		c.waiters = append(c.waiters, result)
		go c.compile()
	}
}

// compile runs off the loop and posts its result back.
func (c *Coordinator) compile() {
	started := time.Now()
	ctx, span := telemetry.StartSpan(c.ctx, "broadcast.compile", telemetry.ConcertID(c.concertID))

	res, src, err := c.prepare(ctx)
	telemetry.CompileDuration.Observe(time.Since(started).Seconds())
	telemetry.EndSpan(span, err)

	if !c.post(func() { c.finishStart(res, src, err) }) {
		releaseSource(src, res)
	}
}

func (c *Coordinator) prepare(ctx context.Context) (*playlist.Resource, audio.Source, error) {
	locations, err := c.opts.Playlists.Playlist(ctx, c.concertID)
	if err != nil {
		return nil, nil, fmt.Errorf("load playlist: %w", err)
	}
	res, err := c.opts.Compiler.Compile(ctx, locations)
	if err != nil {
		return nil, nil, err
	}
	src, err := c.opts.OpenSource(res.Path)
	if err != nil {
		res.Remove()
		return nil, nil, err
	}
	return res, src, nil
}

func releaseSource(src audio.Source, res *playlist.Resource) {
	if src != nil {
		src.Close()
	}
	if res != nil {
		res.Remove()
	}
}

func (c *Coordinator) finishStart(res *playlist.Resource, src audio.Source, err error) {
	if c.phase == phaseStopped {
		releaseSource(src, res)
		return
	}

	if err == nil {
		if err = c.feed.SetSource(src); err != nil {
			releaseSource(src, res)
		}
	}
	if err != nil {
		c.phase = phaseSilent
		cerr := &CompileError{ConcertID: c.concertID, Err: err}
		c.resolveWaiters(cerr)
		telemetry.BroadcastStarts.WithLabelValues("failed").Inc()
		c.publish(events.EventBroadcastFailed, events.Payload{"error": err.Error()})
		c.logger.Error().Err(err).Msg("broadcast start failed, staying silent")
		return
	}

	c.phase = phasePlaying
	c.source = src
	c.resource = res

	notified := 0
	for _, l := range c.listeners {
		if l.state != stateActive {
			continue
		}
		if c.attach(l) && l.send(signaling.Renegotiate()) {
			notified++
		}
	}

	c.resolveWaiters(nil)
	telemetry.BroadcastStarts.WithLabelValues("success").Inc()
	c.publish(events.EventBroadcastStarted, events.Payload{
		"listeners": notified,
		"timestamp": c.feed.Clock(),
	})
	c.logger.Info().
		Int("listeners", notified).
		Str("resource", res.Path).
		Int64("resource_bytes", res.Size).
		Msg("broadcast started")
}

func (c *Coordinator) resolveWaiters(err error) {
	for _, w := range c.waiters {
		w <- err
	}
	c.waiters = nil
}

// complete handles end of playlist. Listeners stay connected; the feed
// simply stops producing.
func (c *Coordinator) complete() {
	if c.phase != phasePlaying {
		return
	}
	c.phase = phaseCompleted
	telemetry.BroadcastCompletions.Inc()
	c.publish(events.EventBroadcastCompleted, events.Payload{"listeners": len(c.listeners)})
	c.logger.Info().Int("listeners", len(c.listeners)).Msg("broadcast completed")
}

// Stop tears the broadcast down: the pending start is cancelled, the pacing
// loop is stopped and awaited, the source is closed, every listener is
// removed and the compiled resource is deleted. Stopping twice is harmless;
// a stopped coordinator cannot be restarted.
func (c *Coordinator) Stop(ctx context.Context) error {
	err := c.call(ctx, c.shutdown)
	if errors.Is(err, ErrCoordinatorStopped) {
		return nil
	}
	return err
}

func (c *Coordinator) shutdown() {
	if c.phase == phaseStopped {
		return
	}
	prev := c.phase
	c.phase = phaseStopped

	if err := c.trigger.Cancel(); err != nil {
		c.logger.Warn().Err(err).Msg("cancel scheduled start")
	}

	c.feed.Stop()
	if c.source != nil {
		if err := c.source.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("close audio source")
		}
		c.source = nil
	}

	removed := len(c.listeners)
	for id := range c.listeners {
		c.removeListener(id, "coordinator stopped")
	}

	if c.resource != nil {
		if err := c.resource.Remove(); err != nil {
			c.logger.Warn().Err(err).Str("resource", c.resource.Path).Msg("remove compiled playlist")
		}
		c.resource = nil
	}

	c.resolveWaiters(ErrCoordinatorStopped)
	c.cancel()

	telemetry.ListenersActive.DeleteLabelValues(c.label)
	c.publish(events.EventBroadcastStopped, events.Payload{"previous_state": prev.String()})
	c.logger.Info().Str("previous_state", prev.String()).Int("listeners_removed", removed).Msg("broadcast stopped")
}

// ScheduleStart arms the start trigger for at, replacing any pending start.
// A time in the past fires immediately.
func (c *Coordinator) ScheduleStart(ctx context.Context, at time.Time) error {
	var err error
	if cerr := c.call(ctx, func() {
		if c.phase == phaseStopped {
			err = ErrCoordinatorStopped
			return
		}
		if err = c.trigger.Schedule(at); err != nil {
			return
		}
		c.publish(events.EventBroadcastScheduled, events.Payload{"start_time": at.UTC().Format(time.RFC3339)})
		c.logger.Info().Time("start_time", at).Msg("broadcast start scheduled")
	}); cerr != nil {
		return cerr
	}
	return err
}

// Status reports the coordinator state. A stopped coordinator reports the
// "stopped" state.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.call(ctx, func() { st = c.snapshot() })
	if errors.Is(err, ErrCoordinatorStopped) {
		return Status{ConcertID: c.concertID, State: phaseStopped.String()}, nil
	}
	return st, err
}

func (c *Coordinator) snapshot() Status {
	st := Status{
		ConcertID:  c.concertID,
		State:      c.phase.String(),
		Started:    c.phase == phasePlaying || c.phase == phaseCompleted,
		Completed:  c.phase == phaseCompleted,
		Listeners:  len(c.listeners),
		FrameClock: c.feed.Clock(),
	}
	if at, ok := c.trigger.ScheduledAt(); ok {
		st.ScheduledAt = &at
	}
	return st
}

func (c *Coordinator) publish(et events.EventType, payload events.Payload) {
	payload["concert_id"] = c.concertID
	c.opts.Bus.Publish(et, payload)
}
