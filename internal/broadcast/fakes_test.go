/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package broadcast

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/friendsincode/encore/internal/audio"
	"github.com/friendsincode/encore/internal/events"
	"github.com/friendsincode/encore/internal/feed"
	"github.com/friendsincode/encore/internal/playlist"
	"github.com/friendsincode/encore/internal/rtc"
	"github.com/friendsincode/encore/internal/schedule"
	"github.com/friendsincode/encore/internal/signaling"
)

type fakePeer struct {
	mu           sync.Mutex
	handlers     rtc.Handlers
	remote       webrtc.SessionDescription
	local        webrtc.SessionDescription
	candidates   []webrtc.ICECandidateInit
	candidateErr error
	remoteErr    error
	attachErr    error
	sub          *feed.Subscription
	attached     int
	closed       int
}

func (p *fakePeer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remoteErr != nil && sdp.SDP == "bad" {
		return p.remoteErr
	}
	p.remote = sdp
	return nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-for-" + p.remote.SDP}, nil
}

func (p *fakePeer) SetLocalDescription(sdp webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = sdp
	return nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.candidateErr != nil {
		return p.candidateErr
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) AttachTrack(sub *feed.Subscription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attachErr != nil {
		return p.attachErr
	}
	p.sub = sub
	p.attached++
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePeer) attachCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) subscription() *feed.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sub
}

func (p *fakePeer) candidateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.candidates)
}

type fakeEngine struct {
	mu        sync.Mutex
	peers     []*fakePeer
	configure func(i int, p *fakePeer)
}

func (e *fakeEngine) NewPeer(_ context.Context, h rtc.Handlers) (rtc.Peer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := &fakePeer{handlers: h}
	if e.configure != nil {
		e.configure(len(e.peers), p)
	}
	e.peers = append(e.peers, p)
	return p, nil
}

func (e *fakeEngine) peer(i int) *fakePeer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peers[i]
}

type fakeChannel struct {
	mu      sync.Mutex
	sent    []signaling.Message
	sendErr error
	closed  bool

	in      chan signaling.Message
	recvErr chan error
	done    chan struct{}
	once    sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		in:      make(chan signaling.Message, 16),
		recvErr: make(chan error, 4),
		done:    make(chan struct{}),
	}
}

func (c *fakeChannel) Send(_ context.Context, msg signaling.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return signaling.ErrChannelClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) Receive(ctx context.Context) (signaling.Message, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case err := <-c.recvErr:
		return signaling.Message{}, err
	case <-c.done:
		return signaling.Message{}, signaling.ErrChannelClosed
	case <-ctx.Done():
		return signaling.Message{}, ctx.Err()
	}
}

func (c *fakeChannel) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) messages(msgType string) []signaling.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []signaling.Message
	for _, m := range c.sent {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeChannel) count(msgType string) int {
	return len(c.messages(msgType))
}

type fakePlaylists struct {
	locations []string
	err       error
}

func (p fakePlaylists) Playlist(context.Context, int64) ([]string, error) {
	return p.locations, p.err
}

// fakeCompiler writes frames of non-silent PCM to dir.
type fakeCompiler struct {
	mu     sync.Mutex
	dir    string
	frames int
	err    error
	gate   chan struct{}
	calls  int
	paths  []string
}

func (c *fakeCompiler) Compile(ctx context.Context, locations []string) (*playlist.Resource, error) {
	c.mu.Lock()
	c.calls++
	gate, cerr, n := c.gate, c.err, c.calls
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if cerr != nil {
		return nil, cerr
	}

	path := filepath.Join(c.dir, "compiled-"+strconv.Itoa(n)+".pcm")
	data := bytes.Repeat([]byte{1}, c.frames*audio.FrameBytes)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
	return &playlist.Resource{Path: path, Size: int64(len(data))}, nil
}

func (c *fakeCompiler) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeCompiler) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *fakeCompiler) compiled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

type fakeJob struct {
	mu      sync.Mutex
	runAt   time.Time
	fn      func()
	removed bool
}

func (j *fakeJob) RunAt() time.Time { return j.runAt }

func (j *fakeJob) Remove() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.removed {
		return schedule.ErrJobNotFound
	}
	j.removed = true
	return nil
}

func (j *fakeJob) isRemoved() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.removed
}

type fakeScheduler struct {
	mu   sync.Mutex
	jobs []*fakeJob
}

func (s *fakeScheduler) AddJob(runAt time.Time, fn func()) (schedule.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &fakeJob{runAt: runAt, fn: fn}
	s.jobs = append(s.jobs, j)
	return j, nil
}

// fire runs the newest pending job the way the cron runner does: the entry
// is gone before the job body runs.
func (s *fakeScheduler) fire(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	var job *fakeJob
	for i := len(s.jobs) - 1; i >= 0; i-- {
		if !s.jobs[i].isRemoved() {
			job = s.jobs[i]
			break
		}
	}
	s.mu.Unlock()
	if job == nil {
		t.Fatal("no pending job to fire")
	}
	job.Remove()
	job.fn()
}

func (s *fakeScheduler) all() []*fakeJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeJob(nil), s.jobs...)
}

type harness struct {
	c        *Coordinator
	engine   *fakeEngine
	compiler *fakeCompiler
	sched    *fakeScheduler
	bus      *events.Bus
}

func (h *harness) options() Options {
	return Options{
		Engine:        h.engine,
		Compiler:      h.compiler,
		Playlists:     fakePlaylists{locations: []string{"opener.flac", "s3://media/closer.flac"}},
		Scheduler:     h.sched,
		Bus:           h.bus,
		QueueDepth:    1000,
		FrameInterval: 2 * time.Millisecond,
	}
}

func newHarness(t *testing.T, frames int) *harness {
	t.Helper()
	h := &harness{
		engine:   &fakeEngine{},
		compiler: &fakeCompiler{dir: t.TempDir(), frames: frames},
		sched:    &fakeScheduler{},
		bus:      events.NewBus(),
	}
	c, err := New(7, h.options(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.c = c
	t.Cleanup(func() { c.Stop(context.Background()) })
	return h
}

func (h *harness) join(t *testing.T) (string, *fakeChannel) {
	t.Helper()
	ch := newFakeChannel()
	id, err := h.c.Join(context.Background(), ch)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	return id, ch
}

func (h *harness) status(t *testing.T) Status {
	t.Helper()
	st, err := h.c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	return st
}

// subscription returns the feed subscription of a listener.
func (h *harness) subscription(t *testing.T, id string) *feed.Subscription {
	t.Helper()
	var sub *feed.Subscription
	if err := h.c.call(context.Background(), func() {
		if l, ok := h.c.listeners[id]; ok {
			sub = l.sub
		}
	}); err != nil {
		t.Fatal(err)
	}
	if sub == nil {
		t.Fatalf("listener %s has no subscription", id)
	}
	return sub
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errBroken = errors.New("broken")
