/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestOnceScheduleFiresOnce(t *testing.T) {
	now := time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"future", now.Add(time.Hour), now.Add(time.Hour)},
		{"past runs immediately", now.Add(-time.Hour), now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &onceSchedule{at: tt.at}
			if got := s.Next(now); !got.Equal(tt.want) {
				t.Fatalf("first Next = %v, want %v", got, tt.want)
			}
			if got := s.Next(now); !got.IsZero() {
				t.Fatalf("second Next = %v, want zero", got)
			}
		})
	}
}

func TestCronSchedulerRunsJob(t *testing.T) {
	s := NewCronScheduler(time.UTC, zerolog.Nop())
	s.Start()
	defer s.Stop()

	fired := make(chan struct{})
	job, err := s.AddJob(time.Now().Add(-time.Second), func() { close(fired) })
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}

	if err := job.Remove(); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("Remove after run = %v, want ErrJobNotFound", err)
	}
}

func TestCronSchedulerRemoveBeforeRun(t *testing.T) {
	s := NewCronScheduler(time.UTC, zerolog.Nop())
	s.Start()
	defer s.Stop()

	var fired atomic.Bool
	job, err := s.AddJob(time.Now().Add(time.Hour), func() { fired.Store(true) })
	if err != nil {
		t.Fatal(err)
	}
	if s.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", s.Pending())
	}
	if err := job.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := job.Remove(); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("second Remove = %v, want ErrJobNotFound", err)
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d after Remove", s.Pending())
	}
	if fired.Load() {
		t.Fatal("removed job fired")
	}
}

// fakeScheduler records jobs and fires them on demand.
type fakeScheduler struct {
	jobs []*fakeJob
}

type fakeJob struct {
	runAt   time.Time
	fn      func()
	removed bool
	ran     bool
}

func (j *fakeJob) RunAt() time.Time { return j.runAt }

func (j *fakeJob) Remove() error {
	if j.removed || j.ran {
		return ErrJobNotFound
	}
	j.removed = true
	return nil
}

func (s *fakeScheduler) AddJob(runAt time.Time, fn func()) (Job, error) {
	j := &fakeJob{runAt: runAt, fn: fn}
	s.jobs = append(s.jobs, j)
	return j, nil
}

func (s *fakeScheduler) fire(i int) {
	j := s.jobs[i]
	j.ran = true
	j.fn()
}

func TestTriggerReplacesJob(t *testing.T) {
	fs := &fakeScheduler{}
	var calls int
	tr := NewTrigger(fs, func() { calls++ })

	first := time.Date(2026, 7, 1, 19, 0, 0, 0, time.UTC)
	second := first.Add(30 * time.Minute)

	if err := tr.Schedule(first); err != nil {
		t.Fatal(err)
	}
	if err := tr.Schedule(second); err != nil {
		t.Fatal(err)
	}

	if !fs.jobs[0].removed {
		t.Fatal("first job not removed on reschedule")
	}
	at, ok := tr.ScheduledAt()
	if !ok || !at.Equal(second) {
		t.Fatalf("ScheduledAt = %v, %v", at, ok)
	}

	fs.fire(1)
	if calls != 1 {
		t.Fatalf("trigger fn called %d times", calls)
	}
	if _, ok := tr.ScheduledAt(); ok {
		t.Fatal("trigger still armed after firing")
	}
}

func TestTriggerCancelIsIdempotent(t *testing.T) {
	fs := &fakeScheduler{}
	tr := NewTrigger(fs, func() {})

	if err := tr.Cancel(); err != nil {
		t.Fatalf("Cancel on idle trigger: %v", err)
	}
	if err := tr.Schedule(time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	// The job vanished underneath us, as when it already ran.
	fs.jobs[0].ran = true

	if err := tr.Cancel(); err != nil {
		t.Fatalf("Cancel of vanished job: %v", err)
	}
	if err := tr.Cancel(); err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
}
