/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Trigger holds at most one pending job. Scheduling replaces the previous
// job; cancelling a job that already ran is not an error.
type Trigger struct {
	scheduler Scheduler
	fn        func()

	mu  sync.Mutex
	job Job
}

// NewTrigger creates a trigger that calls fn when its job fires.
func NewTrigger(s Scheduler, fn func()) *Trigger {
	return &Trigger{scheduler: s, fn: fn}
}

// Schedule arms the trigger for at, replacing any pending job.
func (t *Trigger) Schedule(at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.cancelLocked(); err != nil {
		return err
	}

	var job Job
	job, err := t.scheduler.AddJob(at, func() {
		t.mu.Lock()
		if t.job == job {
			t.job = nil
		}
		t.mu.Unlock()
		t.fn()
	})
	if err != nil {
		return fmt.Errorf("add job: %w", err)
	}
	t.job = job
	return nil
}

// Cancel removes the pending job, if any.
func (t *Trigger) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelLocked()
}

func (t *Trigger) cancelLocked() error {
	if t.job == nil {
		return nil
	}
	err := t.job.Remove()
	t.job = nil
	if err != nil && !errors.Is(err, ErrJobNotFound) {
		return fmt.Errorf("remove job: %w", err)
	}
	return nil
}

// ScheduledAt returns the pending run time.
func (t *Trigger) ScheduledAt() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job == nil {
		return time.Time{}, false
	}
	return t.job.RunAt(), true
}
