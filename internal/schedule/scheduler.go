/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule runs one-shot jobs at a wall-clock time on a cron runner.
package schedule

import (
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrJobNotFound is returned when removing a job that already ran or was
// removed.
var ErrJobNotFound = errors.New("scheduled job not found")

// Job is a handle to a scheduled job.
type Job interface {
	RunAt() time.Time
	Remove() error
}

// Scheduler runs fn once at runAt. A runAt in the past runs on the next
// scheduler tick.
type Scheduler interface {
	AddJob(runAt time.Time, fn func()) (Job, error)
}

// onceSchedule fires at a single instant and then never again.
type onceSchedule struct {
	mu    sync.Mutex
	at    time.Time
	fired bool
}

func (s *onceSchedule) Next(t time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fired {
		return time.Time{}
	}
	s.fired = true
	if s.at.Before(t) {
		return t
	}
	return s.at
}

// CronScheduler is a Scheduler backed by robfig/cron.
type CronScheduler struct {
	c      *cron.Cron
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewCronScheduler creates a scheduler. Call Start before jobs can fire.
func NewCronScheduler(loc *time.Location, logger zerolog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	logger = logger.With().Str("component", "scheduler").Logger()
	return &CronScheduler{
		c:      cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger{logger}))),
		logger: logger,
	}
}

// Start begins running jobs.
func (s *CronScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.c.Start()
	s.logger.Info().Msg("scheduler started")
}

// Stop halts the runner and waits for running jobs to finish.
func (s *CronScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.c.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// AddJob schedules fn to run once at runAt.
func (s *CronScheduler) AddJob(runAt time.Time, fn func()) (Job, error) {
	if fn == nil {
		return nil, errors.New("nil job")
	}

	j := &cronJob{sched: s, runAt: runAt}
	ready := make(chan struct{})
	j.id = s.c.Schedule(&onceSchedule{at: runAt}, cron.FuncJob(func() {
		<-ready
		// Drop the spent entry before running so Remove reports not found.
		s.c.Remove(j.id)
		fn()
	}))
	close(ready)

	s.logger.Debug().Time("run_at", runAt).Int("entry_id", int(j.id)).Msg("job scheduled")
	return j, nil
}

// Pending returns the number of jobs waiting to fire.
func (s *CronScheduler) Pending() int {
	return len(s.c.Entries())
}

type cronJob struct {
	sched *CronScheduler
	id    cron.EntryID
	runAt time.Time
}

func (j *cronJob) RunAt() time.Time { return j.runAt }

func (j *cronJob) Remove() error {
	if j.sched.c.Entry(j.id).ID == 0 {
		return ErrJobNotFound
	}
	j.sched.c.Remove(j.id)
	return nil
}

// cronLogger routes cron's panic recovery output to zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
