/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package broadcast

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Factory creates the coordinator for a concert.
type Factory func(concertID int64) (*Coordinator, error)

// Registry holds one coordinator per concert for the life of the process.
type Registry struct {
	factory Factory
	logger  zerolog.Logger

	group singleflight.Group

	mu           sync.RWMutex
	coordinators map[int64]*Coordinator
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory, logger zerolog.Logger) *Registry {
	return &Registry{
		factory:      factory,
		logger:       logger.With().Str("component", "broadcast-registry").Logger(),
		coordinators: make(map[int64]*Coordinator),
	}
}

// NewOptionsFactory returns a Factory building coordinators from shared
// options.
func NewOptionsFactory(opts Options, logger zerolog.Logger) Factory {
	return func(concertID int64) (*Coordinator, error) {
		return New(concertID, opts, logger)
	}
}

// Get returns the coordinator for concertID, creating it on first use.
// Concurrent first calls create exactly one coordinator.
func (r *Registry) Get(concertID int64) (*Coordinator, error) {
	if c := r.Lookup(concertID); c != nil {
		return c, nil
	}

	v, err, _ := r.group.Do(strconv.FormatInt(concertID, 10), func() (interface{}, error) {
		if c := r.Lookup(concertID); c != nil {
			return c, nil
		}
		c, err := r.factory(concertID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.coordinators[concertID] = c
		r.mu.Unlock()
		r.logger.Debug().Int64("concert_id", concertID).Msg("coordinator registered")
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Coordinator), nil
}

// Lookup returns the coordinator for concertID without creating one.
func (r *Registry) Lookup(concertID int64) *Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.coordinators[concertID]
}

// IDs returns the registered concert ids in ascending order.
func (r *Registry) IDs() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.coordinators))
	for id := range r.coordinators {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Remove stops and forgets the coordinator for concertID. Unknown ids are
// ignored.
func (r *Registry) Remove(ctx context.Context, concertID int64) error {
	r.mu.Lock()
	c, ok := r.coordinators[concertID]
	delete(r.coordinators, concertID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return c.Stop(ctx)
}

// CloseAll stops every coordinator concurrently.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	all := r.coordinators
	r.coordinators = make(map[int64]*Coordinator)
	r.mu.Unlock()

	var g errgroup.Group
	for _, c := range all {
		c := c
		g.Go(func() error { return c.Stop(ctx) })
	}
	err := g.Wait()
	r.logger.Info().Int("coordinators", len(all)).Msg("all broadcasts stopped")
	return err
}
