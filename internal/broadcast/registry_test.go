/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/encore/internal/events"
)

func newTestRegistry(t *testing.T, created *atomic.Int32) *Registry {
	t.Helper()
	h := &harness{
		engine:   &fakeEngine{},
		compiler: &fakeCompiler{dir: t.TempDir(), frames: 10},
		sched:    &fakeScheduler{},
		bus:      events.NewBus(),
	}
	base := NewOptionsFactory(h.options(), zerolog.Nop())
	r := NewRegistry(func(id int64) (*Coordinator, error) {
		created.Add(1)
		// Widen the window for concurrent first access.
		time.Sleep(5 * time.Millisecond)
		return base(id)
	}, zerolog.Nop())
	t.Cleanup(func() { r.CloseAll(context.Background()) })
	return r
}

func TestRegistryCreatesOncePerConcert(t *testing.T) {
	var created atomic.Int32
	r := newTestRegistry(t, &created)

	const callers = 32
	results := make([]*Coordinator, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := r.Get(9)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			results[i] = c
		}(i)
	}
	wg.Wait()

	if n := created.Load(); n != 1 {
		t.Fatalf("factory called %d times, want 1", n)
	}
	for i, c := range results {
		if c != results[0] {
			t.Fatalf("caller %d got a different coordinator", i)
		}
	}
	if again, _ := r.Get(9); again != results[0] {
		t.Fatal("repeated lookup returned a new coordinator")
	}
	if r.Lookup(9) != results[0] || r.Lookup(10) != nil {
		t.Fatal("Lookup mismatch")
	}
}

func TestRegistryRemove(t *testing.T) {
	var created atomic.Int32
	r := newTestRegistry(t, &created)
	ctx := context.Background()

	first, err := r.Get(3)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Remove(ctx, 3); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if r.Lookup(3) != nil {
		t.Fatal("coordinator still registered")
	}
	if st, _ := first.Status(ctx); st.State != "stopped" {
		t.Fatalf("removed coordinator state = %s", st.State)
	}
	if err := r.Remove(ctx, 3); err != nil {
		t.Fatalf("second Remove: %v", err)
	}

	second, err := r.Get(3)
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Fatal("Get after Remove returned the stopped coordinator")
	}
}

func TestRegistryFactoryError(t *testing.T) {
	r := NewRegistry(func(int64) (*Coordinator, error) { return nil, errBroken }, zerolog.Nop())

	if _, err := r.Get(1); !errors.Is(err, errBroken) {
		t.Fatalf("Get = %v, want factory error", err)
	}
	if r.Lookup(1) != nil {
		t.Fatal("failed creation was registered")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	var created atomic.Int32
	r := newTestRegistry(t, &created)
	ctx := context.Background()

	var all []*Coordinator
	for _, id := range []int64{3, 1, 2} {
		c, err := r.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, c)
	}
	if ids := r.IDs(); len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("IDs = %v", ids)
	}

	if err := r.CloseAll(ctx); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if len(r.IDs()) != 0 {
		t.Fatal("registry not empty after CloseAll")
	}
	for _, c := range all {
		if st, _ := c.Status(ctx); st.State != "stopped" {
			t.Fatalf("concert %d state = %s", c.ConcertID(), st.State)
		}
	}
}
