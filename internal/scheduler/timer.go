package scheduler

import (
	"context"
	"sync"
	"time"
)

// Timer arms a one-shot trigger per post id. Scheduling an id that is
// already armed replaces the previous trigger.
type Timer interface {
	Schedule(postID int64, at time.Time) error
	Cancel(postID int64) error
}

type localTimer struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
	fire   func(ctx context.Context, postID int64)
}

func newLocalTimer(fire func(ctx context.Context, postID int64)) *localTimer {
	return &localTimer{
		timers: make(map[int64]*time.Timer),
		fire:   fire,
	}
}

func (t *localTimer) Schedule(postID int64, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[postID]; ok {
		existing.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(time.Until(at), func() {
		t.mu.Lock()
		if t.timers[postID] == timer {
			delete(t.timers, postID)
		}
		t.mu.Unlock()
		t.fire(context.Background(), postID)
	})
	t.timers[postID] = timer
	return nil
}

func (t *localTimer) Cancel(postID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[postID]; ok {
		existing.Stop()
		delete(t.timers, postID)
	}
	return nil
}

func (t *localTimer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

func (t *localTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
