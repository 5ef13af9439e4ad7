package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// Publisher runs one publish attempt for a post that is already claimed.
type Publisher interface {
	Publish(ctx context.Context, postID int64) error
}

// Dispatcher runs publish attempts off the caller's goroutine. Dispatch
// never blocks; concurrency is bounded inside the spawned goroutine.
type Dispatcher struct {
	publisher Publisher
	claimer   *Claimer
	sem       chan struct{}
	wg        sync.WaitGroup
}

func NewDispatcher(publisher Publisher, claimer *Claimer, concurrency int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Dispatcher{
		publisher: publisher,
		claimer:   claimer,
		sem:       make(chan struct{}, concurrency),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, claim *models.ScheduleClaim) {
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.sem <- struct{}{}
		defer func() { <-d.sem }()

		start := time.Now()
		err := d.publisher.Publish(ctx, claim.PostID)
		d.claimer.Release(ctx, claim)
		if err != nil {
			slog.Info("publish attempt failed", "post_id", claim.PostID, "error", err, "elapsed", time.Since(start))
			return
		}
		slog.Info("publish attempt finished", "post_id", claim.PostID, "elapsed", time.Since(start))
	}()
}

// Wait blocks until every dispatched attempt has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
