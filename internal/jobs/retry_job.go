package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron"
)

var retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "postflow_retries_total",
	Help: "Retry claims of failed posts by result.",
}, []string{"result"})

// RetryJob re-runs the full publish path for failed posts. There is no
// attempt cap and no backoff: every failed post is retried on every run.
type RetryJob struct {
	posts      repository.PostRepository
	claimer    *scheduler.Claimer
	dispatcher *scheduler.Dispatcher

	mu   sync.Mutex
	cron *cron.Cron
}

func NewRetryJob(posts repository.PostRepository, claimer *scheduler.Claimer, dispatcher *scheduler.Dispatcher) *RetryJob {
	return &RetryJob{
		posts:      posts,
		claimer:    claimer,
		dispatcher: dispatcher,
	}
}

// Run claims each failed post (failed → publishing) and dispatches it. It
// returns the number of posts dispatched.
func (j *RetryJob) Run(ctx context.Context) (int, error) {
	failed, err := j.posts.GetFailed(ctx)
	if err != nil {
		slog.Info(err.Error())
		return 0, fmt.Errorf("list failed posts: %w", err)
	}

	dispatched := 0
	for _, post := range failed {
		claim, result, err := j.claimer.Claim(ctx, post.ID, models.PostStatusFailed)
		if err != nil {
			retriesTotal.WithLabelValues("error").Inc()
			slog.Error("retry claim failed", "post_id", post.ID, "error", err)
			continue
		}
		retriesTotal.WithLabelValues(result.String()).Inc()
		if result == scheduler.AlreadyClaimed {
			continue
		}
		slog.Info("retrying failed post", "post_id", post.ID, "platform", post.Platform, "last_error", post.ErrorMessage)
		j.dispatcher.Dispatch(ctx, claim)
		dispatched++
	}
	return dispatched, nil
}

// RunScheduled starts a cron entry that calls Run every interval.
func (j *RetryJob) RunScheduled(ctx context.Context, interval string) error {
	c := cron.New()
	if err := c.AddFunc("@every "+interval, func() {
		n, err := j.Run(ctx)
		if err != nil {
			slog.Error("retry run failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("retry run dispatched posts", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("schedule retry job: %w", err)
	}

	j.mu.Lock()
	j.cron = c
	j.mu.Unlock()
	c.Start()
	return nil
}

func (j *RetryJob) Stop() {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()

	if c != nil {
		c.Stop()
	}
}
