package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron"
)

var (
	sweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_sweeps_total",
		Help: "Due-post sweeps by outcome.",
	}, []string{"outcome"})

	stalledPosts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "postflow_stalled_publishing_posts",
		Help: "Posts stuck in publishing past the stall threshold at the last sweep.",
	})

	armedTimers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "postflow_armed_timers",
		Help: "Per-post timers currently registered.",
	})
)

type Options struct {
	SweepInterval  time.Duration
	TimerHorizon   time.Duration
	StallThreshold time.Duration
}

type Option func(*Scheduler)

// WithTimer replaces the in-process timer, e.g. with a queue-backed one.
func WithTimer(t Timer) Option {
	return func(s *Scheduler) { s.timer = t }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler triggers publish attempts from two sources: a periodic sweep of
// the store and a per-post timer. Both funnel through Claimer, so whichever
// fires second loses the claim and does nothing.
type Scheduler struct {
	posts      repository.PostRepository
	claimer    *Claimer
	dispatcher *Dispatcher
	timer      Timer
	opts       Options
	now        func() time.Time

	mu         sync.Mutex
	registered map[int64]time.Time
	cron       *cron.Cron
}

func New(posts repository.PostRepository, claimer *Claimer, dispatcher *Dispatcher, opts Options, options ...Option) *Scheduler {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}
	if opts.TimerHorizon <= 0 {
		opts.TimerHorizon = 24 * time.Hour
	}
	s := &Scheduler{
		posts:      posts,
		claimer:    claimer,
		dispatcher: dispatcher,
		opts:       opts,
		now:        time.Now,
		registered: make(map[int64]time.Time),
	}
	for _, o := range options {
		o(s)
	}
	if s.timer == nil {
		s.timer = newLocalTimer(s.Fire)
	}
	return s
}

// Register arms the per-post timer for a scheduled post. Calling it again
// with the same due time is a no-op; a different due time re-arms.
func (s *Scheduler) Register(ctx context.Context, post *models.Post) error {
	if post == nil {
		return &ScheduleError{Reason: "post is nil"}
	}
	if post.Status != models.PostStatusScheduled {
		return &ScheduleError{PostID: post.ID, Reason: fmt.Sprintf("status is %s, want scheduled", post.Status)}
	}
	if post.ScheduledFor == nil {
		return &ScheduleError{PostID: post.ID, Reason: "scheduled time is missing"}
	}
	at := *post.ScheduledFor
	if !at.After(s.now()) {
		return &ScheduleError{PostID: post.ID, Reason: "scheduled time must be in the future"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.registered[post.ID]; ok && existing.Equal(at) {
		return nil
	}
	if err := s.timer.Cancel(post.ID); err != nil {
		slog.Warn("cancel previous timer", "post_id", post.ID, "error", err)
	}
	if at.Sub(s.now()) <= s.opts.TimerHorizon {
		if err := s.timer.Schedule(post.ID, at); err != nil {
			return fmt.Errorf("arm timer for post %d: %w", post.ID, err)
		}
	}
	s.registered[post.ID] = at
	armedTimers.Set(float64(len(s.registered)))
	slog.Debug("schedule registered", "post_id", post.ID, "scheduled_for", at)
	return nil
}

// Cancel removes the pending timer for id. Unknown ids are ignored.
func (s *Scheduler) Cancel(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.registered, id)
	armedTimers.Set(float64(len(s.registered)))
	if err := s.timer.Cancel(id); err != nil {
		slog.Warn("cancel timer", "post_id", id, "error", err)
	}
}

func (s *Scheduler) Registered(id int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.registered[id]
	return at, ok
}

// Fire is the per-post timer callback.
func (s *Scheduler) Fire(ctx context.Context, postID int64) {
	s.mu.Lock()
	at, ok := s.registered[postID]
	if ok && !at.After(s.now()) {
		delete(s.registered, postID)
		armedTimers.Set(float64(len(s.registered)))
	}
	s.mu.Unlock()

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		slog.Error("timer load post", "post_id", postID, "error", err)
		return
	}
	if post == nil || post.Status != models.PostStatusScheduled {
		slog.Debug("timer fired for post no longer scheduled", "post_id", postID)
		return
	}
	if post.ScheduledFor == nil || post.ScheduledFor.After(s.now()) {
		// Fired early or the post was moved later; the sweep or a new timer covers it.
		slog.Debug("timer fired before due time", "post_id", postID)
		return
	}
	s.tryClaim(ctx, postID, "timer")
}

// Sweep claims and dispatches every due scheduled post, then reports posts
// stuck in publishing. It returns once dispatch is done, not once publishing is.
func (s *Scheduler) Sweep(ctx context.Context) error {
	now := s.now()
	due, err := s.posts.GetDueScheduled(ctx, now)
	if err != nil {
		sweepsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("list due posts: %w", err)
	}
	for _, post := range due {
		s.mu.Lock()
		delete(s.registered, post.ID)
		s.mu.Unlock()
		s.tryClaim(ctx, post.ID, "sweep")
	}

	s.flagStalled(ctx, now)
	sweepsTotal.WithLabelValues("ok").Inc()
	return nil
}

func (s *Scheduler) flagStalled(ctx context.Context, now time.Time) {
	if s.opts.StallThreshold <= 0 {
		return
	}
	stalled, err := s.posts.GetStalledPublishing(ctx, now.Add(-s.opts.StallThreshold))
	if err != nil {
		slog.Error("list stalled posts", "error", err)
		return
	}
	stalledPosts.Set(float64(len(stalled)))
	for _, post := range stalled {
		// Not reclaimed: the original attempt may still be uploading.
		slog.Warn("post stuck in publishing", "post_id", post.ID, "platform", post.Platform,
			"since", post.UpdatedAt, "threshold", s.opts.StallThreshold)
	}
}

func (s *Scheduler) tryClaim(ctx context.Context, postID int64, trigger string) {
	claim, result, err := s.claimer.Claim(ctx, postID, models.PostStatusScheduled)
	if err != nil {
		claimsTotal.WithLabelValues(trigger, "error").Inc()
		slog.Error("claim failed", "post_id", postID, "trigger", trigger, "error", err)
		return
	}
	claimsTotal.WithLabelValues(trigger, result.String()).Inc()
	if result == AlreadyClaimed {
		slog.Debug("claim lost", "post_id", postID, "trigger", trigger)
		return
	}
	slog.Info("post claimed", "post_id", postID, "trigger", trigger, "owner", claim.Owner)
	s.dispatcher.Dispatch(ctx, claim)
}

// Start rebuilds timers from the store and begins the periodic sweep.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Rebuild(ctx); err != nil {
		return err
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.opts.SweepInterval)
	if err := c.AddFunc(spec, func() {
		if err := s.Sweep(ctx); err != nil {
			slog.Error("sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
	c.Start()

	if err := s.Sweep(ctx); err != nil {
		slog.Error("initial sweep failed", "error", err)
	}
	return nil
}

// Rebuild re-arms timers for every future scheduled post in the store.
// Posts already due are left to the sweep.
func (s *Scheduler) Rebuild(ctx context.Context) error {
	posts, err := s.posts.GetScheduled(ctx)
	if err != nil {
		return fmt.Errorf("load scheduled posts: %w", err)
	}
	armed := 0
	for _, post := range posts {
		if post.ScheduledFor == nil || !post.ScheduledFor.After(s.now()) {
			continue
		}
		if err := s.Register(ctx, post); err != nil {
			slog.Warn("rebuild timer", "post_id", post.ID, "error", err)
			continue
		}
		armed++
	}
	slog.Info("schedule registry rebuilt", "scheduled", len(posts), "armed", armed)
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}
	if stopper, ok := s.timer.(interface{ Stop() }); ok {
		stopper.Stop()
	}
}
