package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher completes every attempt it is handed and counts them.
type recordingPublisher struct {
	posts repository.PostRepository
	mu    sync.Mutex
	calls map[int64]int
}

func newRecordingPublisher(posts repository.PostRepository) *recordingPublisher {
	return &recordingPublisher{posts: posts, calls: make(map[int64]int)}
}

func (p *recordingPublisher) Publish(ctx context.Context, postID int64) error {
	p.mu.Lock()
	p.calls[postID]++
	p.mu.Unlock()

	now := time.Now()
	_, err := p.posts.CompareAndUpdate(ctx, postID, models.PostStatusPublishing, models.PostFields{
		Status:         models.StatusPtr(models.PostStatusPublished),
		PlatformPostID: models.StringPtr(fmt.Sprintf("remote-%d", postID)),
		PublishedAt:    &now,
	})
	return err
}

func (p *recordingPublisher) Calls(postID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[postID]
}

func newTestScheduler(posts repository.PostRepository, pub Publisher, opts Options) (*Scheduler, *Dispatcher) {
	claimer := NewClaimer(posts, repository.NewMemoryClaimRepository(), time.Minute)
	dispatcher := NewDispatcher(pub, claimer, 4)
	return New(posts, claimer, dispatcher, opts), dispatcher
}

func scheduledPost(at time.Time) *models.Post {
	return &models.Post{
		Platform:     models.PlatformFacebook,
		AccountID:    1,
		Content:      "launch day",
		Status:       models.PostStatusScheduled,
		ScheduledFor: &at,
	}
}

func TestRegisterRejectsPastAndMissingTimes(t *testing.T) {
	posts := repository.NewMemoryPostRepository()
	s, _ := newTestScheduler(posts, newRecordingPublisher(posts), Options{})

	past := scheduledPost(time.Now().Add(-time.Minute))
	past.ID = 1
	err := s.Register(context.Background(), past)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	var se *ScheduleError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(1), se.PostID)

	missing := &models.Post{ID: 2, Status: models.PostStatusScheduled}
	assert.ErrorIs(t, s.Register(context.Background(), missing), ErrInvalidSchedule)

	draft := scheduledPost(time.Now().Add(time.Hour))
	draft.ID = 3
	draft.Status = models.PostStatusDraft
	assert.ErrorIs(t, s.Register(context.Background(), draft), ErrInvalidSchedule)

	assert.ErrorIs(t, s.Register(context.Background(), nil), ErrInvalidSchedule)
}

func TestRegisterIsIdempotentAndReschedules(t *testing.T) {
	posts := repository.NewMemoryPostRepository()
	s, _ := newTestScheduler(posts, newRecordingPublisher(posts), Options{})
	defer s.Stop()

	at := time.Now().Add(time.Hour)
	post := scheduledPost(at)
	post.ID = posts.Insert(post)

	require.NoError(t, s.Register(context.Background(), post))
	require.NoError(t, s.Register(context.Background(), post))
	assert.Equal(t, 1, s.timer.(*localTimer).Pending())

	later := at.Add(time.Hour)
	post.ScheduledFor = &later
	require.NoError(t, s.Register(context.Background(), post))
	got, ok := s.Registered(post.ID)
	require.True(t, ok)
	assert.True(t, got.Equal(later))
	assert.Equal(t, 1, s.timer.(*localTimer).Pending())

	s.Cancel(post.ID)
	_, ok = s.Registered(post.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, s.timer.(*localTimer).Pending())

	// Cancelling an unknown id is a no-op.
	s.Cancel(12345)
}

func TestRegisterBeyondHorizonLeavesTimerUnarmed(t *testing.T) {
	posts := repository.NewMemoryPostRepository()
	s, _ := newTestScheduler(posts, newRecordingPublisher(posts), Options{TimerHorizon: time.Hour})
	defer s.Stop()

	post := scheduledPost(time.Now().Add(48 * time.Hour))
	post.ID = posts.Insert(post)

	require.NoError(t, s.Register(context.Background(), post))
	_, ok := s.Registered(post.ID)
	assert.True(t, ok)
	assert.Equal(t, 0, s.timer.(*localTimer).Pending())
}

// A post scheduled one second out is published after one sweep interval.
func TestScheduledPostIsPublishedAfterOneInterval(t *testing.T) {
	posts := repository.NewMemoryPostRepository()
	pub := newRecordingPublisher(posts)
	s, dispatcher := newTestScheduler(posts, pub, Options{SweepInterval: time.Second})

	post := scheduledPost(time.Now().Add(time.Second))
	post.ID = posts.Insert(post)
	require.NoError(t, s.Register(context.Background(), post))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	require.Eventually(t, func() bool {
		got, err := posts.GetByID(context.Background(), post.ID)
		return err == nil && got.Status == models.PostStatusPublished
	}, 5*time.Second, 50*time.Millisecond)

	// Let the sweep tick after the timer fired; it must lose the claim.
	time.Sleep(1200 * time.Millisecond)
	dispatcher.Wait()

	got, err := posts.GetByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("remote-%d", post.ID), got.PlatformPostID)
	assert.Equal(t, 1, pub.Calls(post.ID))
}

// Two concurrent claims on one post: exactly one wins.
func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	posts := repository.NewMemoryPostRepository()
	claimer := NewClaimer(posts, repository.NewMemoryClaimRepository(), time.Minute)
	post := scheduledPost(time.Now().Add(-time.Second))
	id := posts.Insert(post)

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claim, result, err := claimer.Claim(context.Background(), id, models.PostStatusScheduled)
			assert.NoError(t, err)
			if result == Claimed {
				assert.NotNil(t, claim)
				wins.Add(1)
			} else {
				assert.Nil(t, claim)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestSweepAndTimerOverlapPublishOnce(t *testing.T) {
	posts := repository.NewMemoryPostRepository()
	pub := newRecordingPublisher(posts)
	s, dispatcher := newTestScheduler(posts, pub, Options{})

	var ids []int64
	for i := 0; i < 20; i++ {
		ids = append(ids, posts.Insert(scheduledPost(time.Now().Add(-time.Second))))
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Sweep(context.Background()))
		}()
	}
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.Fire(context.Background(), id)
		}(id)
	}
	wg.Wait()
	dispatcher.Wait()

	for _, id := range ids {
		assert.Equal(t, 1, pub.Calls(id), "post %d", id)
		got, err := posts.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.PostStatusPublished, got.Status)
	}
}

func TestFireIgnoresPostsNotYetDue(t *testing.T) {
	posts := repository.NewMemoryPostRepository()
	pub := newRecordingPublisher(posts)
	s, dispatcher := newTestScheduler(posts, pub, Options{})

	id := posts.Insert(scheduledPost(time.Now().Add(time.Hour)))
	s.Fire(context.Background(), id)
	dispatcher.Wait()

	assert.Equal(t, 0, pub.Calls(id))
	got, err := posts.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusScheduled, got.Status)
}

// flakyPosts fails the first due-post listing.
type flakyPosts struct {
	repository.PostRepository
	failures atomic.Int32
}

func (f *flakyPosts) GetDueScheduled(ctx context.Context, now time.Time) ([]*models.Post, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection refused")
	}
	return f.PostRepository.GetDueScheduled(ctx, now)
}

func TestSweepErrorDoesNotStopLaterSweeps(t *testing.T) {
	mem := repository.NewMemoryPostRepository()
	posts := &flakyPosts{PostRepository: mem}
	posts.failures.Store(1)
	pub := newRecordingPublisher(mem)
	s, dispatcher := newTestScheduler(posts, pub, Options{})

	id := mem.Insert(scheduledPost(time.Now().Add(-time.Second)))

	require.Error(t, s.Sweep(context.Background()))
	require.NoError(t, s.Sweep(context.Background()))
	dispatcher.Wait()

	assert.Equal(t, 1, pub.Calls(id))
}

func TestStalledPublishingIsFlaggedNotReclaimed(t *testing.T) {
	posts := repository.NewMemoryPostRepository()
	pub := newRecordingPublisher(posts)
	s, dispatcher := newTestScheduler(posts, pub, Options{StallThreshold: time.Minute})
	s.now = func() time.Time { return time.Now().Add(time.Hour) }

	id := posts.Insert(&models.Post{Platform: models.PlatformYoutube, Status: models.PostStatusPublishing})

	require.NoError(t, s.Sweep(context.Background()))
	dispatcher.Wait()

	assert.Equal(t, 0, pub.Calls(id))
	got, err := posts.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublishing, got.Status)
}

func TestRebuildArmsFuturePostsOnly(t *testing.T) {
	posts := repository.NewMemoryPostRepository()
	s, _ := newTestScheduler(posts, newRecordingPublisher(posts), Options{})
	defer s.Stop()

	futureID := posts.Insert(scheduledPost(time.Now().Add(time.Hour)))
	dueID := posts.Insert(scheduledPost(time.Now().Add(-time.Hour)))

	require.NoError(t, s.Rebuild(context.Background()))

	_, ok := s.Registered(futureID)
	assert.True(t, ok)
	_, ok = s.Registered(dueID)
	assert.False(t, ok)
}

func TestClaimReleasedAfterPublish(t *testing.T) {
	posts := repository.NewMemoryPostRepository()
	claims := repository.NewMemoryClaimRepository()
	claimer := NewClaimer(posts, claims, time.Minute)
	pub := newRecordingPublisher(posts)
	dispatcher := NewDispatcher(pub, claimer, 1)
	id := posts.Insert(scheduledPost(time.Now().Add(-time.Second)))

	claim, result, err := claimer.Claim(context.Background(), id, models.PostStatusScheduled)
	require.NoError(t, err)
	require.Equal(t, Claimed, result)

	held, err := claims.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.Equal(t, claim.Owner, held.Owner)

	dispatcher.Dispatch(context.Background(), claim)
	dispatcher.Wait()

	held, err = claims.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, held)
}
