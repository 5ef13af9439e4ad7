package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyPublisher fails each post's first attempt and succeeds afterwards.
type flakyPublisher struct {
	posts repository.PostRepository
	mu    sync.Mutex
	calls map[int64]int
}

func (p *flakyPublisher) Publish(ctx context.Context, postID int64) error {
	p.mu.Lock()
	p.calls[postID]++
	n := p.calls[postID]
	p.mu.Unlock()

	if n == 1 {
		_, err := p.posts.CompareAndUpdate(ctx, postID, models.PostStatusPublishing, models.PostFields{
			Status:       models.StatusPtr(models.PostStatusFailed),
			ErrorMessage: models.StringPtr("temporary outage"),
		})
		if err != nil {
			return err
		}
		return errors.New("temporary outage")
	}
	_, err := p.posts.CompareAndUpdate(ctx, postID, models.PostStatusPublishing, models.PostFields{
		Status:         models.StatusPtr(models.PostStatusPublished),
		PlatformPostID: models.StringPtr("remote-1"),
		ErrorMessage:   models.StringPtr(""),
		PublishedAt:    models.TimePtr(time.Now()),
	})
	return err
}

func (p *flakyPublisher) Calls(id int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

func newRetryFixture() (*repository.MemoryPostRepository, *flakyPublisher, *scheduler.Claimer, *scheduler.Dispatcher) {
	posts := repository.NewMemoryPostRepository()
	pub := &flakyPublisher{posts: posts, calls: make(map[int64]int)}
	claimer := scheduler.NewClaimer(posts, repository.NewMemoryClaimRepository(), time.Minute)
	return posts, pub, claimer, scheduler.NewDispatcher(pub, claimer, 2)
}

// A post that fails once is published by the next retry run, which also clears its error.
func TestFailedPostIsRetriedAndPublished(t *testing.T) {
	posts, pub, claimer, dispatcher := newRetryFixture()
	id := posts.Insert(&models.Post{Platform: models.PlatformFacebook, Status: models.PostStatusPublishing})

	require.Error(t, pub.Publish(context.Background(), id))
	got, _ := posts.GetByID(context.Background(), id)
	require.Equal(t, models.PostStatusFailed, got.Status)
	require.Equal(t, "temporary outage", got.ErrorMessage)

	job := NewRetryJob(posts, claimer, dispatcher)
	n, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	dispatcher.Wait()

	got, _ = posts.GetByID(context.Background(), id)
	assert.Equal(t, models.PostStatusPublished, got.Status)
	assert.Equal(t, "remote-1", got.PlatformPostID)
	assert.Empty(t, got.ErrorMessage)
	assert.NotNil(t, got.PublishedAt)
	assert.Equal(t, 2, pub.Calls(id))
}

func TestRetrySkipsPostsThatAreNotFailed(t *testing.T) {
	posts, pub, claimer, dispatcher := newRetryFixture()
	at := time.Now().Add(time.Hour)
	scheduled := posts.Insert(&models.Post{Status: models.PostStatusScheduled, ScheduledFor: &at})
	publishing := posts.Insert(&models.Post{Status: models.PostStatusPublishing})

	n, err := NewRetryJob(posts, claimer, dispatcher).Run(context.Background())
	require.NoError(t, err)
	dispatcher.Wait()

	assert.Zero(t, n)
	assert.Zero(t, pub.Calls(scheduled))
	assert.Zero(t, pub.Calls(publishing))
}

func TestConcurrentRetryRunsClaimOnce(t *testing.T) {
	posts, pub, claimer, dispatcher := newRetryFixture()
	var ids []int64
	for i := 0; i < 10; i++ {
		ids = append(ids, posts.Insert(&models.Post{Status: models.PostStatusFailed}))
	}
	// First attempts already happened; every retry now succeeds.
	for _, id := range ids {
		pub.calls[id] = 1
	}

	job := NewRetryJob(posts, claimer, dispatcher)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := job.Run(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	dispatcher.Wait()

	for _, id := range ids {
		assert.Equal(t, 2, pub.Calls(id), "post %d", id)
	}
}

type brokenPosts struct {
	repository.PostRepository
}

func (brokenPosts) GetFailed(ctx context.Context) ([]*models.Post, error) {
	return nil, errors.New("connection reset")
}

func TestRetryRunReportsListError(t *testing.T) {
	posts, _, claimer, dispatcher := newRetryFixture()
	_, err := NewRetryJob(brokenPosts{posts}, claimer, dispatcher).Run(context.Background())
	assert.ErrorContains(t, err, "list failed posts")
}

func TestRunScheduledRejectsBadInterval(t *testing.T) {
	posts, _, claimer, dispatcher := newRetryFixture()
	job := NewRetryJob(posts, claimer, dispatcher)
	assert.Error(t, job.RunScheduled(context.Background(), "soon"))
	job.Stop()
}
