package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPostRepository_CompareAndSetStatusIsExclusive(t *testing.T) {
	repo := NewMemoryPostRepository()
	due := time.Now().Add(-time.Second)
	id := repo.Insert(&models.Post{Platform: models.PlatformFacebook, Status: models.PostStatusScheduled, ScheduledFor: &due})

	const callers = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := repo.CompareAndSetStatus(context.Background(), id, models.PostStatusScheduled, models.PostStatusPublishing)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	post, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublishing, post.Status)
}

func TestMemoryPostRepository_Queries(t *testing.T) {
	repo := NewMemoryPostRepository()
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	dueID := repo.Insert(&models.Post{Status: models.PostStatusScheduled, ScheduledFor: &past})
	repo.Insert(&models.Post{Status: models.PostStatusScheduled, ScheduledFor: &future})
	failedID := repo.Insert(&models.Post{Status: models.PostStatusFailed, ErrorMessage: "rate limited"})

	due, err := repo.GetDueScheduled(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, dueID, due[0].ID)

	scheduled, err := repo.GetScheduled(context.Background())
	require.NoError(t, err)
	assert.Len(t, scheduled, 2)

	failed, err := repo.GetFailed(context.Background())
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, failedID, failed[0].ID)
}

func TestMemoryPostRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryPostRepository()
	id := repo.Insert(&models.Post{Status: models.PostStatusDraft, Content: "draft"})

	post, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	post.Content = "mutated"

	again, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "draft", again.Content)
}

func TestMemoryPostRepository_StalledPublishing(t *testing.T) {
	repo := NewMemoryPostRepository()
	clock := time.Now().Add(-2 * time.Hour)
	repo.now = func() time.Time { return clock }
	id := repo.Insert(&models.Post{Status: models.PostStatusPublishing})
	repo.now = time.Now

	stalled, err := repo.GetStalledPublishing(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, id, stalled[0].ID)
}
