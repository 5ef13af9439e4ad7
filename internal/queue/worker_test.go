package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedIDs struct {
	mu  sync.Mutex
	ids []int64
}

func (f *firedIDs) Fire(ctx context.Context, postID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, postID)
}

func TestHandleSchedulePostTaskFiresPost(t *testing.T) {
	fired := &firedIDs{}
	w := NewWorker(fired)

	payload, err := json.Marshal(SchedulePostPayload{PostID: 42})
	require.NoError(t, err)

	err = w.HandleSchedulePostTask(context.Background(), asynq.NewTask(TaskTypeSchedulePost, payload))
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, fired.ids)
}

func TestHandleSchedulePostTaskRejectsBadPayload(t *testing.T) {
	fired := &firedIDs{}
	w := NewWorker(fired)

	err := w.HandleSchedulePostTask(context.Background(), asynq.NewTask(TaskTypeSchedulePost, []byte("{")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Empty(t, fired.ids)
}

func TestTaskIDIsStablePerPost(t *testing.T) {
	assert.Equal(t, "post:7", taskID(7))
	assert.Equal(t, taskID(7), taskID(7))
}
