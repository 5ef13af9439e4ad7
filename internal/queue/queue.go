package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Schedule enqueues the post's trigger task to run at the given time,
// replacing any pending trigger for the same post.
func (q *Queue) Schedule(postID int64, at time.Time) error {
	if err := q.Cancel(postID); err != nil {
		return err
	}

	taskPayload, err := json.Marshal(SchedulePostPayload{PostID: postID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeSchedulePost, taskPayload)

	_, err = q.client.Enqueue(task,
		asynq.ProcessAt(at),
		asynq.TaskID(taskID(postID)),
		asynq.Queue(q.queueName),
		asynq.MaxRetry(0),
	)
	if err != nil {
		return fmt.Errorf("enqueue trigger for post %d: %w", postID, err)
	}

	slog.Debug("trigger task scheduled", "post_id", postID, "process_at", at)
	return nil
}

// Cancel deletes the pending trigger task. A missing task is not an error.
func (q *Queue) Cancel(postID int64) error {
	err := q.inspector.DeleteTask(q.queueName, taskID(postID))
	if err == nil || errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return fmt.Errorf("delete trigger for post %d: %w", postID, err)
}

func taskID(postID int64) string {
	return fmt.Sprintf("post:%d", postID)
}
