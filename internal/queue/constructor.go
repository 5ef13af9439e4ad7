package queue

import (
	"context"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeSchedulePost = "schedule:post"
	DefaultQueue         = "default"
)

type SchedulePostPayload struct {
	PostID int64 `json:"post_id"`
}

// Firer receives due triggers; the scheduler implements it.
type Firer interface {
	Fire(ctx context.Context, postID int64)
}

// Queue is a per-post timer backed by asynq delayed tasks, so pending
// triggers survive a process restart and are shared across workers.
type Queue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queueName string
}

func NewQueue(redisConn asynq.RedisConnOpt) *Queue {
	return &Queue{
		client:    asynq.NewClient(redisConn),
		inspector: asynq.NewInspector(redisConn),
		queueName: DefaultQueue,
	}
}

func (q *Queue) Close() error {
	if err := q.inspector.Close(); err != nil {
		return err
	}
	return q.client.Close()
}
