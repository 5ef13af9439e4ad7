package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

type Worker struct {
	firer Firer
}

func NewWorker(firer Firer) *Worker {
	return &Worker{firer: firer}
}

func (w *Worker) HandleSchedulePostTask(ctx context.Context, task *asynq.Task) error {
	var payload SchedulePostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", TaskTypeSchedulePost, asynq.SkipRetry)
	}

	w.firer.Fire(ctx, payload.PostID)

	return nil
}

func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeSchedulePost, w.HandleSchedulePostTask)
}
