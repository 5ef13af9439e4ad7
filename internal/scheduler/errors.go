package scheduler

import (
	"errors"
	"fmt"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

// ScheduleError is returned synchronously to the caller of Register.
type ScheduleError struct {
	PostID int64
	Reason string
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("post %d: %s", e.PostID, e.Reason)
}

func (e *ScheduleError) Unwrap() error {
	return ErrInvalidSchedule
}
