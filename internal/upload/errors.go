package upload

import (
	"errors"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
)

var ErrOffsetRewound = errors.New("platform moved the upload window backwards")

// SessionError reports where an upload stopped. HTTPStatus and
// PlatformMessage are filled when the transport error exposes them.
type SessionError struct {
	Phase           models.UploadPhase
	Chunk           int
	HTTPStatus      int
	PlatformMessage string
	Err             error
}

func (e *SessionError) Error() string {
	where := string(e.Phase)
	if e.Phase == models.UploadPhaseTransfer {
		where = fmt.Sprintf("%s chunk %d", e.Phase, e.Chunk)
	}
	if e.PlatformMessage != "" {
		return fmt.Sprintf("upload failed at %s (status %d): %s", where, e.HTTPStatus, e.PlatformMessage)
	}
	return fmt.Sprintf("upload failed at %s: %v", where, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

type httpStatuser interface {
	HTTPStatus() int
}

type platformMessager interface {
	PlatformMessage() string
}

func newSessionError(phase models.UploadPhase, chunk int, err error) *SessionError {
	se := &SessionError{Phase: phase, Chunk: chunk, Err: err}
	var hs httpStatuser
	if errors.As(err, &hs) {
		se.HTTPStatus = hs.HTTPStatus()
	}
	var pm platformMessager
	if errors.As(err, &pm) {
		se.PlatformMessage = pm.PlatformMessage()
	}
	return se
}
