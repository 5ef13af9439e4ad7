package media

import (
	"errors"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
)

var (
	ErrSourceUnreachable  = errors.New("media source unreachable")
	ErrAccessRestricted   = errors.New("media access restricted")
	ErrFormatUnsupported  = errors.New("media format unsupported")
	ErrSizeExceedsLimit   = errors.New("media size exceeds limit")
	errStalled            = errors.New("download stalled")
	errHTMLInsteadOfMedia = errors.New("received an html page instead of media")
)

// AcquisitionError wraps one of the sentinel kinds above with the source
// that produced it. Match with errors.Is(err, ErrAccessRestricted).
type AcquisitionError struct {
	Kind   error
	Source models.SourceKind
	URL    string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Source, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Kind, e.Source)
}

func (e *AcquisitionError) Is(target error) bool {
	return target == e.Kind
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

func unreachable(err error) error {
	return &AcquisitionError{Kind: ErrSourceUnreachable, Err: err}
}

func restricted(err error) error {
	return &AcquisitionError{Kind: ErrAccessRestricted, Err: err}
}

func unsupported(err error) error {
	return &AcquisitionError{Kind: ErrFormatUnsupported, Err: err}
}

func tooLarge(err error) error {
	return &AcquisitionError{Kind: ErrSizeExceedsLimit, Err: err}
}
