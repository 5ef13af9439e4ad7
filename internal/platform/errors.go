package platform

import (
	"errors"
	"fmt"
)

var (
	// ErrPlatformRejected covers every refusal by a platform API.
	ErrPlatformRejected = errors.New("platform rejected the request")

	ErrProcessingTimeout = errors.New("platform processing did not finish in time")
	ErrNotMaterialized   = fmt.Errorf("%w: published content not visible on the account", ErrPlatformRejected)
	ErrUnsupported       = fmt.Errorf("%w: post shape not supported", ErrPlatformRejected)
	ErrUnknownPlatform   = errors.New("unknown platform")
)

// PlatformError is a decoded API error. Message is what the platform said,
// UserMessage its end-user wording when provided.
type PlatformError struct {
	Platform    string
	Status      int
	Code        string
	Message     string
	UserMessage string
}

func (e *PlatformError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s api error %s (status %d): %s", e.Platform, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s api error (status %d): %s", e.Platform, e.Status, e.Message)
}

func (e *PlatformError) Unwrap() error {
	return ErrPlatformRejected
}

func (e *PlatformError) HTTPStatus() int {
	return e.Status
}

func (e *PlatformError) PlatformMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}
