package models

import (
	"os"
	"strings"
)

type SourceKind string

const (
	SourceDirect   SourceKind = "direct"
	SourceDrive    SourceKind = "drive"
	SourceVimeo    SourceKind = "vimeo"
	SourceDropbox  SourceKind = "dropbox"
	SourceYoutube  SourceKind = "youtube"
	SourcePlatform SourceKind = "platform"
	SourceStored   SourceKind = "stored"
)

type ValidationState string

const (
	ValidationUnknown ValidationState = "unknown"
	ValidationValid   ValidationState = "valid"
	ValidationInvalid ValidationState = "invalid"
)

// MediaAsset is a locally staged copy of a post's media. It lives for one
// publish attempt; Release removes the local file.
type MediaAsset struct {
	SourceURL     string
	SourceKind    SourceKind
	Path          string
	SizeBytes     int64
	MIME          string
	Extension     string
	Validation    ValidationState
	NeedsChunking bool
	Transcoded    bool
}

func (a *MediaAsset) IsVideo() bool {
	return strings.HasPrefix(a.MIME, "video/")
}

func (a *MediaAsset) Open() (*os.File, error) {
	return os.Open(a.Path)
}

func (a *MediaAsset) Release() error {
	if a == nil || a.Path == "" {
		return nil
	}
	err := os.Remove(a.Path)
	a.Path = ""
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
