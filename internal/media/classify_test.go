package media

import (
	"testing"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := map[string]models.SourceKind{
		"https://drive.google.com/file/d/1AbC-xyz/view?usp=sharing": models.SourceDrive,
		"https://drive.google.com/open?id=1AbC":                     models.SourceDrive,
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ":               models.SourceYoutube,
		"https://youtu.be/dQw4w9WgXcQ":                              models.SourceYoutube,
		"https://vimeo.com/123456":                                  models.SourceVimeo,
		"https://www.dropbox.com/s/abc/clip.mp4?dl=0":               models.SourceDropbox,
		"https://www.instagram.com/reel/Cxyz/":                      models.SourcePlatform,
		"https://cdn.example.com/videos/clip.mp4":                   models.SourceDirect,
		"s3://postflow/uploads/clip.mp4":                            models.SourceStored,
		"https://pub-123.r2.dev/abc":                                models.SourceStored,
	}
	for raw, want := range cases {
		assert.Equal(t, want, Classify(raw, "https://pub-123.r2.dev"), raw)
	}
}

func TestDriveFileID(t *testing.T) {
	id, ok := DriveFileID("https://drive.google.com/file/d/1AbC-xyz_9/view?usp=sharing")
	assert.True(t, ok)
	assert.Equal(t, "1AbC-xyz_9", id)

	id, ok = DriveFileID("https://drive.google.com/open?id=0Bq1")
	assert.True(t, ok)
	assert.Equal(t, "0Bq1", id)

	_, ok = DriveFileID("https://drive.google.com/drive/folders")
	assert.False(t, ok)
}

func TestDropboxDirectURL(t *testing.T) {
	assert.Equal(t, "https://www.dropbox.com/s/abc/clip.mp4?dl=1", DropboxDirectURL("https://www.dropbox.com/s/abc/clip.mp4?dl=0"))
	assert.Equal(t, "https://dl.dropboxusercontent.com/s/abc/clip.mp4", DropboxDirectURL("https://dl.dropboxusercontent.com/s/abc/clip.mp4"))
}
