package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/upload"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"
)

// youtubeVideo uploads small files with one multipart Videos.Insert and
// large ones over the resumable protocol: POST for a session URI, then
// ranged PUTs answered with 308 until the last one returns the video.
type youtubeVideo struct {
	yt   *Youtube
	svc  *youtube.Service
	http *http.Client
}

func (v *youtubeVideo) Name() string {
	return models.PlatformYoutube
}

func (v *youtubeVideo) video(meta upload.Metadata) *youtube.Video {
	privacy := meta.Privacy
	if privacy == "" {
		privacy = "public"
	}
	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			CategoryId:  v.yt.opts.CategoryID,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: privacy},
	}
}

func (v *youtubeVideo) UploadSingle(ctx context.Context, asset *models.MediaAsset, meta upload.Metadata) (string, error) {
	file, err := asset.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	resp, err := v.svc.Videos.Insert([]string{"snippet", "status"}, v.video(meta)).
		Media(file, googleapi.ChunkSize(0), googleapi.ContentType(asset.MIME)).
		Context(ctx).
		Do()
	if err != nil {
		return "", googleError(err)
	}
	return resp.Id, nil
}

func (v *youtubeVideo) StartSession(ctx context.Context, s *models.UploadSession, meta upload.Metadata) error {
	body, err := json.Marshal(v.video(meta))
	if err != nil {
		return err
	}
	endpoint := v.yt.opts.UploadURL + "?" + url.Values{
		"uploadType": {"resumable"},
		"part":       {"snippet,status"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(s.TotalSize, 10))
	req.Header.Set("X-Upload-Content-Type", s.MIME)

	resp, err := v.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return decodeGoogleError(resp.StatusCode, b)
	}
	s.SessionID = resp.Header.Get("Location")
	if s.SessionID == "" {
		return &PlatformError{Platform: models.PlatformYoutube, Status: resp.StatusCode, Message: "no resumable session uri"}
	}
	return nil
}

func (v *youtubeVideo) TransferChunk(ctx context.Context, s *models.UploadSession, chunk []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.SessionID, bytes.NewReader(chunk))
	if err != nil {
		return err
	}
	end := s.StartOffset + int64(len(chunk)) - 1
	req.ContentLength = int64(len(chunk))
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", s.StartOffset, end, s.TotalSize))

	resp, err := v.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPermanentRedirect:
		// Range reports what the server holds; resume right after it.
		next := persistedUpTo(resp.Header.Get("Range"))
		s.StartOffset = next
		s.EndOffset = min(next+s.ChunkSize, s.TotalSize)
		return nil
	case http.StatusOK, http.StatusCreated:
		var video youtube.Video
		if err := json.NewDecoder(resp.Body).Decode(&video); err != nil {
			return fmt.Errorf("decode uploaded video: %w", err)
		}
		s.RemoteID = video.Id
		s.StartOffset, s.EndOffset = s.TotalSize, s.TotalSize
		return nil
	default:
		b, _ := io.ReadAll(resp.Body)
		return decodeGoogleError(resp.StatusCode, b)
	}
}

func (v *youtubeVideo) FinishSession(ctx context.Context, s *models.UploadSession, meta upload.Metadata) (string, error) {
	if s.RemoteID == "" {
		return "", &PlatformError{Platform: models.PlatformYoutube, Status: http.StatusOK, Message: "upload completed without a video id"}
	}
	return s.RemoteID, nil
}

func (v *youtubeVideo) AbortSession(ctx context.Context, s *models.UploadSession) error {
	if s.SessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.SessionID, nil)
	if err != nil {
		return err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// persistedUpTo turns "bytes=0-1048575" into 1048576. No header means
// nothing was stored.
func persistedUpTo(header string) int64 {
	_, last, ok := strings.Cut(strings.TrimPrefix(header, "bytes="), "-")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0
	}
	return n + 1
}
