package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/upload"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

type YoutubeOptions struct {
	// APIURL overrides the YouTube Data API endpoint, mostly for tests.
	APIURL       string
	UploadURL    string
	CategoryID   string
	PollInterval time.Duration
	PollTimeout  time.Duration
	HTTPClient   *http.Client
}

type Youtube struct {
	opts     YoutubeOptions
	uploader Uploader
}

func NewYoutube(opts YoutubeOptions, uploader Uploader) *Youtube {
	if opts.UploadURL == "" {
		opts.UploadURL = "https://www.googleapis.com/upload/youtube/v3/videos"
	}
	if opts.CategoryID == "" {
		opts.CategoryID = "22"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 15 * time.Minute
	}
	return &Youtube{opts: opts, uploader: uploader}
}

func (y *Youtube) Name() string {
	return models.PlatformYoutube
}

// client returns an HTTP client that authorises every request with the
// account's access token.
func (y *Youtube) client(ctx context.Context, acct Account) *http.Client {
	if y.opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, y.opts.HTTPClient)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: acct.AccessToken}))
}

func (y *Youtube) service(ctx context.Context, acct Account) (*youtube.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(y.client(ctx, acct))}
	if y.opts.APIURL != "" {
		opts = append(opts, option.WithEndpoint(y.opts.APIURL))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return svc, nil
}

func (y *Youtube) CreateTextPost(ctx context.Context, acct Account, post *models.Post) (*Result, error) {
	return nil, fmt.Errorf("%w: youtube posts need a video", ErrUnsupported)
}

func (y *Youtube) CreateMediaPost(ctx context.Context, acct Account, post *models.Post, asset *models.MediaAsset) (*Result, error) {
	if !asset.IsVideo() {
		return nil, fmt.Errorf("%w: youtube accepts video only, got %s", ErrUnsupported, asset.MIME)
	}
	svc, err := y.service(ctx, acct)
	if err != nil {
		return nil, err
	}
	target := &youtubeVideo{yt: y, svc: svc, http: y.client(ctx, acct)}
	id, err := y.uploader.Upload(ctx, asset, target, metadataFor(post))
	if err != nil {
		return nil, err
	}
	return &Result{RemoteID: id, NeedsProcessing: true}, nil
}

func (y *Youtube) PollProcessing(ctx context.Context, acct Account, videoID string) error {
	svc, err := y.service(ctx, acct)
	if err != nil {
		return err
	}
	return Poll(ctx, y.opts.PollInterval, y.opts.PollTimeout, func(ctx context.Context) (bool, error) {
		resp, err := svc.Videos.List([]string{"status", "processingDetails"}).Id(videoID).Context(ctx).Do()
		if err != nil {
			return false, googleError(err)
		}
		if len(resp.Items) == 0 {
			return false, nil
		}
		return youtubeProcessed(resp.Items[0])
	})
}

func youtubeProcessed(v *youtube.Video) (bool, error) {
	if v.Status != nil {
		switch v.Status.UploadStatus {
		case "processed":
			return true, nil
		case "failed":
			return false, &PlatformError{Platform: models.PlatformYoutube, Status: http.StatusOK,
				Code: v.Status.FailureReason, Message: "upload failed: " + v.Status.FailureReason}
		case "rejected", "deleted":
			return false, &PlatformError{Platform: models.PlatformYoutube, Status: http.StatusOK,
				Code: v.Status.RejectionReason, Message: "video " + v.Status.UploadStatus + ": " + v.Status.RejectionReason}
		}
	}
	if v.ProcessingDetails != nil {
		switch v.ProcessingDetails.ProcessingStatus {
		case "succeeded":
			return true, nil
		case "failed", "terminated":
			return false, &PlatformError{Platform: models.PlatformYoutube, Status: http.StatusOK,
				Code: v.ProcessingDetails.ProcessingFailureReason, Message: "processing " + v.ProcessingDetails.ProcessingStatus}
		}
	}
	return false, nil
}

// Finalize is a no-op for YouTube: a processed video is already public
// under its id.
func (y *Youtube) Finalize(ctx context.Context, acct Account, post *models.Post, videoID string) (string, error) {
	return videoID, nil
}

func googleError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	perr := &PlatformError{Platform: models.PlatformYoutube, Status: gerr.Code, Message: gerr.Message}
	if len(gerr.Errors) > 0 {
		perr.Code = gerr.Errors[0].Reason
		if perr.Message == "" {
			perr.Message = gerr.Errors[0].Message
		}
	}
	return perr
}

type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

func decodeGoogleError(status int, body []byte) *PlatformError {
	perr := &PlatformError{Platform: models.PlatformYoutube, Status: status, Message: http.StatusText(status)}
	var resp googleErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error.Message != "" {
		perr.Message = resp.Error.Message
		if len(resp.Error.Errors) > 0 {
			perr.Code = resp.Error.Errors[0].Reason
		}
	}
	return perr
}

var _ upload.Transport = (*youtubeVideo)(nil)
