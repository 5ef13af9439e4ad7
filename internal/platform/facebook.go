package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type FacebookOptions struct {
	GraphURL       string
	VideoURL       string
	Version        string
	PollInterval   time.Duration
	PollTimeout    time.Duration
	VerifyWindow   time.Duration
	RequestsPerSec float64
	HTTPClient     *http.Client
}

// Facebook publishes to Pages. Videos go through the upload engine against
// graph-video; everything else is a single Graph call.
type Facebook struct {
	opts     FacebookOptions
	api      *apiClient
	uploader Uploader
}

func NewFacebook(opts FacebookOptions, uploader Uploader) *Facebook {
	if opts.GraphURL == "" {
		opts.GraphURL = "https://graph.facebook.com"
	}
	if opts.VideoURL == "" {
		opts.VideoURL = "https://graph-video.facebook.com"
	}
	if opts.Version == "" {
		opts.Version = "v19.0"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Minute
	}
	if opts.VerifyWindow <= 0 {
		opts.VerifyWindow = 2 * time.Minute
	}
	return &Facebook{
		opts:     opts,
		api:      newAPIClient(models.PlatformFacebook, opts.HTTPClient, opts.RequestsPerSec),
		uploader: uploader,
	}
}

func (f *Facebook) Name() string {
	return models.PlatformFacebook
}

func (f *Facebook) graph(path string) string {
	return fmt.Sprintf("%s/%s/%s", f.opts.GraphURL, f.opts.Version, path)
}

func (f *Facebook) video(path string) string {
	return fmt.Sprintf("%s/%s/%s", f.opts.VideoURL, f.opts.Version, path)
}

func (f *Facebook) CreateTextPost(ctx context.Context, acct Account, post *models.Post) (*Result, error) {
	if _, err := f.ValidateToken(ctx, acct); err != nil {
		return nil, err
	}
	var resp transfer.GraphID
	err := f.api.postForm(ctx, f.graph(acct.ExternalID+"/feed"), url.Values{
		"message":      {post.Content},
		"access_token": {acct.AccessToken},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &Result{PlatformPostID: resp.ID}, nil
}

func (f *Facebook) CreateMediaPost(ctx context.Context, acct Account, post *models.Post, asset *models.MediaAsset) (*Result, error) {
	if _, err := f.ValidateToken(ctx, acct); err != nil {
		return nil, err
	}
	if asset.IsVideo() {
		id, err := f.uploader.Upload(ctx, asset, f.videoTransport(acct), metadataFor(post))
		if err != nil {
			return nil, err
		}
		return &Result{RemoteID: id, NeedsProcessing: true}, nil
	}

	file, err := asset.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var resp transfer.GraphID
	err = f.api.postMultipart(ctx, f.graph(acct.ExternalID+"/photos"), map[string]string{
		"message":      post.Content,
		"access_token": acct.AccessToken,
	}, filePart{Field: "source", FileName: filepath.Base(asset.Path), Body: file}, &resp)
	if err != nil {
		return nil, err
	}
	id := resp.PostID
	if id == "" {
		id = resp.ID
	}
	return &Result{PlatformPostID: id}, nil
}

// PollProcessing waits for an uploaded video to leave processing.
func (f *Facebook) PollProcessing(ctx context.Context, acct Account, remoteID string) error {
	return Poll(ctx, f.opts.PollInterval, f.opts.PollTimeout, func(ctx context.Context) (bool, error) {
		var st transfer.FacebookVideoStatus
		if err := f.api.get(ctx, f.graph(remoteID), url.Values{
			"fields":       {"status"},
			"access_token": {acct.AccessToken},
		}, &st); err != nil {
			return false, err
		}
		switch st.Status.VideoStatus {
		case "ready":
			return true, nil
		case "error":
			return false, &PlatformError{Platform: models.PlatformFacebook, Status: http.StatusOK,
				Message: fmt.Sprintf("video %s failed processing", remoteID)}
		}
		slog.Debug("facebook video processing", "video_id", remoteID, "status", st.Status.VideoStatus)
		return false, nil
	})
}

// Finalize confirms the uploaded video shows up on the page. The upload
// API can report success for videos that never appear, so success is only
// declared once the page's recent content lists it.
func (f *Facebook) Finalize(ctx context.Context, acct Account, post *models.Post, remoteID string) (string, error) {
	var postID string
	err := Poll(ctx, f.opts.PollInterval, f.opts.VerifyWindow, func(ctx context.Context) (bool, error) {
		id, err := f.findOnPage(ctx, acct, remoteID)
		if err != nil {
			return false, err
		}
		postID = id
		return id != "", nil
	})
	if errors.Is(err, ErrProcessingTimeout) {
		return "", fmt.Errorf("%w: video %s", ErrNotMaterialized, remoteID)
	}
	if err != nil {
		return "", err
	}
	return postID, nil
}

func (f *Facebook) findOnPage(ctx context.Context, acct Account, videoID string) (string, error) {
	var posts transfer.FacebookPostList
	if err := f.api.get(ctx, f.graph(acct.ExternalID+"/posts"), url.Values{
		"fields":       {"id,attachments{target{id}}"},
		"limit":        {"25"},
		"access_token": {acct.AccessToken},
	}, &posts); err != nil {
		return "", err
	}
	for _, p := range posts.Data {
		for _, a := range p.Attachments.Data {
			if a.Target.ID == videoID {
				return p.ID, nil
			}
		}
	}

	var videos transfer.FacebookVideoList
	if err := f.api.get(ctx, f.graph(acct.ExternalID+"/videos"), url.Values{
		"fields":       {"id"},
		"limit":        {"25"},
		"access_token": {acct.AccessToken},
	}, &videos); err != nil {
		return "", err
	}
	for _, v := range videos.Data {
		if v.ID == videoID {
			return v.ID, nil
		}
	}
	return "", nil
}

// ValidateToken reads the page node with the account's token. A revoked or
// expired page token fails here before any content is sent.
func (f *Facebook) ValidateToken(ctx context.Context, acct Account) (*transfer.FacebookPage, error) {
	var page transfer.FacebookPage
	if err := f.api.get(ctx, f.graph(acct.ExternalID), url.Values{
		"fields":       {"id,name"},
		"access_token": {acct.AccessToken},
	}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
