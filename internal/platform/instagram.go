package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type InstagramOptions struct {
	GraphURL       string
	Version        string
	PollInterval   time.Duration
	PollTimeout    time.Duration
	RequestsPerSec float64
	HTTPClient     *http.Client
}

// Instagram publishes through media containers. The platform pulls the
// media from a public URL, so assets are staged in the object store first.
type Instagram struct {
	opts   InstagramOptions
	api    *apiClient
	stager Stager
}

func NewInstagram(opts InstagramOptions, stager Stager) *Instagram {
	if opts.GraphURL == "" {
		opts.GraphURL = "https://graph.instagram.com"
	}
	if opts.Version == "" {
		opts.Version = "v21.0"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Minute
	}
	return &Instagram{
		opts:   opts,
		api:    newAPIClient(models.PlatformInstagram, opts.HTTPClient, opts.RequestsPerSec),
		stager: stager,
	}
}

func (ig *Instagram) Name() string {
	return models.PlatformInstagram
}

func (ig *Instagram) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/%s", ig.opts.GraphURL, ig.opts.Version, path)
}

func (ig *Instagram) CreateTextPost(ctx context.Context, acct Account, post *models.Post) (*Result, error) {
	return nil, fmt.Errorf("%w: instagram posts need media", ErrUnsupported)
}

func (ig *Instagram) CreateMediaPost(ctx context.Context, acct Account, post *models.Post, asset *models.MediaAsset) (*Result, error) {
	key, publicURL, err := ig.stager.Stage(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("stage media: %w", err)
	}
	res := &Result{StagedKey: key, NeedsProcessing: true}

	req := transfer.InstagramContainerRequest{Caption: post.Content, AccessToken: acct.AccessToken}
	if asset.IsVideo() {
		req.VideoURL = publicURL
		req.MediaType = "REELS"
	} else {
		req.ImageURL = publicURL
	}

	var resp transfer.GraphID
	if err := ig.api.postJSON(ctx, ig.endpoint(acct.ExternalID+"/media"), nil, req, &resp); err != nil {
		return res, err
	}
	if resp.ID == "" {
		return res, &PlatformError{Platform: models.PlatformInstagram, Status: http.StatusOK, Message: "no container id returned"}
	}
	res.RemoteID = resp.ID
	return res, nil
}

func (ig *Instagram) PollProcessing(ctx context.Context, acct Account, containerID string) error {
	return Poll(ctx, ig.opts.PollInterval, ig.opts.PollTimeout, func(ctx context.Context) (bool, error) {
		var st transfer.InstagramContainerStatus
		if err := ig.api.get(ctx, ig.endpoint(containerID), url.Values{
			"fields":       {"status_code,status"},
			"access_token": {acct.AccessToken},
		}, &st); err != nil {
			return false, err
		}
		switch st.StatusCode {
		case "FINISHED", "PUBLISHED":
			return true, nil
		case "ERROR", "EXPIRED":
			msg := st.Status
			if msg == "" {
				msg = "container " + st.StatusCode
			}
			return false, &PlatformError{Platform: models.PlatformInstagram, Status: http.StatusOK, Code: st.StatusCode, Message: msg}
		}
		return false, nil
	})
}

func (ig *Instagram) Finalize(ctx context.Context, acct Account, post *models.Post, containerID string) (string, error) {
	var resp transfer.GraphID
	err := ig.api.postJSON(ctx, ig.endpoint(acct.ExternalID+"/media_publish"), nil, transfer.InstagramPublishRequest{
		CreationID:  containerID,
		AccessToken: acct.AccessToken,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: media_publish returned no id", ErrNotMaterialized)
	}
	return resp.ID, nil
}

func (ig *Instagram) Release(ctx context.Context, res *Result) error {
	if res == nil || res.StagedKey == "" {
		return nil
	}
	return ig.stager.Remove(ctx, res.StagedKey)
}
