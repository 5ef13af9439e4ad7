package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type TiktokOptions struct {
	BaseURL        string
	PrivacyLevel   string
	PollInterval   time.Duration
	PollTimeout    time.Duration
	RequestsPerSec float64
	HTTPClient     *http.Client
}

// Tiktok uses direct post with PULL_FROM_URL; TikTok fetches the staged
// object itself and reports progress on the status endpoint.
type Tiktok struct {
	opts   TiktokOptions
	api    *apiClient
	stager Stager
}

func NewTiktok(opts TiktokOptions, stager Stager) *Tiktok {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://open.tiktokapis.com"
	}
	if opts.PrivacyLevel == "" {
		opts.PrivacyLevel = "PUBLIC_TO_EVERYONE"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Minute
	}
	t := &Tiktok{
		opts:   opts,
		api:    newAPIClient(models.PlatformTiktok, opts.HTTPClient, opts.RequestsPerSec),
		stager: stager,
	}
	t.api.decodeErr = tiktokError
	return t
}

func (t *Tiktok) Name() string {
	return models.PlatformTiktok
}

func (t *Tiktok) bearer(acct Account) http.Header {
	return http.Header{"Authorization": {"Bearer " + acct.AccessToken}}
}

func (t *Tiktok) CreateTextPost(ctx context.Context, acct Account, post *models.Post) (*Result, error) {
	return nil, fmt.Errorf("%w: tiktok posts need media", ErrUnsupported)
}

func (t *Tiktok) CreateMediaPost(ctx context.Context, acct Account, post *models.Post, asset *models.MediaAsset) (*Result, error) {
	key, publicURL, err := t.stager.Stage(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("stage media: %w", err)
	}
	res := &Result{StagedKey: key, NeedsProcessing: true}

	var (
		endpoint string
		payload  any
	)
	if asset.IsVideo() {
		endpoint = t.opts.BaseURL + "/v2/post/publish/video/init/"
		payload = transfer.VideoUploadRequest{
			PostInfo:   transfer.VideoPostInfo{Title: post.Content, PrivacyLevel: t.opts.PrivacyLevel},
			SourceInfo: transfer.VideoSourceInfo{Source: "PULL_FROM_URL", VideoURL: publicURL},
		}
	} else {
		endpoint = t.opts.BaseURL + "/v2/post/publish/content/init/"
		payload = transfer.PhotoUploadRequest{
			PostInfo: transfer.PhotoPostInfo{
				Title:        metadataFor(post).Title,
				Description:  post.Content,
				PrivacyLevel: t.opts.PrivacyLevel,
				AutoAddMusic: true,
			},
			SourceInfo: transfer.PhotoSourceInfo{Source: "PULL_FROM_URL", PhotoImages: []string{publicURL}},
			PostMode:   "DIRECT_POST",
			MediaType:  "PHOTO",
		}
	}

	var resp transfer.TikTokUploadResponse
	if err := t.api.postJSON(ctx, endpoint, t.bearer(acct), payload, &resp); err != nil {
		return res, err
	}
	if resp.Error.Code != "" && resp.Error.Code != "ok" {
		return res, &PlatformError{Platform: models.PlatformTiktok, Status: http.StatusOK, Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if resp.Data.PublishID == "" {
		return res, &PlatformError{Platform: models.PlatformTiktok, Status: http.StatusOK,
			Message: "publish init returned no publish_id"}
	}
	res.RemoteID = resp.Data.PublishID
	return res, nil
}

func (t *Tiktok) status(ctx context.Context, acct Account, publishID string) (*transfer.TiktokStatusResponse, error) {
	var resp transfer.TiktokStatusResponse
	err := t.api.postJSON(ctx, t.opts.BaseURL+"/v2/post/publish/status/fetch/", t.bearer(acct),
		transfer.TiktokStatusRequest{PublishID: publishID}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *Tiktok) PollProcessing(ctx context.Context, acct Account, publishID string) error {
	return Poll(ctx, t.opts.PollInterval, t.opts.PollTimeout, func(ctx context.Context) (bool, error) {
		st, err := t.status(ctx, acct, publishID)
		if err != nil {
			return false, err
		}
		switch st.Data.Status {
		case "PUBLISH_COMPLETE", "SEND_TO_USER_INBOX":
			return true, nil
		case "FAILED":
			return false, &PlatformError{Platform: models.PlatformTiktok, Status: http.StatusOK,
				Code: st.Data.FailReason, Message: "publish failed: " + st.Data.FailReason}
		}
		return false, nil
	})
}

// Finalize returns the public post id when TikTok exposes one, else the
// publish id.
func (t *Tiktok) Finalize(ctx context.Context, acct Account, post *models.Post, publishID string) (string, error) {
	st, err := t.status(ctx, acct, publishID)
	if err != nil {
		return "", err
	}
	if ids := st.Data.PubliclyAvailablePostIDs; len(ids) > 0 {
		return strconv.FormatInt(ids[0], 10), nil
	}
	return publishID, nil
}

func (t *Tiktok) Release(ctx context.Context, res *Result) error {
	if res == nil || res.StagedKey == "" {
		return nil
	}
	return t.stager.Remove(ctx, res.StagedKey)
}

func tiktokError(status int, body []byte) *PlatformError {
	perr := &PlatformError{Platform: models.PlatformTiktok, Status: status, Message: http.StatusText(status)}
	var resp transfer.TikTokUploadResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error.Code != "" {
		perr.Code = resp.Error.Code
		perr.Message = resp.Error.Message
	}
	return perr
}
