package platform

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/maheshrc27/postflow/internal/upload"
)

// facebookVideo is the upload.Transport for page videos. Facebook picks
// the byte window of every chunk through start_offset/end_offset.
type facebookVideo struct {
	fb   *Facebook
	acct Account
}

func (f *Facebook) videoTransport(acct Account) upload.Transport {
	return &facebookVideo{fb: f, acct: acct}
}

func (v *facebookVideo) Name() string {
	return models.PlatformFacebook
}

func (v *facebookVideo) endpoint() string {
	return v.fb.video(v.acct.ExternalID + "/videos")
}

func (v *facebookVideo) UploadSingle(ctx context.Context, asset *models.MediaAsset, meta upload.Metadata) (string, error) {
	file, err := asset.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	var resp transfer.GraphID
	err = v.fb.api.postMultipart(ctx, v.endpoint(), map[string]string{
		"title":        meta.Title,
		"description":  meta.Description,
		"privacy":      graphPrivacy(meta.Privacy),
		"access_token": v.acct.AccessToken,
	}, filePart{Field: "source", FileName: filepath.Base(asset.Path), Body: file}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// graphPrivacy maps an upload privacy onto the Graph video privacy object.
// Anything unrecognised is published to everyone.
func graphPrivacy(privacy string) string {
	value := "EVERYONE"
	switch strings.ToLower(privacy) {
	case "private", "self":
		value = "SELF"
	case "friends":
		value = "ALL_FRIENDS"
	}
	return `{"value":"` + value + `"}`
}

func (v *facebookVideo) StartSession(ctx context.Context, s *models.UploadSession, meta upload.Metadata) error {
	var resp transfer.FacebookUploadStart
	err := v.fb.api.postForm(ctx, v.endpoint(), url.Values{
		"upload_phase": {"start"},
		"file_size":    {strconv.FormatInt(s.TotalSize, 10)},
		"access_token": {v.acct.AccessToken},
	}, &resp)
	if err != nil {
		return err
	}
	s.SessionID = resp.UploadSessionID
	s.RemoteID = resp.VideoID
	return setOffsets(s, resp.StartOffset, resp.EndOffset)
}

func (v *facebookVideo) TransferChunk(ctx context.Context, s *models.UploadSession, chunk []byte) error {
	var resp transfer.FacebookUploadTransfer
	err := v.fb.api.postMultipart(ctx, v.endpoint(), map[string]string{
		"upload_phase":      "transfer",
		"upload_session_id": s.SessionID,
		"start_offset":      strconv.FormatInt(s.StartOffset, 10),
		"access_token":      v.acct.AccessToken,
	}, filePart{Field: "video_file_chunk", FileName: "chunk", Body: bytes.NewReader(chunk)}, &resp)
	if err != nil {
		return err
	}
	return setOffsets(s, resp.StartOffset, resp.EndOffset)
}

func (v *facebookVideo) FinishSession(ctx context.Context, s *models.UploadSession, meta upload.Metadata) (string, error) {
	var resp transfer.FacebookUploadFinish
	err := v.fb.api.postForm(ctx, v.endpoint(), url.Values{
		"upload_phase":      {"finish"},
		"upload_session_id": {s.SessionID},
		"title":             {meta.Title},
		"description":       {meta.Description},
		"privacy":           {graphPrivacy(meta.Privacy)},
		"access_token":      {v.acct.AccessToken},
	}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &PlatformError{Platform: models.PlatformFacebook, Status: 200, Message: "finish phase did not report success"}
	}
	return s.RemoteID, nil
}

// AbortSession deletes the half-uploaded video object.
func (v *facebookVideo) AbortSession(ctx context.Context, s *models.UploadSession) error {
	if s.RemoteID == "" {
		return nil
	}
	return v.fb.api.delete(ctx, v.fb.graph(s.RemoteID), url.Values{"access_token": {v.acct.AccessToken}})
}

func setOffsets(s *models.UploadSession, start, end string) error {
	st, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		return fmt.Errorf("bad start_offset %q: %w", start, err)
	}
	en, err := strconv.ParseInt(end, 10, 64)
	if err != nil {
		return fmt.Errorf("bad end_offset %q: %w", end, err)
	}
	s.StartOffset, s.EndOffset = st, en
	return nil
}
