package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/maheshrc27/postflow/internal/transfer"
	"golang.org/x/time/rate"
)

// apiClient sends JSON, form and multipart requests to one platform API,
// waiting on a shared rate limiter before each call and turning non-2xx
// responses into *PlatformError.
type apiClient struct {
	platform  string
	http      *http.Client
	limiter   *rate.Limiter
	decodeErr func(status int, body []byte) *PlatformError
}

func newAPIClient(platform string, client *http.Client, perSecond float64) *apiClient {
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	c := &apiClient{platform: platform, http: client, limiter: rate.NewLimiter(limit, 1)}
	c.decodeErr = c.graphError
	return c
}

func (c *apiClient) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) delete(ctx context.Context, endpoint string, query url.Values) error {
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *apiClient) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *apiClient) postJSON(ctx context.Context, endpoint string, header http.Header, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	return c.do(req, out)
}

type filePart struct {
	Field    string
	FileName string
	Body     io.Reader
}

// postMultipart streams fields and the file part without buffering the file.
// Closing the read end on return unblocks the writer when the request never
// consumed the body.
func (c *apiClient) postMultipart(ctx context.Context, endpoint string, fields map[string]string, file filePart, out any) error {
	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeMultipart(mw, fields, file)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, file filePart) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile(file.Field, file.FileName)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file.Body)
	return err
}

func (c *apiClient) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return fmt.Errorf("%s request %s: %w", c.platform, req.URL.Path, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request %s: %w", c.platform, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s read response: %w", c.platform, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := c.decodeErr(resp.StatusCode, body)
		slog.Info("platform api error", "platform", c.platform, "path", req.URL.Path,
			"status", resp.StatusCode, "code", perr.Code, "message", perr.Message)
		return perr
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s decode response: %w", c.platform, err)
	}
	return nil
}

func (c *apiClient) graphError(status int, body []byte) *PlatformError {
	perr := &PlatformError{Platform: c.platform, Status: status}
	var resp transfer.GraphErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error.Message == "" {
		perr.Message = strings.TrimSpace(string(body))
		if perr.Message == "" {
			perr.Message = http.StatusText(status)
		}
		return perr
	}
	perr.Code = strconv.Itoa(resp.Error.Code)
	if resp.Error.ErrorSubcode != 0 {
		perr.Code += "/" + strconv.Itoa(resp.Error.ErrorSubcode)
	}
	perr.Message = resp.Error.Message
	perr.UserMessage = resp.Error.ErrorUserMsg
	return perr
}
