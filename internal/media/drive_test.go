package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const driveShareURL = "https://drive.google.com/file/d/1AbC-dEf_123/view?usp=sharing"

func pointDriveAt(e *Engine, base string) *DriveSource {
	drive := e.strategies[models.SourceDrive].(*DriveSource)
	drive.downloadURL = base + "/uc"
	drive.confirmURL = base + "/download"
	return drive
}

const restrictedPage = `<!DOCTYPE html><html><head><title>Google Drive - Error</title></head>
<body><p>You need access</p><a href="/request">Request access</a></body></html>`

func interstitial(action string) string {
	return `<!DOCTYPE html><html><body>
<p>Google Drive can't scan this file for viruses.</p>
<form id="download-form" action="` + action + `" method="get">
<input type="submit" value="Download anyway"/>
<input type="hidden" name="id" value="1AbC-dEf_123">
<input type="hidden" name="export" value="download">
<input type="hidden" name="confirm" value="t">
<input type="hidden" name="uuid" value="5f0b7c1e-aaaa">
</form></body></html>`
}

// A share that is not public answers with an HTML page. The
// acquisition fails as restricted and leaves nothing behind.
func TestDriveRestrictedShare(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(restrictedPage))
	}))
	defer srv.Close()

	e := newTestEngine(t, Options{})
	pointDriveAt(e, srv.URL)

	asset, err := e.Acquire(context.Background(), driveShareURL, "video")
	require.Error(t, err)
	assert.Nil(t, asset)
	assert.ErrorIs(t, err, ErrAccessRestricted)
	assert.NotErrorIs(t, err, ErrSourceUnreachable)

	var ae *AcquisitionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, models.SourceDrive, ae.Source)
	assertWorkDirEmpty(t, e)
}

func TestDriveConfirmFormFlow(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/uc":
			assert.Equal(t, "download", q.Get("export"))
			assert.Equal(t, "1AbC-dEf_123", q.Get("id"))
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(interstitial(srv.URL + "/download")))
		case "/download":
			assert.Equal(t, "t", q.Get("confirm"))
			assert.Equal(t, "5f0b7c1e-aaaa", q.Get("uuid"))
			assert.Equal(t, "1AbC-dEf_123", q.Get("id"))
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(mp4Bytes(8192))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := newTestEngine(t, Options{})
	pointDriveAt(e, srv.URL)

	asset, err := e.Acquire(context.Background(), driveShareURL, "video")
	require.NoError(t, err)
	assert.Equal(t, int64(8192), asset.SizeBytes)
	assert.Equal(t, "video/mp4", asset.MIME)
	require.NoError(t, asset.Release())
	assertWorkDirEmpty(t, e)
}

func TestDriveConfirmStillHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/uc" {
			w.Write([]byte(interstitial("/download")))
			return
		}
		w.Write([]byte(restrictedPage))
	}))
	defer srv.Close()

	e := newTestEngine(t, Options{})
	pointDriveAt(e, srv.URL)

	_, err := e.Acquire(context.Background(), driveShareURL, "video")
	assert.ErrorIs(t, err, ErrAccessRestricted)
	assertWorkDirEmpty(t, e)
}

func TestDriveToolRaceAfterHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	runner := &fakeRunner{handle: func(ctx context.Context, name string, args []string) error {
		out := outputArg(args)
		switch name {
		case "curl":
			// Large partial file from a failed run must not be used.
			os.WriteFile(out, mp4Bytes(50_000), 0o600)
			return &ToolError{Name: name, ExitCode: 18, Stderr: "transfer closed with outstanding read data remaining"}
		case "wget":
			return os.WriteFile(out, mp4Bytes(100), 0o600)
		case "gdown":
			return os.WriteFile(out, mp4Bytes(20_000), 0o600)
		}
		return errors.New("unexpected tool")
	}}

	e := newTestEngine(t, Options{MinUsefulBytes: 10_000}, WithToolRunner(runner))
	pointDriveAt(e, srv.URL)

	asset, err := e.Acquire(context.Background(), driveShareURL, "video")
	require.NoError(t, err)
	assert.Equal(t, int64(20_000), asset.SizeBytes)
	assert.ElementsMatch(t, []string{"curl", "wget", "gdown"}, runner.calls)
	require.NoError(t, asset.Release())
	assertWorkDirEmpty(t, e)
}

func TestDriveToolRaceAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	runner := &fakeRunner{handle: func(ctx context.Context, name string, args []string) error {
		os.WriteFile(outputArg(args), []byte("<html>quota exceeded</html>"), 0o600)
		return nil
	}}
	e := newTestEngine(t, Options{MinUsefulBytes: 1}, WithToolRunner(runner))
	pointDriveAt(e, srv.URL)

	_, err := e.Acquire(context.Background(), driveShareURL, "video")
	assert.ErrorIs(t, err, ErrSourceUnreachable)
	assertWorkDirEmpty(t, e)
}

func TestDriveRestrictedDoesNotRaceTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	runner := &fakeRunner{handle: func(ctx context.Context, name string, args []string) error { return nil }}
	e := newTestEngine(t, Options{}, WithToolRunner(runner))
	pointDriveAt(e, srv.URL)

	_, err := e.Acquire(context.Background(), driveShareURL, "video")
	assert.ErrorIs(t, err, ErrAccessRestricted)
	assert.Empty(t, runner.calls)
	assertWorkDirEmpty(t, e)
}
