package platform

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultipartWriterExitsWhenRequestNeverSent(t *testing.T) {
	c := newAPIClient(models.PlatformFacebook, nil, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		err := c.postMultipart(ctx, "http://127.0.0.1:1/upload", map[string]string{"upload_phase": "transfer"},
			filePart{Field: "video_file_chunk", FileName: "chunk", Body: bytes.NewReader(make([]byte, 1<<20))}, nil)
		require.ErrorIs(t, err, context.Canceled)
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond, "multipart writer goroutines still running")
}

func TestMultipartStreamsFieldsAndFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "transfer", r.FormValue("upload_phase"))
		f, _, err := r.FormFile("video_file_chunk")
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "chunk-bytes", string(body))
		w.Write([]byte(`{"id":"ok"}`))
	}))
	defer srv.Close()

	c := newAPIClient(models.PlatformFacebook, srv.Client(), 0)
	var out struct {
		ID string `json:"id"`
	}
	err := c.postMultipart(context.Background(), srv.URL, map[string]string{"upload_phase": "transfer"},
		filePart{Field: "video_file_chunk", FileName: "chunk", Body: bytes.NewReader([]byte("chunk-bytes"))}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.ID)
}
