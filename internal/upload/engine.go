package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_upload_bytes_total",
		Help: "Bytes accepted by platforms, by platform and upload mode.",
	}, []string{"platform", "mode"})

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_uploads_total",
		Help: "Uploads by platform, mode and outcome.",
	}, []string{"platform", "mode", "outcome"})
)

type Metadata struct {
	Title       string
	Description string
	Privacy     string
}

// Transport is the platform side of an upload. Implementations may move
// session.StartOffset and session.EndOffset inside StartSession and
// TransferChunk to dictate the next window; otherwise the engine advances
// by its own chunk size.
type Transport interface {
	Name() string
	UploadSingle(ctx context.Context, asset *models.MediaAsset, meta Metadata) (string, error)
	StartSession(ctx context.Context, session *models.UploadSession, meta Metadata) error
	TransferChunk(ctx context.Context, session *models.UploadSession, chunk []byte) error
	FinishSession(ctx context.Context, session *models.UploadSession, meta Metadata) (string, error)
	AbortSession(ctx context.Context, session *models.UploadSession) error
}

type Engine struct {
	chunkSize    int64
	phaseTimeout time.Duration
}

func NewEngine(chunkSize int64, phaseTimeout time.Duration) *Engine {
	if chunkSize <= 0 {
		chunkSize = 10 << 20
	}
	return &Engine{chunkSize: chunkSize, phaseTimeout: phaseTimeout}
}

// Upload sends asset through target and returns the platform's id for it.
// The asset's NeedsChunking flag, set when the media was acquired, picks
// between one request and a start/transfer/finish session.
func (e *Engine) Upload(ctx context.Context, asset *models.MediaAsset, target Transport, meta Metadata) (string, error) {
	if !asset.NeedsChunking {
		return e.single(ctx, asset, target, meta)
	}
	return e.chunked(ctx, asset, target, meta)
}

func (e *Engine) single(ctx context.Context, asset *models.MediaAsset, target Transport, meta Metadata) (string, error) {
	pctx, cancel := e.phaseContext(ctx)
	defer cancel()

	id, err := target.UploadSingle(pctx, asset, meta)
	if err != nil {
		uploadsTotal.WithLabelValues(target.Name(), "single", "error").Inc()
		return "", newSessionError(models.UploadPhaseSingle, 0, err)
	}
	uploadBytesTotal.WithLabelValues(target.Name(), "single").Add(float64(asset.SizeBytes))
	uploadsTotal.WithLabelValues(target.Name(), "single", "ok").Inc()
	slog.Info("single upload done", "platform", target.Name(), "size", asset.SizeBytes, "remote_id", id)
	return id, nil
}

func (e *Engine) chunked(ctx context.Context, asset *models.MediaAsset, target Transport, meta Metadata) (string, error) {
	f, err := asset.Open()
	if err != nil {
		return "", fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()

	session := &models.UploadSession{
		AssetPath: asset.Path,
		Platform:  target.Name(),
		Phase:     models.UploadPhaseStart,
		State:     models.UploadStateIdle,
		ChunkSize: e.chunkSize,
		TotalSize: asset.SizeBytes,
		MIME:      asset.MIME,
	}

	id, err := e.runSession(ctx, f, session, target, meta)
	if err != nil {
		session.State = models.UploadStateFailed
		uploadsTotal.WithLabelValues(target.Name(), "chunked", "error").Inc()
		if session.Phase != models.UploadPhaseStart || session.SessionID != "" {
			e.abort(ctx, session, target)
		}
		return "", err
	}
	uploadsTotal.WithLabelValues(target.Name(), "chunked", "ok").Inc()
	return id, nil
}

func (e *Engine) runSession(ctx context.Context, f io.ReaderAt, session *models.UploadSession, target Transport, meta Metadata) (string, error) {
	if err := e.inPhase(ctx, func(pctx context.Context) error {
		return target.StartSession(pctx, session, meta)
	}); err != nil {
		return "", newSessionError(models.UploadPhaseStart, 0, err)
	}
	session.State = models.UploadStateSessionStarted
	if session.EndOffset <= session.StartOffset {
		session.EndOffset = min(session.StartOffset+e.chunkSize, session.TotalSize)
	}
	slog.Info("upload session started", "platform", session.Platform, "session_id", session.SessionID,
		"size", session.TotalSize)

	session.Phase = models.UploadPhaseTransfer
	buf := make([]byte, 0, e.chunkSize)
	for session.StartOffset < session.EndOffset {
		start, end := session.StartOffset, min(session.EndOffset, session.TotalSize)
		length := end - start
		if int64(cap(buf)) < length {
			buf = make([]byte, 0, length)
		}
		chunk := buf[:length]
		if _, err := f.ReadAt(chunk, start); err != nil && !errors.Is(err, io.EOF) {
			return "", newSessionError(models.UploadPhaseTransfer, session.ChunkIndex, fmt.Errorf("read chunk: %w", err))
		}

		if err := e.inPhase(ctx, func(pctx context.Context) error {
			return target.TransferChunk(pctx, session, chunk)
		}); err != nil {
			return "", newSessionError(models.UploadPhaseTransfer, session.ChunkIndex, err)
		}
		session.State = models.UploadStateTransferring
		session.BytesTransferred += length
		session.ChunkIndex++
		uploadBytesTotal.WithLabelValues(session.Platform, "chunked").Add(float64(length))

		switch {
		case session.StartOffset == start:
			session.StartOffset = end
			session.EndOffset = min(end+e.chunkSize, session.TotalSize)
		case session.StartOffset < start:
			return "", newSessionError(models.UploadPhaseTransfer, session.ChunkIndex,
				fmt.Errorf("%w: %d after %d", ErrOffsetRewound, session.StartOffset, start))
		}
		slog.Debug("chunk transferred", "platform", session.Platform, "chunk", session.ChunkIndex,
			"bytes", session.BytesTransferred, "total", session.TotalSize)
	}

	session.Phase = models.UploadPhaseFinish
	var id string
	if err := e.inPhase(ctx, func(pctx context.Context) error {
		var err error
		id, err = target.FinishSession(pctx, session, meta)
		return err
	}); err != nil {
		return "", newSessionError(models.UploadPhaseFinish, session.ChunkIndex, err)
	}
	session.State = models.UploadStateFinished
	session.RemoteID = id
	slog.Info("upload session finished", "platform", session.Platform, "remote_id", id,
		"chunks", session.ChunkIndex, "bytes", session.BytesTransferred)
	return id, nil
}

// abort is best effort and runs even when ctx is already done.
func (e *Engine) abort(ctx context.Context, session *models.UploadSession, target Transport) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := target.AbortSession(actx, session); err != nil {
		slog.Warn("abort upload session", "platform", session.Platform, "session_id", session.SessionID, "error", err)
	}
}

func (e *Engine) inPhase(ctx context.Context, fn func(context.Context) error) error {
	pctx, cancel := e.phaseContext(ctx)
	defer cancel()
	return fn(pctx)
}

func (e *Engine) phaseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.phaseTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.phaseTimeout)
}
