package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var acquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "postflow_media_acquisitions_total",
	Help: "Media acquisitions by source kind and outcome.",
}, []string{"source", "outcome"})

// Strategy fetches the media behind rawURL into dest. dest already exists
// and is empty; a strategy may leave partial content behind on failure, the
// engine removes it.
type Strategy interface {
	Fetch(ctx context.Context, rawURL, dest string) error
}

type StrategyFunc func(ctx context.Context, rawURL, dest string) error

func (f StrategyFunc) Fetch(ctx context.Context, rawURL, dest string) error {
	return f(ctx, rawURL, dest)
}

type Options struct {
	WorkDir        string
	MaxSourceBytes int64
	ChunkThreshold int64
	HardCeiling    int64
	TargetBytes    int64
	MinUsefulBytes int64
	StallTimeout   time.Duration
	StoredPrefixes []string
	YtDlpPath      string
	FFmpegPath     string
	FFprobePath    string
}

type EngineOption func(*Engine)

func WithStrategy(kind models.SourceKind, s Strategy) EngineOption {
	return func(e *Engine) { e.strategies[kind] = s }
}

func WithTranscoder(t Transcoder) EngineOption {
	return func(e *Engine) { e.transcoder = t }
}

func WithHTTPClient(c *http.Client) EngineOption {
	return func(e *Engine) { e.client = c }
}

// WithToolRunner enables the tool-backed paths: yt-dlp sources, the Drive
// fallback race and ffmpeg transcoding.
func WithToolRunner(r ToolRunner) EngineOption {
	return func(e *Engine) { e.runner = r }
}

func WithObjectStore(store ObjectReader) EngineOption {
	return func(e *Engine) { e.store = store }
}

// Engine turns a post's media reference into a validated local file.
type Engine struct {
	opts       Options
	client     *http.Client
	strategies map[models.SourceKind]Strategy
	transcoder Transcoder
	runner     ToolRunner
	store      ObjectReader
}

// NewEngine registers a strategy for every source kind it has the means
// for. Strategies passed through WithStrategy take precedence.
func NewEngine(opts Options, options ...EngineOption) (*Engine, error) {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if err := os.MkdirAll(opts.WorkDir, 0o700); err != nil {
		return nil, fmt.Errorf("create media work dir: %w", err)
	}
	e := &Engine{
		opts:       opts,
		client:     &http.Client{},
		strategies: make(map[models.SourceKind]Strategy),
	}
	for _, o := range options {
		o(e)
	}

	f := e.fetcher()
	direct := &DirectSource{fetcher: f}
	e.setDefault(models.SourceDirect, direct)
	e.setDefault(models.SourceDropbox, StrategyFunc(func(ctx context.Context, rawURL, dest string) error {
		return direct.Fetch(ctx, DropboxDirectURL(rawURL), dest)
	}))
	drive := NewDriveSource(f)
	drive.MinUsefulBytes = opts.MinUsefulBytes
	if e.runner != nil {
		drive.Runner = e.runner
		ytdlp := &YtDlpSource{Runner: e.runner, Path: opts.YtDlpPath, MaxBytes: opts.MaxSourceBytes}
		e.setDefault(models.SourceYoutube, ytdlp)
		e.setDefault(models.SourceVimeo, ytdlp)
		e.setDefault(models.SourcePlatform, ytdlp)
		if e.transcoder == nil {
			e.transcoder = &FFmpegTranscoder{Runner: e.runner, FFmpegPath: opts.FFmpegPath, FFprobePath: opts.FFprobePath}
		}
	}
	e.setDefault(models.SourceDrive, drive)
	if e.store != nil {
		e.setDefault(models.SourceStored, &StoredSource{Store: e.store, PublicPrefixes: opts.StoredPrefixes, MaxBytes: opts.MaxSourceBytes})
	}
	return e, nil
}

func (e *Engine) setDefault(kind models.SourceKind, s Strategy) {
	if _, ok := e.strategies[kind]; !ok {
		e.strategies[kind] = s
	}
}

func (e *Engine) fetcher() *fetcher {
	return &fetcher{client: e.client, maxBytes: e.opts.MaxSourceBytes, stallTimeout: e.opts.StallTimeout}
}

func (e *Engine) WorkDir() string {
	return e.opts.WorkDir
}

// Acquire downloads and validates the media at rawURL. On error no file is
// left in the work dir. On success the caller owns the asset and must call
// Release on it.
func (e *Engine) Acquire(ctx context.Context, rawURL, declaredType string) (*models.MediaAsset, error) {
	kind := Classify(rawURL, e.opts.StoredPrefixes...)
	asset, err := e.acquire(ctx, kind, rawURL, declaredType)
	if err != nil {
		var ae *AcquisitionError
		if !errors.As(err, &ae) {
			ae = &AcquisitionError{Kind: ErrSourceUnreachable, Err: err}
			err = ae
		}
		ae.Source = kind
		ae.URL = rawURL
		acquisitionsTotal.WithLabelValues(string(kind), kindLabel(ae.Kind)).Inc()
		slog.Warn("media acquisition failed", "source", kind, "url", rawURL, "error", err)
		return nil, err
	}
	acquisitionsTotal.WithLabelValues(string(kind), "ok").Inc()
	slog.Info("media acquired", "source", kind, "size", asset.SizeBytes, "mime", asset.MIME,
		"chunked", asset.NeedsChunking, "transcoded", asset.Transcoded)
	return asset, nil
}

func (e *Engine) acquire(ctx context.Context, kind models.SourceKind, rawURL, declaredType string) (*models.MediaAsset, error) {
	strategy, ok := e.strategies[kind]
	if !ok {
		return nil, unsupported(fmt.Errorf("no strategy for %s sources", kind))
	}

	files := &artifacts{}
	defer files.discard()

	tmp, err := os.CreateTemp(e.opts.WorkDir, "acquire-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	files.add(path)
	tmp.Close()

	if err := strategy.Fetch(ctx, rawURL, path); err != nil {
		return nil, err
	}

	detected, err := sniff(path)
	if err != nil {
		return nil, err
	}
	if declaredType != "" && !strings.HasPrefix(detected.MIME.Value, declaredType) {
		slog.Debug("declared media type ignored", "declared", declaredType, "detected", detected.MIME.Value)
	}

	size, err := fileSize(path)
	if err != nil {
		return nil, err
	}

	transcoded := false
	if e.opts.HardCeiling > 0 && size > e.opts.HardCeiling {
		if e.transcoder == nil || detected.MIME.Type != "video" {
			return nil, tooLarge(fmt.Errorf("%d bytes over ceiling %d", size, e.opts.HardCeiling))
		}
		out := path + ".transcoded.mp4"
		files.add(out)
		if err := e.transcoder.Transcode(ctx, path, out, e.opts.TargetBytes); err != nil {
			return nil, tooLarge(fmt.Errorf("transcode: %w", err))
		}
		if size, err = fileSize(out); err != nil {
			return nil, err
		}
		if size > e.opts.HardCeiling {
			return nil, tooLarge(fmt.Errorf("transcoded output %d bytes still over ceiling %d", size, e.opts.HardCeiling))
		}
		if detected, err = sniff(out); err != nil {
			return nil, err
		}
		path = out
		transcoded = true
	}

	final := filepath.Join(e.opts.WorkDir, fmt.Sprintf("%s.%s", strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), detected.Extension))
	if err := os.Rename(path, final); err != nil {
		return nil, fmt.Errorf("rename asset: %w", err)
	}
	files.add(final)
	files.keep(final)

	return &models.MediaAsset{
		SourceURL:     rawURL,
		SourceKind:    kind,
		Path:          final,
		SizeBytes:     size,
		MIME:          detected.MIME.Value,
		Extension:     detected.Extension,
		Validation:    models.ValidationValid,
		NeedsChunking: e.opts.ChunkThreshold > 0 && size >= e.opts.ChunkThreshold,
		Transcoded:    transcoded,
	}, nil
}

// artifacts removes every registered path except the kept one.
type artifacts struct {
	paths []string
	kept  string
}

func (a *artifacts) add(path string) { a.paths = append(a.paths, path) }

func (a *artifacts) keep(path string) { a.kept = path }

func (a *artifacts) discard() {
	for _, p := range a.paths {
		if p == a.kept {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("remove media artifact", "path", p, "error", err)
		}
	}
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func kindLabel(kind error) string {
	switch kind {
	case ErrAccessRestricted:
		return "restricted"
	case ErrFormatUnsupported:
		return "unsupported"
	case ErrSizeExceedsLimit:
		return "too_large"
	default:
		return "unreachable"
	}
}
