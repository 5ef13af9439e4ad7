package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/media"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/upload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_publish_total",
		Help: "Publish attempts by platform and outcome.",
	}, []string{"platform", "outcome"})

	publishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postflow_publish_duration_seconds",
		Help:    "Wall time of publish attempts.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"platform"})
)

var (
	ErrPostNotFound  = errors.New("post not found")
	ErrNotPublishing = errors.New("post is not in publishing state")
	ErrResultLate    = errors.New("publish finished after the attempt was abandoned")
)

type MediaAcquirer interface {
	Acquire(ctx context.Context, rawURL, declaredType string) (*models.MediaAsset, error)
}

type PublishService interface {
	Publish(ctx context.Context, postID int64) error
}

type PublishOptions struct {
	AcquireTimeout time.Duration
	PublishTimeout time.Duration
}

type publishService struct {
	posts    repository.PostRepository
	accounts AccountResolver
	media    MediaAcquirer
	registry platform.Registry
	opts     PublishOptions
}

func NewPublishService(
	posts repository.PostRepository,
	accounts AccountResolver,
	media MediaAcquirer,
	registry platform.Registry,
	opts PublishOptions) PublishService {
	return &publishService{
		posts:    posts,
		accounts: accounts,
		media:    media,
		registry: registry,
		opts:     opts,
	}
}

// Publish runs acquire, upload, process and finalize for a claimed post and
// records the outcome. Only a post in publishing is touched, and the final
// write is a compare-and-set from publishing, so an attempt whose post was
// moved on meanwhile cannot overwrite it.
func (s *publishService) Publish(ctx context.Context, postID int64) error {
	if s.opts.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.PublishTimeout)
		defer cancel()
	}

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("load post %d: %w", postID, err)
	}
	if post == nil {
		return fmt.Errorf("%w: %d", ErrPostNotFound, postID)
	}
	if post.Status != models.PostStatusPublishing {
		return fmt.Errorf("%w: post %d is %s", ErrNotPublishing, postID, post.Status)
	}

	start := time.Now()
	platformPostID, err := s.attempt(ctx, post)
	publishDuration.WithLabelValues(post.Platform).Observe(time.Since(start).Seconds())

	if err == nil && ctx.Err() != nil {
		slog.Warn("discarding late publish result", "post_id", post.ID, "platform_post_id", platformPostID)
		err = fmt.Errorf("%w: %w", ErrResultLate, ctx.Err())
	}
	if err != nil {
		publishTotal.WithLabelValues(post.Platform, "failed").Inc()
		s.markFailed(ctx, post, err)
		return err
	}
	return s.markPublished(ctx, post, platformPostID)
}

func (s *publishService) attempt(ctx context.Context, post *models.Post) (string, error) {
	pub, err := s.registry.Get(post.Platform)
	if err != nil {
		return "", err
	}
	acct, err := s.accounts.Resolve(ctx, post)
	if err != nil {
		return "", err
	}

	var res *platform.Result
	if post.HasMedia() {
		asset, err := s.acquire(ctx, post)
		if err != nil {
			return "", err
		}
		defer func() {
			if err := asset.Release(); err != nil {
				slog.Warn("release media asset", "post_id", post.ID, "error", err)
			}
		}()
		res, err = pub.CreateMediaPost(ctx, acct, post, asset)
		defer s.releaseRemote(ctx, pub, res)
		if err != nil {
			return "", err
		}
	} else {
		res, err = pub.CreateTextPost(ctx, acct, post)
		if err != nil {
			return "", err
		}
	}

	if res.PlatformPostID != "" {
		return res.PlatformPostID, nil
	}
	if res.NeedsProcessing {
		if err := pub.PollProcessing(ctx, acct, res.RemoteID); err != nil {
			return "", err
		}
	}
	return pub.Finalize(ctx, acct, post, res.RemoteID)
}

func (s *publishService) acquire(ctx context.Context, post *models.Post) (*models.MediaAsset, error) {
	if s.opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.AcquireTimeout)
		defer cancel()
	}
	return s.media.Acquire(ctx, post.Media.URL, post.Media.Type)
}

func (s *publishService) releaseRemote(ctx context.Context, pub platform.Publisher, res *platform.Result) {
	rel, ok := pub.(platform.Releaser)
	if !ok || res == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := rel.Release(rctx, res); err != nil {
		slog.Warn("release staged media", "staged_key", res.StagedKey, "error", err)
	}
}

func (s *publishService) markPublished(ctx context.Context, post *models.Post, platformPostID string) error {
	wctx, cancel := writeContext(ctx)
	defer cancel()

	now := time.Now()
	won, err := s.posts.CompareAndUpdate(wctx, post.ID, models.PostStatusPublishing, models.PostFields{
		Status:         models.StatusPtr(models.PostStatusPublished),
		PlatformPostID: models.StringPtr(platformPostID),
		ErrorMessage:   models.StringPtr(""),
		PublishedAt:    &now,
	})
	if err != nil {
		return fmt.Errorf("record published post %d: %w", post.ID, err)
	}
	if !won {
		slog.Warn("post left publishing before the result was recorded", "post_id", post.ID, "platform_post_id", platformPostID)
		return fmt.Errorf("%w: post %d", ErrResultLate, post.ID)
	}
	publishTotal.WithLabelValues(post.Platform, "published").Inc()
	slog.Info("post published", "post_id", post.ID, "platform", post.Platform, "platform_post_id", platformPostID)
	return nil
}

func (s *publishService) markFailed(ctx context.Context, post *models.Post, cause error) {
	wctx, cancel := writeContext(ctx)
	defer cancel()

	msg := FailureMessage(cause)
	won, err := s.posts.CompareAndUpdate(wctx, post.ID, models.PostStatusPublishing, models.PostFields{
		Status:       models.StatusPtr(models.PostStatusFailed),
		ErrorMessage: &msg,
	})
	if err != nil {
		slog.Error("record failed post", "post_id", post.ID, "error", err)
		return
	}
	if !won {
		slog.Warn("post left publishing before the failure was recorded", "post_id", post.ID)
		return
	}
	slog.Info("post failed", "post_id", post.ID, "platform", post.Platform, "reason", msg)
}

// writeContext outlives the attempt's deadline so the outcome is always stored.
func writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}

// FailureMessage is the text shown on a failed post: the platform's own
// wording when there is one.
func FailureMessage(err error) string {
	var se *upload.SessionError
	if errors.As(err, &se) && se.PlatformMessage != "" {
		return fmt.Sprintf("upload failed during %s: %s", se.Phase, se.PlatformMessage)
	}
	var pe *platform.PlatformError
	if errors.As(err, &pe) {
		return pe.PlatformMessage()
	}
	var ae *media.AcquisitionError
	if errors.As(err, &ae) {
		return ae.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "publishing timed out"
	}
	return err.Error()
}
