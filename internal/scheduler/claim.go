package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ClaimResult int

const (
	AlreadyClaimed ClaimResult = iota
	Claimed
)

func (r ClaimResult) String() string {
	if r == Claimed {
		return "claimed"
	}
	return "already_claimed"
}

var claimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "postflow_claims_total",
	Help: "Claim attempts by trigger and result.",
}, []string{"trigger", "result"})

// Claimer turns a post into an owned publish attempt. The store's
// compare-and-set on status is what decides ownership; the claim record is
// bookkeeping for operators and crash recovery.
type Claimer struct {
	posts  repository.PostRepository
	claims repository.ClaimRepository
	ttl    time.Duration
	now    func() time.Time
}

func NewClaimer(posts repository.PostRepository, claims repository.ClaimRepository, ttl time.Duration) *Claimer {
	return &Claimer{
		posts:  posts,
		claims: claims,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Claim attempts from → publishing for postID. A lost race is reported as
// AlreadyClaimed with a nil error.
func (c *Claimer) Claim(ctx context.Context, postID int64, from models.PostStatus) (*models.ScheduleClaim, ClaimResult, error) {
	won, err := c.posts.CompareAndSetStatus(ctx, postID, from, models.PostStatusPublishing)
	if err != nil {
		return nil, AlreadyClaimed, fmt.Errorf("claim post %d: %w", postID, err)
	}
	if !won {
		return nil, AlreadyClaimed, nil
	}

	owner, err := gonanoid.New()
	if err != nil {
		owner = fmt.Sprintf("claim-%d-%d", postID, c.now().UnixNano())
	}
	now := c.now()
	claim := &models.ScheduleClaim{
		PostID:    postID,
		Owner:     owner,
		ClaimedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	ok, err := c.claims.Acquire(ctx, claim)
	if err != nil {
		slog.Warn("claim record not stored", "post_id", postID, "error", err)
	} else if !ok {
		slog.Warn("claim record already present for a post this worker just claimed", "post_id", postID)
	}
	return claim, Claimed, nil
}

func (c *Claimer) Release(ctx context.Context, claim *models.ScheduleClaim) {
	if err := c.claims.Release(ctx, claim.PostID, claim.Owner); err != nil {
		slog.Warn("claim release failed", "post_id", claim.PostID, "error", err)
	}
}
