package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/redis/go-redis/v9"
)

// ClaimRepository records ScheduleClaims. A claim disappears when released or
// when its TTL lapses, which is how a crashed worker's claim is recovered.
type ClaimRepository interface {
	Acquire(ctx context.Context, claim *models.ScheduleClaim) (bool, error)
	Release(ctx context.Context, postID int64, owner string) error
	Get(ctx context.Context, postID int64) (*models.ScheduleClaim, error)
}

const claimKeyPrefix = "postflow:claim:"

// Deletes the key only while it still holds the caller's owner token.
var releaseScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then return 0 end
local c = cjson.decode(v)
if c["owner"] == ARGV[1] then return redis.call("DEL", KEYS[1]) end
return 0
`)

type redisClaimRepository struct {
	rdb redis.UniversalClient
}

func NewRedisClaimRepository(rdb redis.UniversalClient) ClaimRepository {
	return &redisClaimRepository{rdb: rdb}
}

func claimKey(postID int64) string {
	return fmt.Sprintf("%s%d", claimKeyPrefix, postID)
}

func (r *redisClaimRepository) Acquire(ctx context.Context, claim *models.ScheduleClaim) (bool, error) {
	ttl := claim.TTL()
	if ttl <= 0 {
		return false, errors.New("claim ttl must be positive")
	}
	value, err := json.Marshal(claim)
	if err != nil {
		return false, err
	}
	ok, err := r.rdb.SetNX(ctx, claimKey(claim.PostID), value, ttl).Result()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return ok, nil
}

func (r *redisClaimRepository) Release(ctx context.Context, postID int64, owner string) error {
	if err := releaseScript.Run(ctx, r.rdb, []string{claimKey(postID)}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *redisClaimRepository) Get(ctx context.Context, postID int64) (*models.ScheduleClaim, error) {
	value, err := r.rdb.Get(ctx, claimKey(postID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	var claim models.ScheduleClaim
	if err := json.Unmarshal(value, &claim); err != nil {
		return nil, err
	}
	return &claim, nil
}

type MemoryClaimRepository struct {
	mu     sync.Mutex
	claims map[int64]models.ScheduleClaim
	now    func() time.Time
}

func NewMemoryClaimRepository() *MemoryClaimRepository {
	return &MemoryClaimRepository{
		claims: make(map[int64]models.ScheduleClaim),
		now:    time.Now,
	}
}

func (r *MemoryClaimRepository) Acquire(ctx context.Context, claim *models.ScheduleClaim) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.claims[claim.PostID]; ok && !existing.Expired(r.now()) {
		return false, nil
	}
	r.claims[claim.PostID] = *claim
	return true, nil
}

func (r *MemoryClaimRepository) Release(ctx context.Context, postID int64, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.claims[postID]; ok && existing.Owner == owner {
		delete(r.claims, postID)
	}
	return nil
}

func (r *MemoryClaimRepository) Get(ctx context.Context, postID int64) (*models.ScheduleClaim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.claims[postID]
	if !ok || existing.Expired(r.now()) {
		return nil, nil
	}
	return &existing, nil
}
