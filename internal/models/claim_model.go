package models

import "time"

// ScheduleClaim marks the worker that owns a post's current publish attempt.
type ScheduleClaim struct {
	PostID    int64     `json:"post_id"`
	Owner     string    `json:"owner"`
	ClaimedAt time.Time `json:"claimed_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *ScheduleClaim) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c *ScheduleClaim) TTL() time.Duration {
	return c.ExpiresAt.Sub(c.ClaimedAt)
}
