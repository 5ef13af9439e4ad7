package models

import "time"

type PostStatus string

const (
	PostStatusDraft      PostStatus = "draft"
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
)

const (
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformYoutube   = "youtube"
	PlatformTiktok    = "tiktok"
)

// MediaRef is the user-supplied media reference as entered in the dashboard.
type MediaRef struct {
	URL  string `db:"media_url" json:"media_url"`
	Type string `db:"media_type" json:"media_type"` // declared: video, image
}

type Post struct {
	ID             int64      `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	Platform       string     `db:"platform" json:"platform"`
	AccountID      int64      `db:"account_id" json:"account_id"`
	Content        string     `db:"content" json:"content"`
	Title          string     `db:"title" json:"title"`
	Media          MediaRef   `json:"media"`
	ScheduledFor   *time.Time `db:"scheduled_for" json:"scheduled_for"`
	Status         PostStatus `db:"status" json:"status"`
	PlatformPostID string     `db:"platform_post_id" json:"platform_post_id,omitempty"`
	ErrorMessage   string     `db:"error_message" json:"error_message,omitempty"`
	PublishedAt    *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Post) HasMedia() bool {
	return p.Media.URL != ""
}

// PostFields is a partial update. Nil fields are left untouched; a pointer to
// an empty ErrorMessage clears the stored message.
type PostFields struct {
	Status         *PostStatus
	PlatformPostID *string
	ErrorMessage   *string
	PublishedAt    *time.Time
}

func StatusPtr(s PostStatus) *PostStatus { return &s }

func StringPtr(s string) *string { return &s }

func TimePtr(t time.Time) *time.Time { return &t }
