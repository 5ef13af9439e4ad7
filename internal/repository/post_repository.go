package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	GetDueScheduled(ctx context.Context, now time.Time) ([]*models.Post, error)
	GetScheduled(ctx context.Context) ([]*models.Post, error)
	GetFailed(ctx context.Context) ([]*models.Post, error)
	GetStalledPublishing(ctx context.Context, olderThan time.Time) ([]*models.Post, error)
	// CompareAndSetStatus moves the post to next only if its current status is
	// exactly expected. The boolean reports whether this caller won.
	CompareAndSetStatus(ctx context.Context, id int64, expected, next models.PostStatus) (bool, error)
	// CompareAndUpdate applies fields only if the current status is expected.
	CompareAndUpdate(ctx context.Context, id int64, expected models.PostStatus, fields models.PostFields) (bool, error)
	Update(ctx context.Context, id int64, fields models.PostFields) error
}

const postColumns = `id, user_id, platform, account_id, content, title, media_url, media_type,
	scheduled_for, status, platform_post_id, error_message, published_at, created_at, updated_at`

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		post           models.Post
		scheduledFor   sql.NullTime
		publishedAt    sql.NullTime
		platformPostID sql.NullString
		errorMessage   sql.NullString
	)
	err := row.Scan(&post.ID, &post.UserID, &post.Platform, &post.AccountID, &post.Content, &post.Title,
		&post.Media.URL, &post.Media.Type, &scheduledFor, &post.Status, &platformPostID, &errorMessage,
		&publishedAt, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if scheduledFor.Valid {
		post.ScheduledFor = &scheduledFor.Time
	}
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}
	post.PlatformPostID = platformPostID.String
	post.ErrorMessage = errorMessage.String
	return &post, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) GetDueScheduled(ctx context.Context, now time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 AND scheduled_for <= $2 ORDER BY scheduled_for`
	return r.list(ctx, query, models.PostStatusScheduled, now)
}

func (r *postRepository) GetScheduled(ctx context.Context) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 ORDER BY scheduled_for`
	return r.list(ctx, query, models.PostStatusScheduled)
}

func (r *postRepository) GetFailed(ctx context.Context) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 ORDER BY updated_at`
	return r.list(ctx, query, models.PostStatusFailed)
}

func (r *postRepository) GetStalledPublishing(ctx context.Context, olderThan time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`
	return r.list(ctx, query, models.PostStatusPublishing, olderThan)
}

func (r *postRepository) list(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) CompareAndSetStatus(ctx context.Context, id int64, expected, next models.PostStatus) (bool, error) {
	query := `UPDATE posts SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, next, time.Now(), id, expected)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affectedOne(res)
}

func (r *postRepository) CompareAndUpdate(ctx context.Context, id int64, expected models.PostStatus, fields models.PostFields) (bool, error) {
	query := `
		UPDATE posts
		SET status = COALESCE($1, status),
			platform_post_id = COALESCE($2, platform_post_id),
			error_message = COALESCE($3, error_message),
			published_at = COALESCE($4, published_at),
			updated_at = $5
		WHERE id = $6 AND status = $7
	`
	status, platformPostID, errorMessage, publishedAt := fieldArgs(fields)
	res, err := r.db.ExecContext(ctx, query, status, platformPostID, errorMessage, publishedAt, time.Now(), id, expected)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affectedOne(res)
}

func (r *postRepository) Update(ctx context.Context, id int64, fields models.PostFields) error {
	query := `
		UPDATE posts
		SET status = COALESCE($1, status),
			platform_post_id = COALESCE($2, platform_post_id),
			error_message = COALESCE($3, error_message),
			published_at = COALESCE($4, published_at),
			updated_at = $5
		WHERE id = $6
	`
	status, platformPostID, errorMessage, publishedAt := fieldArgs(fields)
	_, err := r.db.ExecContext(ctx, query, status, platformPostID, errorMessage, publishedAt, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func fieldArgs(f models.PostFields) (status, platformPostID, errorMessage sql.NullString, publishedAt sql.NullTime) {
	if f.Status != nil {
		status = sql.NullString{String: string(*f.Status), Valid: true}
	}
	if f.PlatformPostID != nil {
		platformPostID = sql.NullString{String: *f.PlatformPostID, Valid: true}
	}
	if f.ErrorMessage != nil {
		errorMessage = sql.NullString{String: *f.ErrorMessage, Valid: true}
	}
	if f.PublishedAt != nil {
		publishedAt = sql.NullTime{Time: *f.PublishedAt, Valid: true}
	}
	return
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return n == 1, nil
}
