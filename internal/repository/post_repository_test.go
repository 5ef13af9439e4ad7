package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/require"
)

var postRowColumns = []string{"id", "user_id", "platform", "account_id", "content", "title", "media_url", "media_type",
	"scheduled_for", "status", "platform_post_id", "error_message", "published_at", "created_at", "updated_at"}

func TestPostRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)
	due := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	created := due.Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM posts WHERE id = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(postRowColumns).
			AddRow(7, 3, "facebook", 11, "hello", "", "https://cdn.example.com/a.mp4", "video",
				due, "scheduled", nil, nil, nil, created, created))

	post, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, post)
	require.Equal(t, int64(7), post.ID)
	require.Equal(t, models.PostStatusScheduled, post.Status)
	require.Equal(t, "https://cdn.example.com/a.mp4", post.Media.URL)
	require.NotNil(t, post.ScheduledFor)
	require.True(t, post.ScheduledFor.Equal(due))
	require.Nil(t, post.PublishedAt)
	require.Empty(t, post.PlatformPostID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_GetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM posts WHERE id = $1`)).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	post, err := repo.GetByID(context.Background(), 99)
	require.NoError(t, err)
	require.Nil(t, post)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_GetDueScheduled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM posts WHERE status = $1 AND scheduled_for <= $2`)).
		WithArgs("scheduled", now).
		WillReturnRows(sqlmock.NewRows(postRowColumns).
			AddRow(1, 3, "facebook", 11, "a", "", "", "", now.Add(-time.Minute), "scheduled", nil, nil, nil, now, now).
			AddRow(2, 3, "instagram", 12, "b", "", "", "", now, "scheduled", nil, nil, nil, now, now))

	posts, err := repo.GetDueScheduled(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, "instagram", posts[1].Platform)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_CompareAndSetStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)
	query := regexp.QuoteMeta(`UPDATE posts SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`)

	mock.ExpectExec(query).
		WithArgs("publishing", sqlmock.AnyArg(), int64(5), "scheduled").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs("publishing", sqlmock.AnyArg(), int64(5), "scheduled").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.CompareAndSetStatus(context.Background(), 5, models.PostStatusScheduled, models.PostStatusPublishing)
	require.NoError(t, err)
	require.True(t, won)

	won, err = repo.CompareAndSetStatus(context.Background(), 5, models.PostStatusScheduled, models.PostStatusPublishing)
	require.NoError(t, err)
	require.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_CompareAndUpdatePublished(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)
	publishedAt := time.Date(2026, 10, 14, 9, 0, 5, 0, time.UTC)

	mock.ExpectExec(`(?s)UPDATE posts.*WHERE id = \$6 AND status = \$7`).
		WithArgs("published", "123_456", "", publishedAt, sqlmock.AnyArg(), int64(5), "publishing").
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := repo.CompareAndUpdate(context.Background(), 5, models.PostStatusPublishing, models.PostFields{
		Status:         models.StatusPtr(models.PostStatusPublished),
		PlatformPostID: models.StringPtr("123_456"),
		ErrorMessage:   models.StringPtr(""),
		PublishedAt:    &publishedAt,
	})
	require.NoError(t, err)
	require.True(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_UpdateLeavesNilFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)

	mock.ExpectExec(`(?s)UPDATE posts.*WHERE id = \$6`).
		WithArgs("failed", nil, "token expired", nil, sqlmock.AnyArg(), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Update(context.Background(), 9, models.PostFields{
		Status:       models.StatusPtr(models.PostStatusFailed),
		ErrorMessage: models.StringPtr("token expired"),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_CompareAndSetStatusError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE posts SET status = $1`)).
		WillReturnError(errors.New("connection reset"))

	won, err := repo.CompareAndSetStatus(context.Background(), 5, models.PostStatusScheduled, models.PostStatusPublishing)
	require.Error(t, err)
	require.False(t, won)
}
