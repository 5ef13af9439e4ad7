package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"

	"github.com/maheshrc27/postflow/internal/models"
)

type SocialAccountRepository interface {
	GetByID(ctx context.Context, id int64) (*models.SocialAccount, error)
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

func (r *socialAccountRepository) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	query := `
		SELECT id, user_id, platform, account_id, account_name, account_username,
			access_token, refresh_token, token_expires_at, account_status, created_at, updated_at
		FROM social_accounts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var sa models.SocialAccount
	err := row.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.AccountID, &sa.AccountName,
		&sa.AccountUsername, &sa.AccessToken, &sa.RefreshToken,
		&sa.TokenExpiresAt, &sa.AccountStatus, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &sa, nil
}

type MemorySocialAccountRepository struct {
	mu       sync.RWMutex
	accounts map[int64]*models.SocialAccount
}

func NewMemorySocialAccountRepository() *MemorySocialAccountRepository {
	return &MemorySocialAccountRepository{accounts: make(map[int64]*models.SocialAccount)}
}

func (r *MemorySocialAccountRepository) Put(sa *models.SocialAccount) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *sa
	r.accounts[sa.ID] = &c
}

func (r *MemorySocialAccountRepository) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sa, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	c := *sa
	return &c, nil
}
