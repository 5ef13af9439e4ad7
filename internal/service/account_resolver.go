package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
)

var ErrAccountNotFound = errors.New("social account not found")

// AccountResolver loads the account a post publishes to and decrypts its
// access token.
type AccountResolver interface {
	Resolve(ctx context.Context, post *models.Post) (platform.Account, error)
}

type accountResolver struct {
	sa        repository.SocialAccountRepository
	secretKey string
}

func NewAccountResolver(sa repository.SocialAccountRepository, secretKey string) AccountResolver {
	return &accountResolver{sa: sa, secretKey: secretKey}
}

func (r *accountResolver) Resolve(ctx context.Context, post *models.Post) (platform.Account, error) {
	acc, err := r.sa.GetByID(ctx, post.AccountID)
	if err != nil {
		return platform.Account{}, err
	}
	if acc == nil {
		return platform.Account{}, fmt.Errorf("%w: id %d", ErrAccountNotFound, post.AccountID)
	}
	if acc.Platform != post.Platform {
		return platform.Account{}, fmt.Errorf("account %d is a %s account, post targets %s", acc.ID, acc.Platform, post.Platform)
	}
	token, err := utils.OpenSecret(acc.AccessToken, []byte(r.secretKey))
	if err != nil {
		return platform.Account{}, fmt.Errorf("decrypt token for account %d: %w", acc.ID, err)
	}
	return platform.Account{ID: acc.ID, ExternalID: acc.AccountID, AccessToken: token}, nil
}
