package service

import (
	"context"

	appErrors "github.com/unclebandit/fieldsales-recruit/internal/errors"
	"github.com/unclebandit/fieldsales-recruit/internal/model"
	"github.com/unclebandit/fieldsales-recruit/internal/repository"
)

// TokenIssuer mints bearer tokens for a user id.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// UserService registers enterprise users.
type UserService struct {
	Store    repository.StoreInterface
	Tokens   TokenIssuer
	HashCost int
}

// Register creates an enterprise user and returns it with a bearer token.
func (s *UserService) Register(ctx context.Context, attrs UserAttributes) (*model.User, string, error) {
	attrs.normalize()
	if err := validateStruct(appErrors.KindInvalidUser, attrs); err != nil {
		return nil, "", err
	}
	hash, err := hashPassword(attrs.Password, s.HashCost)
	if err != nil {
		return nil, "", err
	}

	var user *model.User
	err = s.Store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		u, err := tx.CreateUser(ctx, model.NewUser{
			Name:         attrs.Name,
			Email:        attrs.Email,
			Mobile:       attrs.Mobile,
			PasswordHash: hash,
		})
		if err == repository.ErrDuplicateEmail {
			return appErrors.NewValidation(appErrors.KindInvalidUser, map[string]string{"email": "has already been taken"})
		}
		user = u
		return err
	})
	if err != nil {
		return nil, "", err
	}

	token, err := s.Tokens.Issue(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}
