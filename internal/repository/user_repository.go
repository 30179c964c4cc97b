package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/unclebandit/fieldsales-recruit/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

const pqUniqueViolation = "23505"

type UserRepository struct {
	DB DBTX
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// CreateUser inserts a user. A taken email comes back as ErrDuplicateEmail.
func (r *UserRepository) CreateUser(ctx context.Context, nu model.NewUser) (*model.User, error) {
	u := &model.User{
		ID:           uuid.NewString(),
		Name:         nu.Name,
		Email:        nu.Email,
		Mobile:       nu.Mobile,
		PasswordHash: nu.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO users (id, name, email, mobile, password_hash, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, u.ID, u.Name, u.Email, u.Mobile, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, errors.Wrap(err, "insert user")
	}
	return u, nil
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	return r.scanOne(ctx, `WHERE id=$1`, id)
}

func (r *UserRepository) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.scanOne(ctx, `WHERE lower(email)=lower($1)`, email)
}

func (r *UserRepository) scanOne(ctx context.Context, where string, arg any) (*model.User, error) {
	query := `SELECT id, name, email, mobile, password_hash, created_at FROM users ` + where
	var u model.User
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.Mobile, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, "get user")
	}
	return &u, nil
}
