package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/unclebandit/fieldsales-recruit/internal/ledger"
	"github.com/unclebandit/fieldsales-recruit/internal/logging"
	"github.com/unclebandit/fieldsales-recruit/internal/model"
	"github.com/unclebandit/fieldsales-recruit/internal/repository"
	"github.com/unclebandit/fieldsales-recruit/internal/secrets"
)

// MarkerSystemAccount holds the system user's id once bootstrap has run.
const MarkerSystemAccount = "system_account_seeded"

// SeedAttributes are the system user's attributes as stored in configuration,
// encrypted unless the provider is secrets.Plain.
type SeedAttributes struct {
	Name     string
	Email    string
	Mobile   string
	Password string
}

// Bootstrapper creates the platform's system user and funds its ledger
// account. It runs at most once per database.
type Bootstrapper struct {
	Store    repository.StoreInterface
	Secrets  secrets.Provider
	Seed     SeedAttributes
	Deposit  int64
	HashCost int
}

// SeedSystemAccount returns the system user, creating and funding it on the
// first call. Later calls return the existing user and deposit nothing.
func (b *Bootstrapper) SeedSystemAccount(ctx context.Context) (*model.User, error) {
	attrs, err := b.decrypt()
	if err != nil {
		return nil, err
	}
	if b.Deposit < 0 {
		return nil, errors.Wrapf(ledger.ErrInvalidAmount, "system deposit %d", b.Deposit)
	}
	hash, err := hashPassword(attrs.Password, b.HashCost)
	if err != nil {
		return nil, err
	}

	var user *model.User
	created := false
	err = b.Store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.LockMarker(ctx, MarkerSystemAccount); err != nil {
			return err
		}
		id, seeded, err := tx.Marker(ctx, MarkerSystemAccount)
		if err != nil {
			return err
		}
		if seeded {
			user, err = tx.GetUser(ctx, id)
			return errors.Wrap(err, "load system user")
		}

		user, err = tx.CreateUser(ctx, model.NewUser{
			Name:         attrs.Name,
			Email:        attrs.Email,
			Mobile:       attrs.Mobile,
			PasswordHash: hash,
		})
		if err != nil {
			return errors.Wrap(err, "create system user")
		}
		if b.Deposit > 0 {
			if err := ledger.Deposit(ctx, tx, ledger.SystemAccount, b.Deposit); err != nil {
				return err
			}
		}
		created = true
		return tx.SetMarker(ctx, MarkerSystemAccount, user.ID)
	})
	if err != nil {
		return nil, err
	}

	l := logging.Ctx(ctx).Info().Str("user_id", user.ID)
	if created {
		l.Int64("deposit", b.Deposit).Msg("system account seeded")
	} else {
		l.Msg("system account already seeded")
	}
	return user, nil
}

func (b *Bootstrapper) decrypt() (SeedAttributes, error) {
	var out SeedAttributes
	fields := []struct {
		name string
		in   string
		out  *string
	}{
		{"name", b.Seed.Name, &out.Name},
		{"email", b.Seed.Email, &out.Email},
		{"mobile", b.Seed.Mobile, &out.Mobile},
		{"password", b.Seed.Password, &out.Password},
	}
	for _, f := range fields {
		if f.in == "" {
			if f.name == "mobile" {
				continue
			}
			return SeedAttributes{}, errors.Errorf("seed attribute %s is empty", f.name)
		}
		v, err := b.Secrets.Decrypt(f.in)
		if err != nil {
			return SeedAttributes{}, errors.Wrapf(err, "decrypt seed %s", f.name)
		}
		*f.out = strings.TrimSpace(v)
	}
	out.Email = strings.ToLower(out.Email)
	return out, nil
}
