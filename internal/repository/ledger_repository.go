package repository

import (
	"context"
	"database/sql"
	"hash/fnv"

	"github.com/pkg/errors"

	"github.com/unclebandit/fieldsales-recruit/internal/ledger"
)

// LedgerRepository keeps one balance row per account plus an append-only
// entry log.
type LedgerRepository struct {
	DB DBTX
}

func (r *LedgerRepository) Credit(ctx context.Context, account string, amount int64, memo string) error {
	if err := ledger.CheckAmount(amount); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO ledger_accounts (account_id, balance, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (account_id) DO UPDATE
        SET balance = ledger_accounts.balance + EXCLUDED.balance, updated_at = NOW()
    `, account, amount)
	if err != nil {
		return errors.Wrap(err, "credit account")
	}
	return r.appendEntry(ctx, account, amount, memo)
}

// Debit refuses to take an account below zero.
func (r *LedgerRepository) Debit(ctx context.Context, account string, amount int64, memo string) error {
	if err := ledger.CheckAmount(amount); err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `
        UPDATE ledger_accounts SET balance = balance - $2, updated_at = NOW()
        WHERE account_id=$1 AND balance >= $2
    `, account, amount)
	if err != nil {
		return errors.Wrap(err, "debit account")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "debit rows")
	}
	if n == 0 {
		return errors.Wrapf(ledger.ErrInsufficientFunds, "account %s", account)
	}
	return r.appendEntry(ctx, account, -amount, memo)
}

func (r *LedgerRepository) Balance(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := r.DB.QueryRowContext(ctx, `SELECT balance FROM ledger_accounts WHERE account_id=$1`, account).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read balance")
	}
	return balance, nil
}

func (r *LedgerRepository) appendEntry(ctx context.Context, account string, amount int64, memo string) error {
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO ledger_entries (account_id, amount, memo, created_at)
        VALUES ($1, $2, $3, NOW())
    `, account, amount, memo)
	return errors.Wrap(err, "append ledger entry")
}

// MarkerRepository stores one-shot bootstrap flags.
type MarkerRepository struct {
	DB DBTX
}

// LockMarker takes a transaction-scoped advisory lock derived from key, so
// two seeders started together cannot both see the marker missing.
func (r *MarkerRepository) LockMarker(ctx context.Context, key string) error {
	h := fnv.New64a()
	h.Write([]byte("marker:" + key))
	_, err := r.DB.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(h.Sum64()))
	return errors.Wrap(err, "lock marker")
}

func (r *MarkerRepository) Marker(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM bootstrap_markers WHERE key=$1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "read marker")
	}
	return value, true, nil
}

func (r *MarkerRepository) SetMarker(ctx context.Context, key, value string) error {
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO bootstrap_markers (key, value, created_at) VALUES ($1, $2, NOW())
    `, key, value)
	return errors.Wrap(err, "set marker")
}
