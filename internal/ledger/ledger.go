// Package ledger is the balance-mutation contract the campaign flows use.
// Double-entry bookkeeping lives behind it; callers only credit, debit and
// read balances.
package ledger

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrInvalidAmount     = errors.New("ledger: amount must be positive")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
)

type Ledger interface {
	Credit(ctx context.Context, account string, amount int64, memo string) error
	Debit(ctx context.Context, account string, amount int64, memo string) error
	Balance(ctx context.Context, account string) (int64, error)
}

// Deposit seeds an account with a starting balance.
func Deposit(ctx context.Context, l Ledger, account string, amount int64) error {
	return l.Credit(ctx, account, amount, "deposit")
}

// CheckAmount rejects zero and negative mutations.
func CheckAmount(amount int64) error {
	if amount <= 0 {
		return errors.Wrapf(ErrInvalidAmount, "got %d", amount)
	}
	return nil
}

// SystemAccount is the ledger account owned by the platform's system user.
// Package purchases are credited to it.
const SystemAccount = "system"
