package ledger_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/fieldsales-recruit/internal/ledger"
)

type creditCall struct {
	account string
	amount  int64
	memo    string
}

type fakeLedger struct{ credits []creditCall }

func (f *fakeLedger) Credit(_ context.Context, account string, amount int64, memo string) error {
	if err := ledger.CheckAmount(amount); err != nil {
		return err
	}
	f.credits = append(f.credits, creditCall{account, amount, memo})
	return nil
}
func (f *fakeLedger) Debit(context.Context, string, int64, string) error { return nil }
func (f *fakeLedger) Balance(context.Context, string) (int64, error)     { return 0, nil }

func TestDepositCreditsWithMemo(t *testing.T) {
	l := &fakeLedger{}
	assert.NoError(t, ledger.Deposit(context.Background(), l, ledger.SystemAccount, 1000000))
	assert.Equal(t, []creditCall{{ledger.SystemAccount, 1000000, "deposit"}}, l.credits)
}

func TestCheckAmount(t *testing.T) {
	assert.NoError(t, ledger.CheckAmount(1))
	assert.True(t, errors.Is(ledger.CheckAmount(0), ledger.ErrInvalidAmount))
	assert.True(t, errors.Is(ledger.CheckAmount(-5), ledger.ErrInvalidAmount))
}
