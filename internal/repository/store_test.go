package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/fieldsales-recruit/internal/errors"
	"github.com/unclebandit/fieldsales-recruit/internal/ledger"
	"github.com/unclebandit/fieldsales-recruit/internal/model"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestRunInTxCommitsAndRunsHooks(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO organization_users")).
		WithArgs("org-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var order []string
	err := NewStore(db).RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		tx.AfterCommit(func(context.Context) { order = append(order, "first") })
		tx.AfterCommit(func(context.Context) { order = append(order, "second") })
		return tx.AddMember(ctx, "org-1", "user-1")
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxRollsBackAndDropsHooks(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	ran := false
	err := NewStore(db).RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		tx.AfterCommit(func(context.Context) { ran = true })
		return boom
	})
	assert.Equal(t, boom, err)
	assert.False(t, ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxRollsBackOnPanic(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = NewStore(db).RunInTx(context.Background(), func(context.Context, Tx) error {
			panic("kaboom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func voucherRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"code", "campaign_id", "state", "redeemed_by", "redeemed_at", "created_at"})
}

func TestLockVoucherUsesRowLock(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery(q("FROM vouchers WHERE code=$1 FOR UPDATE")).
		WithArgs("ABCDEFGHJK").
		WillReturnRows(voucherRows().AddRow("ABCDEFGHJK", "camp-1", "issued", nil, nil, time.Now()))

	v, err := (&VoucherRepository{DB: db}).LockVoucher(context.Background(), "ABCDEFGHJK")
	require.NoError(t, err)
	assert.Equal(t, model.VoucherIssued, v.State)
	assert.Nil(t, v.RedeemedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindVoucherNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery(q("FROM vouchers WHERE code=$1")).
		WithArgs("NOPE").
		WillReturnRows(voucherRows())

	_, err := (&VoucherRepository{DB: db}).FindVoucher(context.Background(), "NOPE")
	assert.True(t, errors.Is(err, appErrors.ErrVoucherNotFound))
}

func TestCreateVoucherReportsTakenCode(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec(q("ON CONFLICT (code) DO NOTHING")).
		WithArgs("ABCDEFGHJK", "camp-1", model.VoucherIssued, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("ON CONFLICT (code) DO NOTHING")).
		WithArgs("ZXCVBNMPQR", "camp-1", model.VoucherIssued, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := &VoucherRepository{DB: db}
	err := repo.CreateVoucher(context.Background(), &model.Voucher{Code: "ABCDEFGHJK", CampaignID: "camp-1"})
	assert.Equal(t, ErrDuplicateCode, err)

	err = repo.CreateVoucher(context.Background(), &model.Voucher{Code: "ZXCVBNMPQR", CampaignID: "camp-1"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindVoucherRedeemed(t *testing.T) {
	db, mock := setupTestDB(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(q("FROM vouchers WHERE code=$1")).
		WithArgs("ABC").
		WillReturnRows(voucherRows().AddRow("ABC", "camp-1", "redeemed", "user-9", at, at))

	v, err := (&VoucherRepository{DB: db}).FindVoucher(context.Background(), "ABC")
	require.NoError(t, err)
	assert.True(t, v.Redeemed())
	require.NotNil(t, v.RedeemedBy)
	assert.Equal(t, "user-9", *v.RedeemedBy)
	assert.Equal(t, at, *v.RedeemedAt)
}

func TestMarkRedeemedIsCompareAndSwap(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &VoucherRepository{DB: db}

	mock.ExpectExec(q("UPDATE vouchers")).
		WithArgs("redeemed", "user-1", sqlmock.AnyArg(), "ABC", "issued").
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.MarkRedeemed(context.Background(), "ABC", "user-1", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(q("UPDATE vouchers")).
		WithArgs("redeemed", "user-2", sqlmock.AnyArg(), "ABC", "issued").
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.MarkRedeemed(context.Background(), "ABC", "user-2", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec(q("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := (&UserRepository{DB: db}).CreateUser(context.Background(), model.NewUser{Email: "x@y.com"})
	assert.Equal(t, ErrDuplicateEmail, err)
}

func TestCreateUserAssignsID(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec(q("INSERT INTO users")).
		WithArgs(sqlmock.AnyArg(), "Agent", "x@y.com", "09171234567", "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := (&UserRepository{DB: db}).CreateUser(context.Background(), model.NewUser{
		Name: "Agent", Email: "x@y.com", Mobile: "09171234567", PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
}

func TestFindPackageUnknown(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery(q("SELECT code, name, price FROM packages WHERE code=$1")).
		WithArgs("gold").
		WillReturnRows(sqlmock.NewRows([]string{"code", "name", "price"}))

	_, err := (&PackageRepository{DB: db}).FindPackage(context.Background(), "gold")
	assert.True(t, errors.Is(err, appErrors.ErrUnknownPackage))
}

func TestCampaignCreateWritesRecord(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec(q("INSERT INTO campaigns")).
		WithArgs(sqlmock.AnyArg(), "org-1", "admin-1", "qualification", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO campaign_records")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "SMS", "TXT", "a@b.com", "Hello").
		WillReturnResult(sqlmock.NewResult(0, 1))

	c := &model.Campaign{
		OrganizationID: "org-1",
		AdminID:        "admin-1",
		PackageCode:    "qualification",
		Record:         &model.CampaignRecord{Channel: model.ChannelSMS, Format: model.FormatTXT, Address: "a@b.com", Command: "Hello"},
	}
	require.NoError(t, (&CampaignRepository{DB: db}).Create(context.Background(), c))
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, c.ID, c.Record.CampaignID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitInsufficientFunds(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec(q("UPDATE ledger_accounts SET balance = balance - $2")).
		WithArgs("system", int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := (&LedgerRepository{DB: db}).Debit(context.Background(), "system", 500, "purchase")
	assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds))
}

func TestCreditRejectsNonPositive(t *testing.T) {
	db, _ := setupTestDB(t)
	err := (&LedgerRepository{DB: db}).Credit(context.Background(), "system", 0, "noop")
	assert.True(t, errors.Is(err, ledger.ErrInvalidAmount))
}

func TestBalanceOfUnknownAccountIsZero(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery(q("SELECT balance FROM ledger_accounts")).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	b, err := (&LedgerRepository{DB: db}).Balance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, b)
}

func TestMarkerMissing(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery(q("SELECT value FROM bootstrap_markers")).
		WithArgs("system_account_seeded").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, ok, err := (&MarkerRepository{DB: db}).Marker(context.Background(), "system_account_seeded")
	require.NoError(t, err)
	assert.False(t, ok)
}
