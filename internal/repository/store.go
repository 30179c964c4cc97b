// internal/repository/store.go
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/unclebandit/fieldsales-recruit/internal/ledger"
	"github.com/unclebandit/fieldsales-recruit/internal/logging"
	"github.com/unclebandit/fieldsales-recruit/internal/model"
)

// ErrDuplicateEmail is returned by CreateUser when the email is taken.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrDuplicateCode is returned by CreateVoucher when another transaction
// already holds the drawn code.
var ErrDuplicateCode = errors.New("voucher code already issued")

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PackageRepositoryInterface interface {
	FindPackage(ctx context.Context, code string) (*model.Package, error)
}

type OrganizationRepositoryInterface interface {
	// EnsureOrganization returns the organization named name owned by
	// adminID, creating it if it does not exist yet.
	EnsureOrganization(ctx context.Context, adminID, name string) (*model.Organization, error)
	GetOrganization(ctx context.Context, id string) (*model.Organization, error)
	AddMember(ctx context.Context, organizationID, userID string) error
	IsMember(ctx context.Context, organizationID, userID string) (bool, error)
}

type CampaignRepositoryInterface interface {
	// Create persists the campaign together with its record.
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
}

type VoucherRepositoryInterface interface {
	VoucherExists(ctx context.Context, code string) (bool, error)
	FindVoucher(ctx context.Context, code string) (*model.Voucher, error)
	CreateVoucher(ctx context.Context, v *model.Voucher) error
	// LockVoucher reads the voucher and holds it against concurrent
	// redemption until the unit of work ends.
	LockVoucher(ctx context.Context, code string) (*model.Voucher, error)
	// MarkRedeemed flips issued -> redeemed. It reports false when the
	// voucher was no longer issued.
	MarkRedeemed(ctx context.Context, code, userID string, at time.Time) (bool, error)
}

type UserRepositoryInterface interface {
	CreateUser(ctx context.Context, u model.NewUser) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
}

type MarkerRepositoryInterface interface {
	// LockMarker serializes concurrent holders of key until the unit of work ends.
	LockMarker(ctx context.Context, key string) error
	Marker(ctx context.Context, key string) (string, bool, error)
	SetMarker(ctx context.Context, key, value string) error
}

// Tx is one unit of work. Everything written through it commits or rolls
// back together.
type Tx interface {
	PackageRepositoryInterface
	OrganizationRepositoryInterface
	CampaignRepositoryInterface
	VoucherRepositoryInterface
	UserRepositoryInterface
	MarkerRepositoryInterface
	ledger.Ledger

	// AfterCommit queues fn to run once the unit of work has committed.
	// It is dropped on rollback.
	AfterCommit(fn func(ctx context.Context))
}

// StoreInterface is what the services depend on.
type StoreInterface interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	PackageRepositoryInterface
	VoucherExists(ctx context.Context, code string) (bool, error)
	FindVoucher(ctx context.Context, code string) (*model.Voucher, error)
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	GetOrganization(ctx context.Context, id string) (*model.Organization, error)
	Balance(ctx context.Context, account string) (int64, error)
}

// Store is the PostgreSQL implementation of StoreInterface.
type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

type pgTx struct {
	*PackageRepository
	*OrganizationRepository
	*CampaignRepository
	*VoucherRepository
	*UserRepository
	*MarkerRepository
	*LedgerRepository

	hooks []func(ctx context.Context)
}

func newPgTx(q DBTX) *pgTx {
	return &pgTx{
		PackageRepository:      &PackageRepository{DB: q},
		OrganizationRepository: &OrganizationRepository{DB: q},
		CampaignRepository:     &CampaignRepository{DB: q},
		VoucherRepository:      &VoucherRepository{DB: q},
		UserRepository:         &UserRepository{DB: q},
		MarkerRepository:       &MarkerRepository{DB: q},
		LedgerRepository:       &LedgerRepository{DB: q},
	}
}

func (t *pgTx) AfterCommit(fn func(ctx context.Context)) {
	t.hooks = append(t.hooks, fn)
}

// RunInTx runs fn in a database transaction. fn's error, or a panic, rolls
// back; otherwise the transaction commits and queued AfterCommit hooks run
// in order.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	sqlTx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	tx := newPgTx(sqlTx)

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logging.Ctx(ctx).Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	for _, hook := range tx.hooks {
		hook(ctx)
	}
	return nil
}

func (s *Store) FindPackage(ctx context.Context, code string) (*model.Package, error) {
	return (&PackageRepository{DB: s.DB}).FindPackage(ctx, code)
}

func (s *Store) VoucherExists(ctx context.Context, code string) (bool, error) {
	return (&VoucherRepository{DB: s.DB}).VoucherExists(ctx, code)
}

func (s *Store) FindVoucher(ctx context.Context, code string) (*model.Voucher, error) {
	return (&VoucherRepository{DB: s.DB}).FindVoucher(ctx, code)
}

func (s *Store) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return (&CampaignRepository{DB: s.DB}).GetByID(ctx, id)
}

func (s *Store) GetOrganization(ctx context.Context, id string) (*model.Organization, error) {
	return (&OrganizationRepository{DB: s.DB}).GetOrganization(ctx, id)
}

func (s *Store) Balance(ctx context.Context, account string) (int64, error) {
	return (&LedgerRepository{DB: s.DB}).Balance(ctx, account)
}

var (
	_ StoreInterface = (*Store)(nil)
	_ Tx             = (*pgTx)(nil)
)
