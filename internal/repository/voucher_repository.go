package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/fieldsales-recruit/internal/errors"
	"github.com/unclebandit/fieldsales-recruit/internal/model"
)

type VoucherRepository struct {
	DB DBTX
}

const voucherColumns = `code, campaign_id, state, redeemed_by, redeemed_at, created_at`

func scanVoucher(row *sql.Row, code string) (*model.Voucher, error) {
	var v model.Voucher
	var redeemedBy sql.NullString
	var redeemedAt sql.NullTime
	err := row.Scan(&v.Code, &v.CampaignID, &v.State, &redeemedBy, &redeemedAt, &v.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewVoucherNotFound(code)
		}
		return nil, errors.Wrap(err, "scan voucher")
	}
	if redeemedBy.Valid {
		v.RedeemedBy = &redeemedBy.String
	}
	if redeemedAt.Valid {
		t := redeemedAt.Time
		v.RedeemedAt = &t
	}
	return &v, nil
}

func (r *VoucherRepository) VoucherExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM vouchers WHERE code=$1)`, code).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "voucher exists")
	}
	return exists, nil
}

func (r *VoucherRepository) FindVoucher(ctx context.Context, code string) (*model.Voucher, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code=$1`, code)
	return scanVoucher(row, code)
}

func (r *VoucherRepository) CreateVoucher(ctx context.Context, v *model.Voucher) error {
	if v.State == "" {
		v.State = model.VoucherIssued
	}
	v.CreatedAt = time.Now().UTC()
	// ON CONFLICT keeps the surrounding transaction usable so the caller can
	// draw another code.
	res, err := r.DB.ExecContext(ctx, `
        INSERT INTO vouchers (code, campaign_id, state, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (code) DO NOTHING
    `, v.Code, v.CampaignID, v.State, v.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert voucher")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "insert voucher")
	}
	if n == 0 {
		return ErrDuplicateCode
	}
	return nil
}

// LockVoucher takes the row lock; a second redeemer of the same code waits
// here until the first transaction ends.
func (r *VoucherRepository) LockVoucher(ctx context.Context, code string) (*model.Voucher, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code=$1 FOR UPDATE`, code)
	return scanVoucher(row, code)
}

func (r *VoucherRepository) MarkRedeemed(ctx context.Context, code, userID string, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE vouchers
        SET state=$1, redeemed_by=$2, redeemed_at=$3
        WHERE code=$4 AND state=$5
    `, model.VoucherRedeemed, userID, at, code, model.VoucherIssued)
	if err != nil {
		return false, errors.Wrap(err, "mark redeemed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "mark redeemed rows")
	}
	return n == 1, nil
}
