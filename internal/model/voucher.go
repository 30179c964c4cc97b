// internal/model/voucher.go
package model

import "time"

type VoucherState string

const (
	VoucherIssued   VoucherState = "issued"
	VoucherRedeemed VoucherState = "redeemed"
)

// Voucher is a single-use code tied to exactly one campaign.
type Voucher struct {
	Code       string       `db:"code" json:"code"`
	CampaignID string       `db:"campaign_id" json:"campaign_id"`
	State      VoucherState `db:"state" json:"state"`
	RedeemedBy *string      `db:"redeemed_by" json:"redeemed_by,omitempty"`
	RedeemedAt *time.Time   `db:"redeemed_at" json:"redeemed_at,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

func (v *Voucher) Redeemed() bool {
	return v.State == VoucherRedeemed
}
