// internal/service/campaign_service.go
package service

import (
	"context"
	"strings"

	appErrors "github.com/unclebandit/fieldsales-recruit/internal/errors"
	"github.com/unclebandit/fieldsales-recruit/internal/ledger"
	"github.com/unclebandit/fieldsales-recruit/internal/logging"
	"github.com/unclebandit/fieldsales-recruit/internal/metrics"
	"github.com/unclebandit/fieldsales-recruit/internal/model"
	"github.com/unclebandit/fieldsales-recruit/internal/repository"
)

type CampaignService struct {
	Store    repository.StoreInterface
	Vouchers *VoucherService
}

// CreateCampaignInput is the register-organization request. AdminID comes
// from the authenticated caller, not the body.
type CreateCampaignInput struct {
	AdminID string `json:"-" validate:"required"`
	Name    string `json:"name" validate:"required,max=255"`
	Channel string `json:"channel" validate:"required"`
	Format  string `json:"format" validate:"required"`
	Address string `json:"address" validate:"required,max=255"`
	Command string `json:"command" validate:"required,max=255"`
	Package string `json:"package" validate:"required"`
}

type CampaignResult struct {
	Campaign     *model.Campaign
	Organization *model.Organization
	Voucher      *model.Voucher
	Warning      *appErrors.DispatchError
}

// CreateCampaign resolves the package, finds or creates the organization,
// stores the campaign, books the purchase and issues its voucher in one unit
// of work.
func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*CampaignResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Package = strings.TrimSpace(in.Package)
	if err := validateStruct(appErrors.KindInvalidCampaign, in); err != nil {
		return nil, err
	}
	fields := map[string]string{}
	channel, err := model.ParseChannel(in.Channel)
	if err != nil {
		fields["channel"] = "is not a supported channel"
	}
	format, err := model.ParseFormat(in.Format)
	if err != nil {
		fields["format"] = "is not a supported format"
	}
	if len(fields) > 0 {
		return nil, appErrors.NewValidation(appErrors.KindInvalidCampaign, fields)
	}

	var res CampaignResult
	var iss *Issuance
	err = s.Store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		pkg, err := tx.FindPackage(ctx, in.Package)
		if err != nil {
			return err
		}
		org, err := tx.EnsureOrganization(ctx, in.AdminID, in.Name)
		if err != nil {
			return err
		}
		c := &model.Campaign{
			OrganizationID: org.ID,
			AdminID:        in.AdminID,
			PackageCode:    pkg.Code,
			Package:        pkg,
			Record: &model.CampaignRecord{
				Channel: channel,
				Format:  format,
				Address: in.Address,
				Command: in.Command,
			},
		}
		if err := tx.Create(ctx, c); err != nil {
			return err
		}
		if pkg.Price > 0 {
			if err := tx.Credit(ctx, ledger.SystemAccount, pkg.Price, "purchase:"+c.ID); err != nil {
				return err
			}
			tx.AfterCommit(func(context.Context) { metrics.LedgerCredits.Add(float64(pkg.Price)) })
		}
		iss, err = s.Vouchers.Issue(ctx, tx, c)
		if err != nil {
			return err
		}
		res.Campaign, res.Organization = c, org
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Voucher, res.Warning = iss.Voucher, iss.Warning
	logging.Ctx(ctx).Info().
		Str("campaign_id", res.Campaign.ID).
		Str("organization_id", res.Organization.ID).
		Str("package", res.Campaign.PackageCode).
		Msg("campaign created")
	return &res, nil
}
