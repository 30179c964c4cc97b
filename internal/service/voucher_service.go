// internal/service/voucher_service.go
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/unclebandit/fieldsales-recruit/internal/codegen"
	appErrors "github.com/unclebandit/fieldsales-recruit/internal/errors"
	"github.com/unclebandit/fieldsales-recruit/internal/lock"
	"github.com/unclebandit/fieldsales-recruit/internal/logging"
	"github.com/unclebandit/fieldsales-recruit/internal/metrics"
	"github.com/unclebandit/fieldsales-recruit/internal/model"
	"github.com/unclebandit/fieldsales-recruit/internal/notify"
	"github.com/unclebandit/fieldsales-recruit/internal/repository"
)

// insertAttempts bounds redraws after a code collides at insert time.
const insertAttempts = 3

// VoucherService issues campaign vouchers and redeems them into
// organization memberships.
type VoucherService struct {
	Store      repository.StoreInterface
	Codes      *codegen.Generator
	Dispatcher notify.Dispatcher
	Locker     lock.Locker

	// RedeemURL builds the public link for a code.
	RedeemURL     func(code string) string
	NotifyTimeout time.Duration
	HashCost      int
	Now           func() time.Time
}

// Issuance is the result of Issue. Warning is filled in once the unit of
// work has committed and the org-campaign notification was attempted.
type Issuance struct {
	Voucher *model.Voucher
	Warning *appErrors.DispatchError
}

// Redemption is the result of a successful Redeem.
type Redemption struct {
	Voucher      *model.Voucher
	Agent        *model.User
	Organization *model.Organization
	Warning      *appErrors.DispatchError
}

func (s *VoucherService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *VoucherService) locker() lock.Locker {
	if s.Locker == nil {
		return lock.Noop{}
	}
	return s.Locker
}

// Issue creates the voucher for c inside tx. The org-campaign notification
// goes out only after tx commits.
func (s *VoucherService) Issue(ctx context.Context, tx repository.Tx, c *model.Campaign) (*Issuance, error) {
	if c == nil || c.ID == "" {
		return nil, errors.Wrap(appErrors.ErrInvalidCampaign, "campaign is not persisted")
	}
	if c.Record == nil {
		return nil, errors.Wrapf(appErrors.ErrInvalidCampaign, "campaign %s has no record", c.ID)
	}
	if c.Package == nil {
		if c.PackageCode == "" {
			return nil, errors.Wrapf(appErrors.ErrInvalidCampaign, "campaign %s has no package", c.ID)
		}
		pkg, err := tx.FindPackage(ctx, c.PackageCode)
		if err != nil {
			return nil, errors.Wrapf(appErrors.ErrInvalidCampaign, "campaign %s: %v", c.ID, err)
		}
		c.Package = pkg
	}

	org, err := tx.GetOrganization(ctx, c.OrganizationID)
	if err != nil {
		return nil, errors.Wrapf(appErrors.ErrInvalidCampaign, "campaign %s: %v", c.ID, err)
	}
	admin, err := tx.GetUser(ctx, c.AdminID)
	if err != nil {
		return nil, errors.Wrapf(appErrors.ErrInvalidCampaign, "campaign %s: %v", c.ID, err)
	}

	v, err := s.createVoucher(ctx, tx, c.ID)
	if err != nil {
		return nil, err
	}
	code := v.Code

	iss := &Issuance{Voucher: v}
	msg := notify.Message{
		Channel:     c.Record.Channel,
		Format:      c.Record.Format,
		Address:     contactFor(admin, c.Record),
		TemplateKey: notify.TemplateOrgCampaign,
		Variables: map[string]string{
			"org": org.DisplayName(),
			"url": s.RedeemURL(code),
		},
	}
	tx.AfterCommit(func(ctx context.Context) {
		metrics.VouchersIssued.Inc()
		iss.Warning = s.dispatch(ctx, msg)
	})
	return iss, nil
}

// createVoucher draws a code and inserts the voucher. The existence check
// only sees committed rows, so a code taken by a concurrent issuer is
// detected at insert time and redrawn.
func (s *VoucherService) createVoucher(ctx context.Context, tx repository.Tx, campaignID string) (*model.Voucher, error) {
	for attempt := 1; ; attempt++ {
		code, err := s.Codes.Generate(ctx, tx.VoucherExists)
		if err != nil {
			return nil, err
		}
		v := &model.Voucher{Code: code, CampaignID: campaignID, State: model.VoucherIssued}
		err = tx.CreateVoucher(ctx, v)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, repository.ErrDuplicateCode) {
			return nil, err
		}
		if attempt >= insertAttempts {
			return nil, errors.Wrapf(appErrors.ErrCodeExhaustion, "campaign %s: %d insert conflicts", campaignID, attempt)
		}
		logging.Ctx(ctx).Warn().Str("campaign_id", campaignID).Msg("voucher code taken concurrently, redrawing")
	}
}

// Redeem claims code for a new agent built from attrs. User creation, the
// claim and the membership commit together or not at all.
func (s *VoucherService) Redeem(ctx context.Context, code string, attrs UserAttributes) (res *Redemption, err error) {
	defer func() { metrics.Redemptions.WithLabelValues(redemptionResult(err)).Inc() }()

	code = normalizeCode(code)
	// The code is judged before the form. The locked read below stays the
	// authority on its state.
	current, err := s.Store.FindVoucher(ctx, code)
	if err != nil {
		return nil, err
	}
	if current.Redeemed() {
		return nil, appErrors.ErrAlreadyRedeemed
	}

	attrs.normalize()
	if err := validateStruct(appErrors.KindInvalidRecruit, attrs); err != nil {
		return nil, err
	}
	hash, err := hashPassword(attrs.Password, s.HashCost)
	if err != nil {
		return nil, err
	}

	release, err := s.locker().Lock(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "lock voucher")
	}
	var once sync.Once
	unlock := func() { once.Do(release) }
	defer unlock()

	res = &Redemption{}
	var onboarding notify.Message
	err = s.Store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		v, err := tx.LockVoucher(ctx, code)
		if err != nil {
			return err
		}
		if v.Redeemed() {
			return appErrors.ErrAlreadyRedeemed
		}
		c, err := tx.GetByID(ctx, v.CampaignID)
		if err != nil {
			return err
		}
		org, err := tx.GetOrganization(ctx, c.OrganizationID)
		if err != nil {
			return err
		}

		agent, err := tx.CreateUser(ctx, model.NewUser{
			Name:         attrs.Name,
			Email:        attrs.Email,
			Mobile:       attrs.Mobile,
			PasswordHash: hash,
		})
		if err == repository.ErrDuplicateEmail {
			return appErrors.NewInvalidRecruit(map[string]string{"email": "has already been taken"})
		}
		if err != nil {
			return err
		}

		at := s.now()
		ok, err := tx.MarkRedeemed(ctx, code, agent.ID, at)
		if err != nil {
			return err
		}
		if !ok {
			return appErrors.ErrAlreadyRedeemed
		}
		if err := tx.AddMember(ctx, org.ID, agent.ID); err != nil {
			return err
		}

		v.State = model.VoucherRedeemed
		v.RedeemedBy = &agent.ID
		v.RedeemedAt = &at
		res.Voucher, res.Agent, res.Organization = v, agent, org

		onboarding = notify.Message{
			Channel:     c.Record.Channel,
			Format:      c.Record.Format,
			Address:     contactFor(agent, c.Record),
			TemplateKey: notify.TemplateAgentOnboarding,
			Variables: map[string]string{
				"org":  org.DisplayName(),
				"name": agent.Name,
				"code": code,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// committed; the per-code lock is not needed for delivery
	unlock()
	res.Warning = s.dispatch(ctx, onboarding)
	logging.Ctx(ctx).Info().
		Str("code", code).
		Str("organization_id", res.Organization.ID).
		Str("agent_id", res.Agent.ID).
		Msg("voucher redeemed")
	return res, nil
}

// Lookup reads a voucher without claiming it.
func (s *VoucherService) Lookup(ctx context.Context, code string) (*model.Voucher, error) {
	return s.Store.FindVoucher(ctx, normalizeCode(code))
}

// OrganizationFor resolves the organization a voucher recruits into.
func (s *VoucherService) OrganizationFor(ctx context.Context, v *model.Voucher) (*model.Organization, error) {
	c, err := s.Store.GetCampaign(ctx, v.CampaignID)
	if err != nil {
		return nil, err
	}
	return s.Store.GetOrganization(ctx, c.OrganizationID)
}

// dispatch sends msg under the notify timeout. A failure is logged, counted
// and returned as a warning.
func (s *VoucherService) dispatch(ctx context.Context, msg notify.Message) *appErrors.DispatchError {
	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.Dispatcher.Send(ctx, msg); err != nil {
		metrics.DispatchFailures.WithLabelValues(msg.TemplateKey).Inc()
		logging.Ctx(ctx).Warn().Err(err).
			Str("template", msg.TemplateKey).
			Str("channel", string(msg.Channel)).
			Msg("notification dispatch failed")
		return &appErrors.DispatchError{TemplateKey: msg.TemplateKey, Err: err}
	}
	return nil
}

// contactFor picks the user's address on the campaign channel, falling back
// to the campaign's own address.
func contactFor(u *model.User, rec *model.CampaignRecord) string {
	switch {
	case rec.Channel == model.ChannelSMS && u.Mobile != "":
		return u.Mobile
	case rec.Channel == model.ChannelEmail && u.Email != "":
		return u.Email
	default:
		return rec.Address
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func redemptionResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultRedeemed
	case errors.Is(err, appErrors.ErrVoucherNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, appErrors.ErrAlreadyRedeemed):
		return metrics.ResultAlreadyRedeemed
	case appErrors.IsInvalidRecruit(err):
		return metrics.ResultInvalid
	default:
		return metrics.ResultError
	}
}
