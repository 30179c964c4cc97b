package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/fieldsales-recruit/internal/errors"
	"github.com/unclebandit/fieldsales-recruit/internal/model"
	"github.com/unclebandit/fieldsales-recruit/internal/notify"
	"github.com/unclebandit/fieldsales-recruit/internal/repository"
	"github.com/unclebandit/fieldsales-recruit/internal/service"
)

func TestRedeemCreatesAgentAndMembership(t *testing.T) {
	f := newFixture(t)
	camp := f.campaign(t)
	code := camp.Voucher.Code

	res, err := f.vouchers.Redeem(context.Background(), code, userAttrs("Juan Agent", "x@y.com"))
	require.NoError(t, err)
	assert.Nil(t, res.Warning)

	agent, ok := f.store.UserByEmail("x@y.com")
	require.True(t, ok)
	assert.Equal(t, agent.ID, res.Agent.ID)
	assert.Equal(t, camp.Organization.ID, res.Organization.ID)
	assert.Equal(t, []string{agent.ID}, f.store.Members(camp.Organization.ID))

	v, err := f.vouchers.Lookup(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, model.VoucherRedeemed, v.State)
	require.NotNil(t, v.RedeemedBy)
	assert.Equal(t, agent.ID, *v.RedeemedBy)
	assert.NotNil(t, v.RedeemedAt)

	onboarding := f.rec.ByTemplate(notify.TemplateAgentOnboarding)
	require.Len(t, onboarding, 1)
	assert.Equal(t, agent.Mobile, onboarding[0].Address)
	assert.Equal(t, map[string]string{
		"org":  "Acme Holdings Inc",
		"name": "Juan Agent",
		"code": code,
	}, onboarding[0].Variables)
}

func TestRedeemTwiceFailsAlreadyRedeemed(t *testing.T) {
	f := newFixture(t)
	camp := f.campaign(t)
	code := camp.Voucher.Code

	_, err := f.vouchers.Redeem(context.Background(), code, userAttrs("First", "first@y.com"))
	require.NoError(t, err)
	users := f.store.CountUsers()

	_, err = f.vouchers.Redeem(context.Background(), code, userAttrs("Second", "second@y.com"))
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyRedeemed))
	assert.Len(t, f.store.Members(camp.Organization.ID), 1)
	assert.Equal(t, users, f.store.CountUsers())
	_, ok := f.store.UserByEmail("second@y.com")
	assert.False(t, ok)
	assert.Len(t, f.rec.ByTemplate(notify.TemplateAgentOnboarding), 1)
}

func TestRedeemConcurrentSameCodeHasOneWinner(t *testing.T) {
	f := newFixture(t)
	camp := f.campaign(t)
	code := camp.Voucher.Code

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.vouchers.Redeem(context.Background(), code,
				userAttrs(fmt.Sprintf("Agent %d", i), fmt.Sprintf("agent%d@y.com", i)))
		}(i)
	}
	wg.Wait()

	wins, lost := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, appErrors.ErrAlreadyRedeemed):
			lost++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, lost)
	assert.Len(t, f.store.Members(camp.Organization.ID), 1)
	// admin plus the single winning agent
	assert.Equal(t, 2, f.store.CountUsers())
}

func TestRedeemDistinctCodesConcurrently(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	var codes []string
	for i := 0; i < 4; i++ {
		res, err := f.campaigns.CreateCampaign(context.Background(), campaignInput(admin.ID))
		require.NoError(t, err)
		codes = append(codes, res.Voucher.Code)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(codes))
	for i, code := range codes {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			_, errs[i] = f.vouchers.Redeem(context.Background(), code,
				userAttrs("Agent", fmt.Sprintf("agent%d@y.com", i)))
		}(i, code)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestRedeemUnknownCode(t *testing.T) {
	f := newFixture(t)
	_, err := f.vouchers.Redeem(context.Background(), "NOSUCHCODE", userAttrs("A", "a@y.com"))
	assert.True(t, errors.Is(err, appErrors.ErrVoucherNotFound))
	assert.Zero(t, f.store.CountUsers())
}

func TestRedeemDuplicateEmailLeavesVoucherIssued(t *testing.T) {
	f := newFixture(t)
	camp := f.campaign(t)

	// the admin's address is already registered
	_, err := f.vouchers.Redeem(context.Background(), camp.Voucher.Code, userAttrs("Dup", "admin@acme.test"))
	require.True(t, appErrors.IsInvalidRecruit(err))
	var verr *appErrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "email")

	v, err := f.vouchers.Lookup(context.Background(), camp.Voucher.Code)
	require.NoError(t, err)
	assert.Equal(t, model.VoucherIssued, v.State)
	assert.Nil(t, v.RedeemedBy)
	assert.Empty(t, f.store.Members(camp.Organization.ID))
	assert.Empty(t, f.rec.ByTemplate(notify.TemplateAgentOnboarding))
}

func TestRedeemInvalidAttributes(t *testing.T) {
	f := newFixture(t)
	camp := f.campaign(t)

	attrs := userAttrs("", "not-an-email")
	attrs.PasswordConfirmation = "different"
	attrs.Terms = false
	_, err := f.vouchers.Redeem(context.Background(), camp.Voucher.Code, attrs)

	var verr *appErrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, appErrors.KindInvalidRecruit, verr.Kind)
	for _, field := range []string{"name", "email", "password_confirmation", "terms"} {
		assert.Contains(t, verr.Fields, field)
	}
	v, _ := f.vouchers.Lookup(context.Background(), camp.Voucher.Code)
	assert.Equal(t, model.VoucherIssued, v.State)
}

func TestRedeemRollsBackWhenMembershipFails(t *testing.T) {
	f := newFixture(t)
	camp := f.campaign(t)
	users := f.store.CountUsers()
	f.store.FailNext["AddMember"] = errors.New("connection reset")

	_, err := f.vouchers.Redeem(context.Background(), camp.Voucher.Code, userAttrs("A", "a@y.com"))
	assert.Error(t, err)

	v, _ := f.vouchers.Lookup(context.Background(), camp.Voucher.Code)
	assert.Equal(t, model.VoucherIssued, v.State)
	assert.Equal(t, users, f.store.CountUsers())
	assert.Empty(t, f.rec.ByTemplate(notify.TemplateAgentOnboarding))

	// the code can still be claimed afterwards
	_, err = f.vouchers.Redeem(context.Background(), camp.Voucher.Code, userAttrs("A", "a@y.com"))
	assert.NoError(t, err)
}

func TestRedeemDispatchFailureKeepsClaim(t *testing.T) {
	f := newFixture(t)
	camp := f.campaign(t)
	f.rec.Err = errors.New("gateway down")

	res, err := f.vouchers.Redeem(context.Background(), camp.Voucher.Code, userAttrs("A", "a@y.com"))
	require.NoError(t, err)
	require.NotNil(t, res.Warning)
	assert.Equal(t, notify.TemplateAgentOnboarding, res.Warning.TemplateKey)

	v, _ := f.vouchers.Lookup(context.Background(), camp.Voucher.Code)
	assert.True(t, v.Redeemed())
}

func TestRedeemAcceptsLowercaseCode(t *testing.T) {
	f := newFixture(t)
	camp := f.campaign(t)

	_, err := f.vouchers.Redeem(context.Background(), " "+strings.ToLower(camp.Voucher.Code), userAttrs("A", "a@y.com"))
	assert.NoError(t, err)
}

func TestRedeemCancelledBeforeCommit(t *testing.T) {
	f := newFixture(t)
	camp := f.campaign(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.vouchers.Redeem(ctx, camp.Voucher.Code, userAttrs("A", "a@y.com"))
	assert.ErrorIs(t, err, context.Canceled)
	v, _ := f.vouchers.Lookup(context.Background(), camp.Voucher.Code)
	assert.Equal(t, model.VoucherIssued, v.State)
}

func TestIssuedCodesAreUnique(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		res, err := f.campaigns.CreateCampaign(context.Background(), campaignInput(admin.ID))
		require.NoError(t, err)
		require.False(t, seen[res.Voucher.Code], "duplicate code %s", res.Voucher.Code)
		seen[res.Voucher.Code] = true
	}
}

func TestOrganizationFor(t *testing.T) {
	f := newFixture(t)
	camp := f.campaign(t)

	org, err := f.vouchers.OrganizationFor(context.Background(), camp.Voucher)
	require.NoError(t, err)
	assert.Equal(t, "Acme Holdings Inc.", org.Name)
}

func TestRedeemUnknownCodeWinsOverInvalidForm(t *testing.T) {
	f := newFixture(t)
	_, err := f.vouchers.Redeem(context.Background(), "NOSUCHCODE", service.UserAttributes{Email: "bad"})
	assert.True(t, errors.Is(err, appErrors.ErrVoucherNotFound))
	assert.False(t, appErrors.IsInvalidRecruit(err))
}

func TestRedeemUsedCodeWinsOverInvalidForm(t *testing.T) {
	f := newFixture(t)
	camp := f.campaign(t)
	_, err := f.vouchers.Redeem(context.Background(), camp.Voucher.Code, userAttrs("First", "first@y.com"))
	require.NoError(t, err)

	_, err = f.vouchers.Redeem(context.Background(), camp.Voucher.Code, service.UserAttributes{Name: "Late"})
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyRedeemed))
}

type heldLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *heldLock) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

func (l *heldLock) isHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key]
}

func TestRedeemReleasesLockBeforeOnboarding(t *testing.T) {
	f := newFixture(t)
	camp := f.campaign(t)
	code := camp.Voucher.Code

	locker := &heldLock{held: map[string]bool{}}
	f.vouchers.Locker = locker
	var heldDuringSend bool
	f.vouchers.Dispatcher = notify.DispatcherFunc(func(ctx context.Context, msg notify.Message) error {
		heldDuringSend = locker.isHeld(code)
		return nil
	})

	_, err := f.vouchers.Redeem(context.Background(), code, userAttrs("A", "a@y.com"))
	require.NoError(t, err)
	assert.False(t, heldDuringSend)
	assert.False(t, locker.isHeld(code))
}

func TestIssueRedrawsCodeTakenAtInsert(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	f.store.FailNext["CreateVoucher"] = repository.ErrDuplicateCode

	res, err := f.campaigns.CreateCampaign(context.Background(), campaignInput(admin.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.CountVouchers())
	assert.Equal(t, model.VoucherIssued, res.Voucher.State)
}
