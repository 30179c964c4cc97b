package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/unclebandit/fieldsales-recruit/internal/auth"
	"github.com/unclebandit/fieldsales-recruit/internal/codegen"
	"github.com/unclebandit/fieldsales-recruit/internal/model"
	"github.com/unclebandit/fieldsales-recruit/internal/notify"
	"github.com/unclebandit/fieldsales-recruit/internal/repository/memory"
	"github.com/unclebandit/fieldsales-recruit/internal/service"
)

const testBaseURL = "https://recruit.test"

type fixture struct {
	store     *memory.Store
	rec       *notify.Recorder
	vouchers  *service.VoucherService
	campaigns *service.CampaignService
	users     *service.UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	st.PutPackage(model.Package{Code: "qualification", Name: "Qualification", Price: 500})
	rec := &notify.Recorder{}
	vs := &service.VoucherService{
		Store:         st,
		Codes:         codegen.New(),
		Dispatcher:    rec,
		RedeemURL:     func(code string) string { return testBaseURL + "/recruit/" + code },
		NotifyTimeout: time.Second,
		HashCost:      bcrypt.MinCost,
	}
	return &fixture{
		store:     st,
		rec:       rec,
		vouchers:  vs,
		campaigns: &service.CampaignService{Store: st, Vouchers: vs},
		users: &service.UserService{
			Store:    st,
			Tokens:   auth.NewTokens("test-secret", time.Hour),
			HashCost: bcrypt.MinCost,
		},
	}
}

func userAttrs(name, email string) service.UserAttributes {
	return service.UserAttributes{
		Name:                 name,
		Email:                email,
		Mobile:               "09171234567",
		Password:             "password",
		PasswordConfirmation: "password",
		Terms:                true,
	}
}

func (f *fixture) admin(t *testing.T) *model.User {
	t.Helper()
	u, _, err := f.users.Register(context.Background(), userAttrs("Enterprise Admin", "admin@acme.test"))
	require.NoError(t, err)
	return u
}

func campaignInput(adminID string) service.CreateCampaignInput {
	return service.CreateCampaignInput{
		AdminID: adminID,
		Name:    "Acme Holdings Inc.",
		Channel: "SMS",
		Format:  "TXT",
		Address: "a@b.com",
		Command: "Hello",
		Package: "qualification",
	}
}

func (f *fixture) campaign(t *testing.T) *service.CampaignResult {
	t.Helper()
	res, err := f.campaigns.CreateCampaign(context.Background(), campaignInput(f.admin(t).ID))
	require.NoError(t, err)
	return res
}
