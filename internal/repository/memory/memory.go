// Package memory is an in-process StoreInterface. A unit of work holds the
// store's lock for its whole duration and works on a copy of the state that
// replaces the original only on commit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/fieldsales-recruit/internal/errors"
	"github.com/unclebandit/fieldsales-recruit/internal/ledger"
	"github.com/unclebandit/fieldsales-recruit/internal/model"
	"github.com/unclebandit/fieldsales-recruit/internal/repository"
)

type state struct {
	packages      map[string]model.Package
	users         map[string]model.User
	organizations map[string]model.Organization
	campaigns     map[string]model.Campaign
	records       map[string]model.CampaignRecord // by campaign id
	vouchers      map[string]model.Voucher
	members       map[string]map[string]time.Time // org -> user -> joined
	balances      map[string]int64
	entries       []Entry
	markers       map[string]string
}

// Entry is one ledger mutation.
type Entry struct {
	Account string
	Amount  int64
	Memo    string
}

func newState() *state {
	return &state{
		packages:      map[string]model.Package{},
		users:         map[string]model.User{},
		organizations: map[string]model.Organization{},
		campaigns:     map[string]model.Campaign{},
		records:       map[string]model.CampaignRecord{},
		vouchers:      map[string]model.Voucher{},
		members:       map[string]map[string]time.Time{},
		balances:      map[string]int64{},
		markers:       map[string]string{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.packages {
		c.packages[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.organizations {
		c.organizations[k] = v
	}
	for k, v := range s.campaigns {
		c.campaigns[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.vouchers {
		c.vouchers[k] = v
	}
	for org, users := range s.members {
		m := make(map[string]time.Time, len(users))
		for u, t := range users {
			m[u] = t
		}
		c.members[org] = m
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	c.entries = append([]Entry(nil), s.entries...)
	for k, v := range s.markers {
		c.markers[k] = v
	}
	return c
}

// Store runs every unit of work under one mutex against a cloned snapshot,
// so it serializes all transactions, including redemptions of different
// codes. Only the Postgres store gives per-row concurrency.
type Store struct {
	mu    sync.Mutex
	state *state

	// FailNext, when set, is returned by the next write of the named
	// operation ("CreateVoucher", "AddMember", ...) and then cleared.
	FailNext map[string]error
}

func New() *Store {
	return &Store{state: newState(), FailNext: map[string]error{}}
}

// UpsertPackage lets the store take the package seed.
func (s *Store) UpsertPackage(_ context.Context, p *model.Package) error {
	s.PutPackage(*p)
	return nil
}

// PutPackage adds a catalog entry outside any unit of work.
func (s *Store) PutPackage(p model.Package) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.packages[p.Code] = p
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	tx := &tx{store: s, st: s.state.clone()}
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				s.mu.Unlock()
				panic(p)
			}
		}()
		return fn(ctx, tx)
	}()
	if err == nil {
		s.state = tx.st
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	for _, hook := range tx.hooks {
		hook(ctx)
	}
	return nil
}

func (s *Store) read(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

func (s *Store) FindPackage(ctx context.Context, code string) (*model.Package, error) {
	var p *model.Package
	var err error
	s.read(func(st *state) { p, err = findPackage(st, code) })
	return p, err
}

func (s *Store) VoucherExists(_ context.Context, code string) (bool, error) {
	var ok bool
	s.read(func(st *state) { _, ok = st.vouchers[code] })
	return ok, nil
}

func (s *Store) FindVoucher(_ context.Context, code string) (*model.Voucher, error) {
	var v *model.Voucher
	var err error
	s.read(func(st *state) { v, err = findVoucher(st, code) })
	return v, err
}

func (s *Store) GetCampaign(_ context.Context, id string) (*model.Campaign, error) {
	var c *model.Campaign
	var err error
	s.read(func(st *state) { c, err = getCampaign(st, id) })
	return c, err
}

func (s *Store) GetOrganization(_ context.Context, id string) (*model.Organization, error) {
	var o *model.Organization
	var err error
	s.read(func(st *state) { o, err = getOrganization(st, id) })
	return o, err
}

func (s *Store) Balance(_ context.Context, account string) (int64, error) {
	var b int64
	s.read(func(st *state) { b = st.balances[account] })
	return b, nil
}

// Members lists the user ids belonging to an organization, sorted.
func (s *Store) Members(organizationID string) []string {
	var out []string
	s.read(func(st *state) {
		for u := range st.members[organizationID] {
			out = append(out, u)
		}
	})
	sort.Strings(out)
	return out
}

func (s *Store) CountCampaigns() int {
	var n int
	s.read(func(st *state) { n = len(st.campaigns) })
	return n
}

func (s *Store) CountVouchers() int {
	var n int
	s.read(func(st *state) { n = len(st.vouchers) })
	return n
}

func (s *Store) CountUsers() int {
	var n int
	s.read(func(st *state) { n = len(st.users) })
	return n
}

func (s *Store) Entries(account string) []Entry {
	var out []Entry
	s.read(func(st *state) {
		for _, e := range st.entries {
			if e.Account == account {
				out = append(out, e)
			}
		}
	})
	return out
}

func (s *Store) UserByEmail(email string) (*model.User, bool) {
	var u *model.User
	s.read(func(st *state) { u, _ = findUserByEmail(st, email) })
	return u, u != nil
}

func findPackage(st *state, code string) (*model.Package, error) {
	p, ok := st.packages[code]
	if !ok {
		return nil, appErrors.NewUnknownPackage(code)
	}
	return &p, nil
}

func findVoucher(st *state, code string) (*model.Voucher, error) {
	v, ok := st.vouchers[code]
	if !ok {
		return nil, appErrors.NewVoucherNotFound(code)
	}
	return &v, nil
}

func getCampaign(st *state, id string) (*model.Campaign, error) {
	c, ok := st.campaigns[id]
	if !ok {
		return nil, repository.ErrCampaignNotFound
	}
	if rec, ok := st.records[id]; ok {
		c.Record = &rec
	}
	if p, ok := st.packages[c.PackageCode]; ok {
		c.Package = &p
	}
	return &c, nil
}

func getOrganization(st *state, id string) (*model.Organization, error) {
	o, ok := st.organizations[id]
	if !ok {
		return nil, repository.ErrOrganizationNotFound
	}
	return &o, nil
}

func findUserByEmail(st *state, email string) (*model.User, error) {
	for _, u := range st.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type tx struct {
	store *Store
	st    *state
	hooks []func(ctx context.Context)
}

func (t *tx) fail(op string) error {
	if err, ok := t.store.FailNext[op]; ok {
		delete(t.store.FailNext, op)
		return err
	}
	return nil
}

func (t *tx) AfterCommit(fn func(ctx context.Context)) {
	t.hooks = append(t.hooks, fn)
}

func (t *tx) FindPackage(_ context.Context, code string) (*model.Package, error) {
	return findPackage(t.st, code)
}

func (t *tx) EnsureOrganization(_ context.Context, adminID, name string) (*model.Organization, error) {
	if err := t.fail("EnsureOrganization"); err != nil {
		return nil, err
	}
	for _, o := range t.st.organizations {
		if o.AdminID == adminID && o.Name == name {
			o := o
			return &o, nil
		}
	}
	o := model.Organization{ID: uuid.NewString(), Name: name, AdminID: adminID, CreatedAt: time.Now().UTC()}
	t.st.organizations[o.ID] = o
	return &o, nil
}

func (t *tx) GetOrganization(_ context.Context, id string) (*model.Organization, error) {
	return getOrganization(t.st, id)
}

func (t *tx) AddMember(_ context.Context, organizationID, userID string) error {
	if err := t.fail("AddMember"); err != nil {
		return err
	}
	if t.st.members[organizationID] == nil {
		t.st.members[organizationID] = map[string]time.Time{}
	}
	if _, ok := t.st.members[organizationID][userID]; !ok {
		t.st.members[organizationID][userID] = time.Now().UTC()
	}
	return nil
}

func (t *tx) IsMember(_ context.Context, organizationID, userID string) (bool, error) {
	_, ok := t.st.members[organizationID][userID]
	return ok, nil
}

func (t *tx) Create(_ context.Context, c *model.Campaign) error {
	if err := t.fail("CreateCampaign"); err != nil {
		return err
	}
	if c.Record == nil {
		return errors.New("campaign record is required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Record.ID == "" {
		c.Record.ID = uuid.NewString()
	}
	c.Record.CampaignID = c.ID
	c.CreatedAt = time.Now().UTC()

	row := *c
	row.Record, row.Package = nil, nil
	t.st.campaigns[c.ID] = row
	t.st.records[c.ID] = *c.Record
	return nil
}

func (t *tx) GetByID(_ context.Context, id string) (*model.Campaign, error) {
	return getCampaign(t.st, id)
}

func (t *tx) VoucherExists(_ context.Context, code string) (bool, error) {
	_, ok := t.st.vouchers[code]
	return ok, nil
}

func (t *tx) FindVoucher(_ context.Context, code string) (*model.Voucher, error) {
	return findVoucher(t.st, code)
}

func (t *tx) CreateVoucher(_ context.Context, v *model.Voucher) error {
	if err := t.fail("CreateVoucher"); err != nil {
		return err
	}
	if _, ok := t.st.vouchers[v.Code]; ok {
		return repository.ErrDuplicateCode
	}
	for _, existing := range t.st.vouchers {
		if existing.CampaignID == v.CampaignID {
			return errors.Errorf("campaign %s already has a voucher", v.CampaignID)
		}
	}
	if v.State == "" {
		v.State = model.VoucherIssued
	}
	v.CreatedAt = time.Now().UTC()
	t.st.vouchers[v.Code] = *v
	return nil
}

// LockVoucher needs no extra work: the whole unit of work is exclusive.
func (t *tx) LockVoucher(_ context.Context, code string) (*model.Voucher, error) {
	return findVoucher(t.st, code)
}

func (t *tx) MarkRedeemed(_ context.Context, code, userID string, at time.Time) (bool, error) {
	if err := t.fail("MarkRedeemed"); err != nil {
		return false, err
	}
	v, ok := t.st.vouchers[code]
	if !ok || v.State != model.VoucherIssued {
		return false, nil
	}
	v.State = model.VoucherRedeemed
	v.RedeemedBy = &userID
	v.RedeemedAt = &at
	t.st.vouchers[code] = v
	return true, nil
}

func (t *tx) CreateUser(_ context.Context, nu model.NewUser) (*model.User, error) {
	if err := t.fail("CreateUser"); err != nil {
		return nil, err
	}
	if u, _ := findUserByEmail(t.st, nu.Email); u != nil {
		return nil, repository.ErrDuplicateEmail
	}
	u := model.User{
		ID:           uuid.NewString(),
		Name:         nu.Name,
		Email:        nu.Email,
		Mobile:       nu.Mobile,
		PasswordHash: nu.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	t.st.users[u.ID] = u
	return &u, nil
}

func (t *tx) GetUser(_ context.Context, id string) (*model.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (t *tx) FindUserByEmail(_ context.Context, email string) (*model.User, error) {
	return findUserByEmail(t.st, email)
}

func (t *tx) LockMarker(context.Context, string) error { return nil }

func (t *tx) Marker(_ context.Context, key string) (string, bool, error) {
	v, ok := t.st.markers[key]
	return v, ok, nil
}

func (t *tx) SetMarker(_ context.Context, key, value string) error {
	if _, ok := t.st.markers[key]; ok {
		return errors.Errorf("marker %s already set", key)
	}
	t.st.markers[key] = value
	return nil
}

func (t *tx) Credit(_ context.Context, account string, amount int64, memo string) error {
	if err := ledger.CheckAmount(amount); err != nil {
		return err
	}
	if err := t.fail("Credit"); err != nil {
		return err
	}
	t.st.balances[account] += amount
	t.st.entries = append(t.st.entries, Entry{Account: account, Amount: amount, Memo: memo})
	return nil
}

func (t *tx) Debit(_ context.Context, account string, amount int64, memo string) error {
	if err := ledger.CheckAmount(amount); err != nil {
		return err
	}
	if t.st.balances[account] < amount {
		return errors.Wrapf(ledger.ErrInsufficientFunds, "account %s", account)
	}
	t.st.balances[account] -= amount
	t.st.entries = append(t.st.entries, Entry{Account: account, Amount: -amount, Memo: memo})
	return nil
}

func (t *tx) Balance(_ context.Context, account string) (int64, error) {
	return t.st.balances[account], nil
}

var (
	_ repository.StoreInterface = (*Store)(nil)
	_ repository.Tx             = (*tx)(nil)
)
