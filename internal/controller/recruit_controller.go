package controller

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/fieldsales-recruit/internal/service"
)

// DashboardPath is where a recruited agent lands.
const DashboardPath = "/dashboard"

type RecruitController struct {
	VoucherService *service.VoucherService
}

// Show reports whether a code can still be redeemed.
func (c *RecruitController) Show(w http.ResponseWriter, r *http.Request) {
	v, err := c.VoucherService.Lookup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	org, err := c.VoucherService.OrganizationFor(r.Context(), v)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if v.Redeemed() {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{
		"code":         v.Code,
		"state":        string(v.State),
		"organization": org.DisplayName(),
	})
}

// Redeem registers the agent and sends them to the dashboard.
func (c *RecruitController) Redeem(w http.ResponseWriter, r *http.Request) {
	attrs, err := decodeRecruit(r)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	res, err := c.VoucherService.Redeem(r.Context(), chi.URLParam(r, "code"), attrs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	warn(r, res.Warning)
	http.Redirect(w, r, DashboardPath, http.StatusFound)
}

// decodeRecruit accepts a JSON body or a submitted form.
func decodeRecruit(r *http.Request) (service.UserAttributes, error) {
	var attrs service.UserAttributes
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&attrs)
		return attrs, err
	}
	if err := r.ParseForm(); err != nil {
		return attrs, err
	}
	terms, _ := strconv.ParseBool(r.PostForm.Get("terms"))
	if r.PostForm.Get("terms") == "on" {
		terms = true
	}
	attrs = service.UserAttributes{
		Name:                 r.PostForm.Get("name"),
		Email:                r.PostForm.Get("email"),
		Mobile:               r.PostForm.Get("mobile"),
		Password:             r.PostForm.Get("password"),
		PasswordConfirmation: r.PostForm.Get("password_confirmation"),
		Terms:                terms,
	}
	return attrs, nil
}
