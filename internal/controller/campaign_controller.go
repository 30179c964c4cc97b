// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"

	"github.com/unclebandit/fieldsales-recruit/internal/auth"
	appErrors "github.com/unclebandit/fieldsales-recruit/internal/errors"
	"github.com/unclebandit/fieldsales-recruit/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

// RegisterOrganization creates a campaign for the authenticated admin and
// answers with the issued voucher code.
func (c *CampaignController) RegisterOrganization(w http.ResponseWriter, r *http.Request) {
	adminID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, r, appErrors.ErrUnauthorized)
		return
	}

	var in service.CreateCampaignInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	in.AdminID = adminID

	res, err := c.CampaignService.CreateCampaign(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	warn(r, res.Warning)
	writeJSON(w, http.StatusCreated, map[string]string{"code": res.Voucher.Code})
}
