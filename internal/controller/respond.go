// internal/controller/respond.go
package controller

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/fieldsales-recruit/internal/errors"
	"github.com/unclebandit/fieldsales-recruit/internal/logging"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes. Anything unrecognised is
// logged and reported as a 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *appErrors.ValidationError
	var upe *appErrors.UnknownPackageError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: verr.Kind, Fields: verr.Fields})
	case errors.As(err, &upe):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:  appErrors.ErrUnknownPackage.Error(),
			Fields: map[string]string{"package": upe.Error()},
		})
	case errors.Is(err, appErrors.ErrInvalidCampaign):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: appErrors.ErrInvalidCampaign.Error()})
	case errors.Is(err, appErrors.ErrVoucherNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: appErrors.ErrVoucherNotFound.Error()})
	case errors.Is(err, appErrors.ErrAlreadyRedeemed):
		writeJSON(w, http.StatusConflict, errorBody{Error: appErrors.ErrAlreadyRedeemed.Error()})
	case errors.Is(err, appErrors.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: appErrors.ErrUnauthorized.Error()})
	case errors.Is(err, appErrors.ErrCodeExhaustion):
		logging.Ctx(r.Context()).Error().Err(err).Msg("voucher code space exhausted")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// warn logs a non-fatal dispatch failure next to a successful response.
func warn(r *http.Request, w *appErrors.DispatchError) {
	if w != nil {
		logging.Ctx(r.Context()).Warn().Err(w).Msg("request succeeded with notification warning")
	}
}
