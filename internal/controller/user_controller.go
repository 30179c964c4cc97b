package controller

import (
	"encoding/json"
	"net/http"

	"github.com/unclebandit/fieldsales-recruit/internal/service"
)

type UserController struct {
	UserService *service.UserService
}

// Register signs up an enterprise user.
func (c *UserController) Register(w http.ResponseWriter, r *http.Request) {
	var attrs service.UserAttributes
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	user, token, err := c.UserService.Register(r.Context(), attrs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": user.ID, "token": token})
}
