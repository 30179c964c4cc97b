// internal/model/organization.go
package model

import (
	"strings"
	"time"
)

type Organization struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	AdminID   string    `db:"admin_id" json:"admin_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DisplayName is the name used in outbound messages: trailing periods are
// dropped so "Acme Inc." reads naturally inside a sentence.
func (o *Organization) DisplayName() string {
	return strings.TrimRight(o.Name, ".")
}

// OrganizationUser records an agent's membership in an organization.
type OrganizationUser struct {
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
