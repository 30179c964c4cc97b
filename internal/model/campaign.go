// internal/model/campaign.go
package model

import "time"

// Campaign binds an organization's recruitment effort to one purchased
// package and one outbound message definition. OrganizationID and AdminID
// are written once at creation.
type Campaign struct {
	ID             string          `db:"id" json:"id"`
	OrganizationID string          `db:"organization_id" json:"organization_id"`
	AdminID        string          `db:"admin_id" json:"admin_id"`
	PackageCode    string          `db:"package_code" json:"package_code"`
	Record         *CampaignRecord `json:"record,omitempty"`
	Package        *Package        `json:"package,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// CampaignRecord is the outbound message definition owned by a campaign.
type CampaignRecord struct {
	ID         string  `db:"id" json:"id"`
	CampaignID string  `db:"campaign_id" json:"campaign_id"`
	Channel    Channel `db:"channel" json:"channel"`
	Format     Format  `db:"format" json:"format"`
	Address    string  `db:"address" json:"address"`
	Command    string  `db:"command" json:"command"`
}
