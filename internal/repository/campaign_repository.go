package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/unclebandit/fieldsales-recruit/internal/model"
)

var ErrCampaignNotFound = errors.New("campaign not found")

type CampaignRepository struct {
	DB DBTX
}

// Create inserts the campaign row and its record. Ids are assigned here when
// the caller left them empty.
func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
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

	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO campaigns (id, organization_id, admin_id, package_code, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, c.ID, c.OrganizationID, c.AdminID, c.PackageCode, c.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert campaign")
	}

	rec := c.Record
	_, err = r.DB.ExecContext(ctx, `
        INSERT INTO campaign_records (id, campaign_id, channel, format, address, command)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, rec.ID, rec.CampaignID, rec.Channel, rec.Format, rec.Address, rec.Command)
	return errors.Wrap(err, "insert campaign record")
}

// GetByID loads a campaign with its record and package.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := `
        SELECT c.id, c.organization_id, c.admin_id, c.package_code, c.created_at,
               r.id, r.channel, r.format, r.address, r.command,
               p.name, p.price
        FROM campaigns c
        JOIN campaign_records r ON r.campaign_id = c.id
        JOIN packages p ON p.code = c.package_code
        WHERE c.id=$1
    `
	c := model.Campaign{Record: &model.CampaignRecord{}, Package: &model.Package{}}
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.OrganizationID, &c.AdminID, &c.PackageCode, &c.CreatedAt,
		&c.Record.ID, &c.Record.Channel, &c.Record.Format, &c.Record.Address, &c.Record.Command,
		&c.Package.Name, &c.Package.Price,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCampaignNotFound
		}
		return nil, errors.Wrap(err, "get campaign")
	}
	c.Record.CampaignID = c.ID
	c.Package.Code = c.PackageCode
	return &c, nil
}
