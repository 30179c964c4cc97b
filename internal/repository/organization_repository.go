package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/unclebandit/fieldsales-recruit/internal/model"
)

var ErrOrganizationNotFound = errors.New("organization not found")

type OrganizationRepository struct {
	DB DBTX
}

// EnsureOrganization is a single upsert so two campaigns created at once for
// the same (admin, name) resolve to one organization.
func (r *OrganizationRepository) EnsureOrganization(ctx context.Context, adminID, name string) (*model.Organization, error) {
	org := model.Organization{Name: name, AdminID: adminID}
	query := `
        INSERT INTO organizations (id, name, admin_id, created_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (admin_id, name) DO UPDATE SET name=EXCLUDED.name
        RETURNING id, created_at
    `
	err := r.DB.QueryRowContext(ctx, query, uuid.NewString(), name, adminID).Scan(&org.ID, &org.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "ensure organization")
	}
	return &org, nil
}

func (r *OrganizationRepository) GetOrganization(ctx context.Context, id string) (*model.Organization, error) {
	var org model.Organization
	err := r.DB.QueryRowContext(ctx, `
        SELECT id, name, admin_id, created_at FROM organizations WHERE id=$1
    `, id).Scan(&org.ID, &org.Name, &org.AdminID, &org.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrganizationNotFound
		}
		return nil, errors.Wrap(err, "get organization")
	}
	return &org, nil
}

// AddMember is idempotent per (organization, user).
func (r *OrganizationRepository) AddMember(ctx context.Context, organizationID, userID string) error {
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO organization_users (organization_id, user_id, created_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (organization_id, user_id) DO NOTHING
    `, organizationID, userID)
	return errors.Wrap(err, "add member")
}

func (r *OrganizationRepository) IsMember(ctx context.Context, organizationID, userID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
        SELECT EXISTS (SELECT 1 FROM organization_users WHERE organization_id=$1 AND user_id=$2)
    `, organizationID, userID).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check membership")
	}
	return exists, nil
}
