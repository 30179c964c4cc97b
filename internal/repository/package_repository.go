package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/fieldsales-recruit/internal/errors"
	"github.com/unclebandit/fieldsales-recruit/internal/model"
)

// PackageRepository is the read side of the package catalog. Packages are
// only written by the seeder.
type PackageRepository struct {
	DB DBTX
}

func (r *PackageRepository) FindPackage(ctx context.Context, code string) (*model.Package, error) {
	var p model.Package
	err := r.DB.QueryRowContext(ctx, `SELECT code, name, price FROM packages WHERE code=$1`, code).
		Scan(&p.Code, &p.Name, &p.Price)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewUnknownPackage(code)
		}
		return nil, errors.Wrap(err, "find package")
	}
	return &p, nil
}

// UpsertPackage inserts or refreshes a catalog entry.
func (r *PackageRepository) UpsertPackage(ctx context.Context, p *model.Package) error {
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO packages (code, name, price)
        VALUES ($1, $2, $3)
        ON CONFLICT (code) DO UPDATE SET name=EXCLUDED.name, price=EXCLUDED.price
    `, p.Code, p.Name, p.Price)
	return errors.Wrap(err, "upsert package")
}
