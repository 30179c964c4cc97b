package db

import (
	"context"
	_ "embed"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/unclebandit/fieldsales-recruit/internal/model"
)

//go:embed seed/packages.yaml
var defaultPackages []byte

type packageFile struct {
	Packages []model.Package `yaml:"packages"`
}

// PackageSink stores catalog entries.
type PackageSink interface {
	UpsertPackage(ctx context.Context, p *model.Package) error
}

// LoadPackages reads the package catalog from path, or the built-in catalog
// when path is empty.
func LoadPackages(path string) ([]model.Package, error) {
	raw := defaultPackages
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		raw = b
	}
	var f packageFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parse package catalog")
	}
	seen := map[string]bool{}
	for _, p := range f.Packages {
		if p.Code == "" || p.Name == "" {
			return nil, errors.Errorf("package %+v needs a code and a name", p)
		}
		if p.Price < 0 {
			return nil, errors.Errorf("package %s has a negative price", p.Code)
		}
		if seen[p.Code] {
			return nil, errors.Errorf("package %s listed twice", p.Code)
		}
		seen[p.Code] = true
	}
	return f.Packages, nil
}

// SeedPackages writes every package through sink.
func SeedPackages(ctx context.Context, sink PackageSink, pkgs []model.Package) error {
	for i := range pkgs {
		p := &pkgs[i]
		if err := sink.UpsertPackage(ctx, p); err != nil {
			return errors.Wrapf(err, "seed package %s", p.Code)
		}
	}
	return nil
}
