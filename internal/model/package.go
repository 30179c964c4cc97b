// internal/model/package.go
package model

// Package is a purchasable tier. Price is in minor units.
type Package struct {
	Code  string `db:"code" json:"code" yaml:"code"`
	Name  string `db:"name" json:"name" yaml:"name"`
	Price int64  `db:"price" json:"price" yaml:"price"`
}
