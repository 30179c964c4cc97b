// internal/errors/errors.go
package appErrors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Sentinel errors for campaign assembly and the voucher engine.
var (
	ErrUnknownPackage  = errors.New("unknown package")
	ErrInvalidCampaign = errors.New("invalid campaign")
	ErrCodeExhaustion  = errors.New("voucher code space exhausted")
	ErrVoucherNotFound = errors.New("voucher not found")
	ErrAlreadyRedeemed = errors.New("voucher already redeemed")
	ErrUnauthorized    = errors.New("unauthorized")
)

// UnknownPackageError names the package code that failed to resolve.
type UnknownPackageError struct {
	Code string
}

func (e *UnknownPackageError) Error() string {
	return fmt.Sprintf("package %q not found", e.Code)
}

func (e *UnknownPackageError) Is(target error) bool {
	return target == ErrUnknownPackage
}

func NewUnknownPackage(code string) error {
	return &UnknownPackageError{Code: code}
}

// VoucherNotFoundError names the code that was looked up.
type VoucherNotFoundError struct {
	Code string
}

func (e *VoucherNotFoundError) Error() string {
	return fmt.Sprintf("voucher %q not found", e.Code)
}

func (e *VoucherNotFoundError) Is(target error) bool {
	return target == ErrVoucherNotFound
}

func NewVoucherNotFound(code string) error {
	return &VoucherNotFoundError{Code: code}
}

// ValidationError carries field-level detail for rejected input.
// InvalidRecruit and campaign input validation both use it.
type ValidationError struct {
	Kind   string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Kind + ": " + strings.Join(parts, "; ")
}

const (
	KindInvalidRecruit  = "invalid recruit"
	KindInvalidCampaign = "invalid campaign input"
	KindInvalidUser     = "invalid user"
)

func NewInvalidRecruit(fields map[string]string) *ValidationError {
	return &ValidationError{Kind: KindInvalidRecruit, Fields: fields}
}

func NewValidation(kind string, fields map[string]string) *ValidationError {
	return &ValidationError{Kind: kind, Fields: fields}
}

// IsInvalidRecruit reports whether err is a rejected recruit submission.
func IsInvalidRecruit(err error) bool {
	var v *ValidationError
	return errors.As(err, &v) && v.Kind == KindInvalidRecruit
}

// DispatchError is a non-fatal notification failure. It is reported next to a
// successful result and never returned as the error of an operation.
type DispatchError struct {
	TemplateKey string
	Err         error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.TemplateKey, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
