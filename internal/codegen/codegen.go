// Package codegen produces voucher codes.
package codegen

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/fieldsales-recruit/internal/errors"
)

const (
	DefaultLength      = 10
	DefaultMaxAttempts = 8

	// No 0/O or 1/I/L: codes get typed in from SMS.
	Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

// ExistsFunc reports whether a code has already been issued.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

type Generator struct {
	Length      int
	MaxAttempts int
}

func New() *Generator {
	return &Generator{Length: DefaultLength, MaxAttempts: DefaultMaxAttempts}
}

// Generate draws random codes until exists reports one as unused. It fails
// with ErrCodeExhaustion once MaxAttempts draws have all collided.
func (g *Generator) Generate(ctx context.Context, exists ExistsFunc) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := g.random()
		if err != nil {
			return "", errors.Wrap(err, "read random")
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", errors.Wrap(err, "check code")
		}
		if !taken {
			return code, nil
		}
	}
	return "", errors.Wrapf(appErrors.ErrCodeExhaustion, "%d attempts", attempts)
}

func (g *Generator) random() (string, error) {
	n := g.Length
	if n <= 0 {
		n = DefaultLength
	}
	size := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		buf[i] = Alphabet[idx.Int64()]
	}
	return string(buf), nil
}
