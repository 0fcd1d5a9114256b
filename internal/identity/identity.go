// Package identity generates the short, human-shareable codes assigned to
// applications. Codes avoid visually ambiguous glyphs (0/O, 1/I) so they can
// be read aloud or copied from a printed document.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
)

// Alphabet is the character set codes are drawn from.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	// MinLength and MaxLength bound the code length (inclusive).
	MinLength = 8
	MaxLength = 10

	// DefaultMaxAttempts bounds the collision retry loop.
	DefaultMaxAttempts = 64
)

// ErrExhausted is returned when no free code was found within MaxAttempts.
var ErrExhausted = errors.New("identity: no free code after max attempts")

// ExistsFunc reports whether a code is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generator draws random codes and re-checks them against an ExistsFunc.
type Generator struct {
	MaxAttempts int

	// TEST SEAM: overridable randomness source.
	Rand func(max int64) (int64, error)
}

// New returns a Generator backed by crypto/rand.
func New() *Generator {
	return &Generator{MaxAttempts: DefaultMaxAttempts}
}

// Generate returns a code for which exists reports false. It must be called
// before the owning entity is first written; the check is not atomic with the
// insert, so callers rely on a unique index and retry on conflict.
func (g *Generator) Generate(ctx context.Context, exists ExistsFunc) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := g.draw()
		if err != nil {
			return "", err
		}
		if exists == nil {
			return code, nil
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrExhausted
}

func (g *Generator) draw() (string, error) {
	n, err := g.intn(MaxLength - MinLength + 1)
	if err != nil {
		return "", err
	}
	buf := make([]byte, MinLength+int(n))
	for i := range buf {
		idx, err := g.intn(int64(len(Alphabet)))
		if err != nil {
			return "", err
		}
		buf[i] = Alphabet[idx]
	}
	return string(buf), nil
}

func (g *Generator) intn(max int64) (int64, error) {
	if g.Rand != nil {
		return g.Rand(max)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

// Valid reports whether code has an allowed length and only alphabet chars.
func Valid(code string) bool {
	if len(code) < MinLength || len(code) > MaxLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !inAlphabet(code[i]) {
			return false
		}
	}
	return true
}

func inAlphabet(c byte) bool {
	for i := 0; i < len(Alphabet); i++ {
		if Alphabet[i] == c {
			return true
		}
	}
	return false
}
