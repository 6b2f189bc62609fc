package exam

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Access codes are short enough to type from an email but drawn from
// crypto/rand; they are an obscurity measure, not a security token.
const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// GenerateCode produces one opaque access code. Uniqueness across
// candidates is enforced by the store's UNIQUE index, with the caller
// retrying on collision.
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate access code: %w", err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
