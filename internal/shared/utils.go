// Package shared provides helpers for drawing random strings.
package shared

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// RandomString draws length runes uniformly from alphabet using crypto/rand.
//
// Example:
//
//	id, err := RandomString("abc123", 8)
//	// id == "b3a1c2ab" (for instance)
func RandomString(alphabet string, length int) (string, error) {
	runes := []rune(alphabet)
	if len(runes) == 0 {
		return "", errors.New("empty alphabet")
	}

	max := big.NewInt(int64(len(runes)))
	out := make([]rune, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = runes[n.Int64()]
	}

	return string(out), nil
}
