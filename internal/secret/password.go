package secret

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// DefaultLength is the password length used by the handshake.
const DefaultLength = 5

// Alphabet is the set of characters a password is drawn from.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ErrInvalidLength is returned when a non-positive length is requested.
var ErrInvalidLength = errors.New("secret: length must be positive")

// Provider produces a password of the requested length.
type Provider func(length int) (string, error)

// NewPassword returns a random string of length characters drawn from Alphabet.
func NewPassword(length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}

	max := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("reading random index: %w", err)
		}
		buf[i] = Alphabet[n.Int64()]
	}

	return string(buf), nil
}
