package auth

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrMalformedToken = errors.New("malformed pairing token")

// NewPairingToken returns a fresh random token in canonical form.
func NewPairingToken() string {
	return uuid.NewString()
}

// ParsePairingToken validates s and returns it in canonical lowercase
// hyphenated form, so "{A0...}" and "a0..." name the same pairing.
func ParsePairingToken(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedToken, s)
	}
	return id.String(), nil
}
