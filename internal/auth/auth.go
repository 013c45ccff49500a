// Package auth holds the relay's credentials: pairing tokens handed to
// devices, the keyboard-interactive challenges SSH users must answer, and
// the MAC native devices present over their TLS session.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
)

const (
	SecretSize = 32
	MACSize    = sha256.Size
)

// GenerateSecret returns a random device secret.
func GenerateSecret() ([]byte, error) {
	key := make([]byte, SecretSize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ComputeDeviceMAC computes HMAC-SHA256(secret, exporterMaterial).
// exporterMaterial comes from TLS.ExportKeyingMaterial, so a captured MAC
// is useless on any other session.
func ComputeDeviceMAC(secret, exporterMaterial []byte) [MACSize]byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(exporterMaterial)
	var sum [MACSize]byte
	copy(sum[:], mac.Sum(nil))
	return sum
}

// VerifyDeviceMAC reports whether got is the MAC of exporterMaterial.
func VerifyDeviceMAC(secret, exporterMaterial, got []byte) bool {
	expected := ComputeDeviceMAC(secret, exporterMaterial)
	return hmac.Equal(got, expected[:])
}
