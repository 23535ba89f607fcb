package security

import (
	"fmt"
	"time"
)

// KeyRotationWindow gates when a key version is allowed to encrypt/decrypt.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	if !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()) {
		return false
	}
	if !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()) {
		return false
	}
	return true
}

// Rotate decrypts blob under its own key version and re-encrypts it under
// newVersion.
func (c *CredentialCodec) Rotate(blob string, newVersion int) (string, error) {
	if c == nil {
		return "", fmt.Errorf("security: credential codec is nil")
	}
	plain, _, err := c.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return c.Encrypt(plain, newVersion)
}
