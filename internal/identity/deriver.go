// internal/identity/deriver.go
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// MinSecretLen is the shortest accepted HMAC secret, in bytes.
const MinSecretLen = 16

const (
	walletPrefix  = "wlt_"
	walletHexSize = 32
)

// ErrWeakSecret is returned by NewDeriver when the secret is missing or too short.
var ErrWeakSecret = errors.New("wallet id secret is missing or too short")

// Deriver maps user ids onto stable pseudonymous wallet ids.
type Deriver struct {
	secret []byte
}

// NewDeriver creates a Deriver keyed with secret.
func NewDeriver(secret string) (*Deriver, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakSecret, MinSecretLen, len(secret))
	}
	return &Deriver{secret: []byte(secret)}, nil
}

// DeriveWalletID returns "wlt_" followed by the first 32 hex characters of
// HMAC-SHA256(secret, userID). The same user id always yields the same wallet id.
func (d *Deriver) DeriveWalletID(userID string) string {
	mac := hmac.New(sha256.New, d.secret)
	mac.Write([]byte(userID))
	return walletPrefix + hex.EncodeToString(mac.Sum(nil))[:walletHexSize]
}
