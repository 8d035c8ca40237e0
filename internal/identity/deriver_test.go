// internal/identity/deriver_test.go
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-test-secret"

func TestNewDeriver(t *testing.T) {
	t.Run("MissingSecret", func(t *testing.T) {
		d, err := NewDeriver("")
		assert.ErrorIs(t, err, ErrWeakSecret)
		assert.Nil(t, d)
	})

	t.Run("ShortSecret", func(t *testing.T) {
		_, err := NewDeriver("too-short")
		assert.ErrorIs(t, err, ErrWeakSecret)
	})

	t.Run("MinimumLength", func(t *testing.T) {
		d, err := NewDeriver(strings.Repeat("x", MinSecretLen))
		require.NoError(t, err)
		assert.NotNil(t, d)
	})
}

func TestDeriveWalletID(t *testing.T) {
	d, err := NewDeriver(testSecret)
	require.NoError(t, err)

	t.Run("Deterministic", func(t *testing.T) {
		first := d.DeriveWalletID("fan-42")
		second := d.DeriveWalletID("fan-42")
		assert.Equal(t, first, second)

		again, err := NewDeriver(testSecret)
		require.NoError(t, err)
		assert.Equal(t, first, again.DeriveWalletID("fan-42"))
	})

	t.Run("Format", func(t *testing.T) {
		id := d.DeriveWalletID("artist-7")
		assert.True(t, strings.HasPrefix(id, "wlt_"))
		assert.Len(t, id, len("wlt_")+32)

		mac := hmac.New(sha256.New, []byte(testSecret))
		mac.Write([]byte("artist-7"))
		assert.Equal(t, "wlt_"+hex.EncodeToString(mac.Sum(nil))[:32], id)
	})

	t.Run("DistinctUsers", func(t *testing.T) {
		assert.NotEqual(t, d.DeriveWalletID("fan-1"), d.DeriveWalletID("fan-2"))
	})

	t.Run("DistinctSecrets", func(t *testing.T) {
		other, err := NewDeriver("another-secret-of-length")
		require.NoError(t, err)
		assert.NotEqual(t, d.DeriveWalletID("fan-1"), other.DeriveWalletID("fan-1"))
	})
}
