package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealer_RoundTrip(t *testing.T) {
	secret := make([]byte, secretSize)
	for i := range secret {
		secret[i] = byte(i)
	}

	key, err := DeriveKey(secret)
	require.NoError(t, err)

	sealer, err := NewSealer(key)
	require.NoError(t, err)

	sealed, err := sealer.Seal("shpat_secret_token")
	require.NoError(t, err)
	assert.NotEqual(t, "shpat_secret_token", sealed)

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "shpat_secret_token", opened)
}

func TestSealer_Seal_EmptyPlaintext(t *testing.T) {
	key := make([]byte, 32)
	sealer, err := NewSealer(key)
	require.NoError(t, err)

	_, err = sealer.Seal("")
	assert.Error(t, err)
}

func TestSealer_Open_WrongKey(t *testing.T) {
	keyA := make([]byte, 32)
	keyB := make([]byte, 32)
	keyB[0] = 1

	sealerA, err := NewSealer(keyA)
	require.NoError(t, err)
	sealerB, err := NewSealer(keyB)
	require.NoError(t, err)

	sealed, err := sealerA.Seal("token")
	require.NoError(t, err)

	_, err = sealerB.Open(sealed)
	assert.Error(t, err)
}

func TestSealer_Open_Garbage(t *testing.T) {
	key := make([]byte, 32)
	sealer, err := NewSealer(key)
	require.NoError(t, err)

	_, err = sealer.Open("not base64!!")
	assert.Error(t, err)

	_, err = sealer.Open("c2hvcnQ=") // valid base64, shorter than a nonce
	assert.Error(t, err)
}

func TestLoadOrCreateKeyfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shopbridge.key")

	secret, err := LoadOrCreateKeyfile(path)
	require.NoError(t, err)
	assert.Len(t, secret, secretSize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Second load returns the same secret.
	again, err := LoadOrCreateKeyfile(path)
	require.NoError(t, err)
	assert.Equal(t, secret, again)
}

func TestNewSealerFromKeyfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shopbridge.key")

	sealer, err := NewSealerFromKeyfile(path)
	require.NoError(t, err)

	sealed, err := sealer.Seal("token")
	require.NoError(t, err)

	// A sealer rebuilt from the same keyfile can open the value.
	rebuilt, err := NewSealerFromKeyfile(path)
	require.NoError(t, err)

	opened, err := rebuilt.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "token", opened)
}
