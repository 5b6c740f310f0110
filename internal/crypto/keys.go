// Package crypto seals the remote access token before it is written to the
// configuration store, so that the on-disk config file never contains the
// credential in the clear. The sealing key is derived from a machine-local
// keyfile generated on first use.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for deriving the sealing key from the keyfile secret.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // KB
	argon2Threads = 4
	argon2KeyLen  = 32

	// secretSize is the size of the random keyfile secret in bytes.
	secretSize = 32
)

// keyContext separates sealing keys derived for different purposes from the
// same keyfile secret.
const keyContext = "shopbridge.credential.v1"

// LoadOrCreateKeyfile reads the keyfile secret at path, generating a fresh
// one with 0600 permissions when the file does not exist yet.
func LoadOrCreateKeyfile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		secret, decErr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
		if decErr != nil {
			return nil, fmt.Errorf("failed to decode keyfile %s: %w", path, decErr)
		}
		if len(secret) != secretSize {
			return nil, fmt.Errorf("keyfile %s has wrong secret size: %d", path, len(secret))
		}
		return secret, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read keyfile: %w", err)
	}

	secret := make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate keyfile secret: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(secret)
	if err := os.WriteFile(path, []byte(encoded+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write keyfile: %w", err)
	}

	return secret, nil
}

// DeriveKey derives the 32-byte sealing key from the keyfile secret using
// Argon2id with a fixed context string as salt. The secret itself is already
// high-entropy, so the fixed salt only provides domain separation.
func DeriveKey(secret []byte) ([]byte, error) {
	if len(secret) != secretSize {
		return nil, fmt.Errorf("secret must be %d bytes, got %d", secretSize, len(secret))
	}
	key := argon2.IDKey(secret, []byte(keyContext), argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return key, nil
}
