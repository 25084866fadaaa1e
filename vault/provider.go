// Package vault builds the key-encryption keys that seal private key blobs
// from keys encrypted by the HashiCorp Vault Transit secrets engine.
//
// Ciphertexts are decrypted through Transit at construction and held in a
// keymanager.StaticKeyProvider afterwards.
//
// Usage:
//
//	provider, err := vault.New(ctx, transitClient,
//	    vault.WithEncryptedKey("vault:v1:...", "kek-1", "keymanager"),
//	)
package vault

import (
	"context"
	"fmt"
	"strings"

	keymanager "github.com/rbaliyan/keymanager"
)

// Client abstracts the Transit decrypt call so any Vault client library can be wrapped.
type Client interface {
	// TransitDecrypt decrypts a "vault:v<N>:<base64>" ciphertext with the named Transit key.
	TransitDecrypt(ctx context.Context, keyName string, ciphertext string) ([]byte, error)
}

// Option configures New.
type Option func(*options)

type options struct {
	encrypted []encryptedKey
}

type encryptedKey struct {
	ciphertext     string
	id             string
	transitKeyName string
}

// WithEncryptedKey adds a key-encryption key encrypted by the Transit key transitKeyName.
// The id is the key ID recorded in sealed blobs. The first key added seals new blobs.
func WithEncryptedKey(ciphertext string, id, transitKeyName string) Option {
	return func(o *options) {
		o.encrypted = append(o.encrypted, encryptedKey{
			ciphertext:     ciphertext,
			id:             id,
			transitKeyName: transitKeyName,
		})
	}
}

// New decrypts every configured key through Transit.
// Decrypted key bytes are cleared before New returns.
func New(ctx context.Context, client Client, opts ...Option) (*keymanager.StaticKeyProvider, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.encrypted) == 0 {
		return nil, fmt.Errorf("vault: at least one encrypted key is required")
	}

	keys := make([]keymanager.Key, 0, len(o.encrypted))
	defer func() {
		for _, k := range keys {
			clear(k.Bytes)
		}
	}()

	for _, ek := range o.encrypted {
		if !strings.HasPrefix(ek.ciphertext, "vault:") {
			return nil, fmt.Errorf("vault: key %q is not a Transit ciphertext", ek.id)
		}
		plaintext, err := client.TransitDecrypt(ctx, ek.transitKeyName, ek.ciphertext)
		if err != nil {
			return nil, fmt.Errorf("vault: decrypt key %q: %w", ek.id, err)
		}
		keys = append(keys, keymanager.Key{ID: ek.id, Bytes: plaintext})
	}

	provider, err := keymanager.NewStaticKeyProviderFromKeys(keys)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return provider, nil
}
