// Package azurekv builds the key-encryption keys that seal private key blobs
// from keys wrapped by Azure Key Vault.
//
// Wrapped keys are unwrapped with the Key Vault UnwrapKey operation at
// construction and held in a keymanager.StaticKeyProvider afterwards.
//
// Usage:
//
//	cred, err := azidentity.NewDefaultAzureCredential(nil)
//	client, err := azkeys.NewClient("https://my-vault.vault.azure.net/", cred, nil)
//	provider, err := azurekv.New(ctx, client,
//	    azurekv.WithWrappedKey(wrappedKEK, "kek-1", "keymanager-kek", ""),
//	)
package azurekv

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"

	keymanager "github.com/rbaliyan/keymanager"
)

// Client is the subset of the Key Vault keys API used by this package.
type Client interface {
	UnwrapKey(ctx context.Context, keyName string, keyVersion string, parameters azkeys.KeyOperationParameters, options *azkeys.UnwrapKeyOptions) (azkeys.UnwrapKeyResponse, error)
}

// Option configures New.
type Option func(*options)

type options struct {
	wrapped []wrappedKey
}

type wrappedKey struct {
	ciphertext []byte
	id         string
	keyName    string
	keyVersion string // empty selects the latest version
	algorithm  azkeys.EncryptionAlgorithm
}

// WithWrappedKey adds a key-encryption key wrapped with RSA-OAEP-256 under the
// Key Vault key keyName. The id is the key ID recorded in sealed blobs.
// The first key added seals new blobs.
func WithWrappedKey(ciphertext []byte, id, keyName, keyVersion string) Option {
	return WithWrappedKeyAlgorithm(ciphertext, id, keyName, keyVersion, azkeys.EncryptionAlgorithmRSAOAEP256)
}

// WithWrappedKeyAlgorithm is WithWrappedKey with an explicit unwrap algorithm.
func WithWrappedKeyAlgorithm(ciphertext []byte, id, keyName, keyVersion string, alg azkeys.EncryptionAlgorithm) Option {
	return func(o *options) {
		o.wrapped = append(o.wrapped, wrappedKey{
			ciphertext: ciphertext,
			id:         id,
			keyName:    keyName,
			keyVersion: keyVersion,
			algorithm:  alg,
		})
	}
}

// New unwraps every configured key through Key Vault.
// Unwrapped key bytes are cleared before New returns.
func New(ctx context.Context, client Client, opts ...Option) (*keymanager.StaticKeyProvider, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.wrapped) == 0 {
		return nil, fmt.Errorf("azurekv: at least one wrapped key is required")
	}

	keys := make([]keymanager.Key, 0, len(o.wrapped))
	defer func() {
		for _, k := range keys {
			clear(k.Bytes)
		}
	}()

	for _, wk := range o.wrapped {
		alg := wk.algorithm
		resp, err := client.UnwrapKey(ctx, wk.keyName, wk.keyVersion, azkeys.KeyOperationParameters{
			Algorithm: &alg,
			Value:     wk.ciphertext,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("azurekv: unwrap key %q: %w", wk.id, err)
		}
		keys = append(keys, keymanager.Key{ID: wk.id, Bytes: resp.Result})
	}

	provider, err := keymanager.NewStaticKeyProviderFromKeys(keys)
	if err != nil {
		return nil, fmt.Errorf("azurekv: %w", err)
	}
	return provider, nil
}
