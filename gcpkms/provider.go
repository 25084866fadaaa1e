// Package gcpkms builds the key-encryption keys that seal private key blobs
// from keys wrapped by Google Cloud KMS.
//
// Wrapped keys are unwrapped with CryptoKeys.Decrypt at construction and held
// in a keymanager.StaticKeyProvider afterwards.
//
// Usage:
//
//	client, err := kms.NewKeyManagementClient(ctx)
//	provider, err := gcpkms.New(ctx, client,
//	    gcpkms.WithEncryptedKey(wrappedKEK, "kek-1", resourceName),
//	)
package gcpkms

import (
	"context"
	"fmt"

	kmspb "cloud.google.com/go/kms/apiv1/kmspb"

	keymanager "github.com/rbaliyan/keymanager"
)

// Client is the subset of the Cloud KMS API used by this package.
type Client interface {
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error)
}

// Option configures New.
type Option func(*options)

type options struct {
	wrapped []wrappedKey
}

type wrappedKey struct {
	ciphertext   []byte
	id           string
	resourceName string // projects/*/locations/*/keyRings/*/cryptoKeys/*
}

// WithEncryptedKey adds a key-encryption key wrapped under the CryptoKey resourceName.
// The id is the key ID recorded in sealed blobs. The first key added seals new blobs.
func WithEncryptedKey(ciphertext []byte, id, resourceName string) Option {
	return func(o *options) {
		o.wrapped = append(o.wrapped, wrappedKey{
			ciphertext:   ciphertext,
			id:           id,
			resourceName: resourceName,
		})
	}
}

// New unwraps every configured key through Cloud KMS.
// Unwrapped key bytes are cleared before New returns.
func New(ctx context.Context, client Client, opts ...Option) (*keymanager.StaticKeyProvider, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.wrapped) == 0 {
		return nil, fmt.Errorf("gcpkms: at least one encrypted key is required")
	}

	keys := make([]keymanager.Key, 0, len(o.wrapped))
	defer func() {
		for _, k := range keys {
			clear(k.Bytes)
		}
	}()

	for _, wk := range o.wrapped {
		if wk.resourceName == "" {
			return nil, fmt.Errorf("gcpkms: key %q has no CryptoKey resource name", wk.id)
		}
		resp, err := client.Decrypt(ctx, &kmspb.DecryptRequest{
			Name:       wk.resourceName,
			Ciphertext: wk.ciphertext,
		})
		if err != nil {
			return nil, fmt.Errorf("gcpkms: decrypt key %q: %w", wk.id, err)
		}
		keys = append(keys, keymanager.Key{ID: wk.id, Bytes: resp.Plaintext})
	}

	provider, err := keymanager.NewStaticKeyProviderFromKeys(keys)
	if err != nil {
		return nil, fmt.Errorf("gcpkms: %w", err)
	}
	return provider, nil
}
