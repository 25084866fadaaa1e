// Package awskms builds the key-encryption keys that seal private key blobs
// from data keys wrapped by AWS KMS.
//
// Wrapped keys are unwrapped with KMS Decrypt once, at construction, and then
// held in a keymanager.StaticKeyProvider. The KMS client is not kept.
//
// Usage:
//
//	cfg, err := awsconfig.LoadDefaultConfig(ctx)
//	provider, err := awskms.New(ctx, kms.NewFromConfig(cfg),
//	    awskms.WithEncryptedKey(wrappedKEK, "kek-2"),
//	    awskms.WithEncryptedKey(previousKEK, "kek-1"),
//	)
//	sealer, err := keymanager.NewBlobSealer(provider)
package awskms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/kms"

	keymanager "github.com/rbaliyan/keymanager"
)

// Client is the subset of the AWS KMS API used by this package.
type Client interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Option configures New.
type Option func(*options)

type options struct {
	wrapped []wrappedKey
}

type wrappedKey struct {
	ciphertext []byte
	id         string
	kmsKeyID   string // ARN or alias; empty lets KMS read it from the ciphertext
}

// WithEncryptedKey adds a key-encryption key wrapped by KMS Encrypt or GenerateDataKey.
// The id is the key ID recorded in sealed blobs. The first key added seals new blobs.
func WithEncryptedKey(ciphertext []byte, id string) Option {
	return func(o *options) {
		o.wrapped = append(o.wrapped, wrappedKey{ciphertext: ciphertext, id: id})
	}
}

// WithEncryptedKeyForKMSKey is WithEncryptedKey for a ciphertext wrapped under a
// specific KMS key, named by ARN or alias.
func WithEncryptedKeyForKMSKey(ciphertext []byte, id, kmsKeyID string) Option {
	return func(o *options) {
		o.wrapped = append(o.wrapped, wrappedKey{ciphertext: ciphertext, id: id, kmsKeyID: kmsKeyID})
	}
}

// New unwraps every configured key and returns a provider holding them.
// Unwrapped key bytes are cleared before New returns, on success or failure.
func New(ctx context.Context, client Client, opts ...Option) (*keymanager.StaticKeyProvider, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.wrapped) == 0 {
		return nil, fmt.Errorf("awskms: at least one encrypted key is required")
	}

	keys := make([]keymanager.Key, 0, len(o.wrapped))
	defer func() {
		for _, k := range keys {
			clear(k.Bytes)
		}
	}()

	for _, wk := range o.wrapped {
		input := &kms.DecryptInput{CiphertextBlob: wk.ciphertext}
		if wk.kmsKeyID != "" {
			input.KeyId = &wk.kmsKeyID
		}
		out, err := client.Decrypt(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("awskms: decrypt key %q: %w", wk.id, err)
		}
		keys = append(keys, keymanager.Key{ID: wk.id, Bytes: out.Plaintext})
	}

	provider, err := keymanager.NewStaticKeyProviderFromKeys(keys)
	if err != nil {
		return nil, fmt.Errorf("awskms: %w", err)
	}
	return provider, nil
}
