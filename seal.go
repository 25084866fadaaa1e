package keymanager

import (
	"fmt"

	"github.com/rbaliyan/config/codec"
)

// Sealer envelope-encrypts key blobs before they reach the blob store.
// On Encode, the inner codec serializes the value, then the result is sealed.
// On Decode, the data is opened, then the inner codec deserializes the plaintext.
//
// Sealer implements codec.Codec so it can be registered with the config codec
// registry. It is safe for concurrent use if the KeyProvider and inner codec are.
type Sealer struct {
	inner    codec.Codec
	provider KeyProvider
	name     string
}

// Compile-time interface check.
var _ codec.Codec = (*Sealer)(nil)

// NewSealer creates a Sealer wrapping inner. The codec name is "sealed:<inner>".
func NewSealer(inner codec.Codec, provider KeyProvider) (*Sealer, error) {
	if inner == nil {
		return nil, fmt.Errorf("keymanager: NewSealer inner codec is nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("keymanager: NewSealer provider is nil")
	}
	return &Sealer{
		inner:    inner,
		provider: provider,
		name:     "sealed:" + inner.Name(),
	}, nil
}

// NewBlobSealer is NewSealer with the JSON codec, which is what the Manager uses for raw key blobs.
func NewBlobSealer(provider KeyProvider) (*Sealer, error) {
	return NewSealer(codec.JSON(), provider)
}

// Name returns the codec name, e.g. "sealed:json".
func (s *Sealer) Name() string {
	return s.name
}

// Encode serializes v with the inner codec and seals the result under the current key.
func (s *Sealer) Encode(v any) ([]byte, error) {
	plaintext, err := s.inner.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("keymanager: inner encode failed: %w", err)
	}
	defer clear(plaintext)

	kek, err := s.provider.CurrentKey()
	if err != nil {
		return nil, fmt.Errorf("keymanager: failed to get current key: %w", err)
	}
	defer clear(kek.Bytes)

	return sealBlob(plaintext, kek)
}

// Decode opens data and deserializes the plaintext into v with the inner codec.
func (s *Sealer) Decode(data []byte, v any) error {
	plaintext, err := openBlob(data, s.provider)
	if err != nil {
		return fmt.Errorf("keymanager: open failed: %w", err)
	}
	defer clear(plaintext)

	if err := s.inner.Decode(plaintext, v); err != nil {
		return fmt.Errorf("keymanager: inner decode failed: %w", err)
	}
	return nil
}

// Seal seals a raw key blob.
func (s *Sealer) Seal(blob []byte) ([]byte, error) {
	return s.Encode(blob)
}

// Open returns the raw key blob sealed in data.
func (s *Sealer) Open(data []byte) ([]byte, error) {
	var blob []byte
	if err := s.Decode(data, &blob); err != nil {
		return nil, err
	}
	return blob, nil
}
