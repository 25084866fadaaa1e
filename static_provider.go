package keymanager

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// StaticKeyProvider is a KeyProvider backed by keys held in memguard enclaves,
// so key material is encrypted while it sits in process memory.
// It is safe for concurrent use.
type StaticKeyProvider struct {
	mu        sync.RWMutex
	currentID string
	keys      map[string]*memguard.Enclave
	destroyed bool
	err       error // deferred validation error from options
}

// StaticOption configures a StaticKeyProvider.
type StaticOption func(*StaticKeyProvider)

// WithOldKey adds a previous key so blobs sealed before a rotation can still be opened.
// The keyBytes must be 32 bytes for AES-256 and id must not be empty.
func WithOldKey(keyBytes []byte, id string) StaticOption {
	return func(p *StaticKeyProvider) {
		if p.err != nil {
			return
		}
		if err := validateKey(keyBytes, id); err != nil {
			p.err = fmt.Errorf("old key %q: %w", id, err)
			return
		}
		if _, dup := p.keys[id]; dup {
			p.err = fmt.Errorf("%w: duplicate key ID %q", ErrInvalidKeyID, id)
			return
		}
		p.keys[id] = enclaveFor(keyBytes)
	}
}

// NewStaticKeyProvider creates a KeyProvider with the given current key.
// The keyBytes must be 32 bytes for AES-256. The id identifies this key in sealed blobs.
// Key bytes are copied into an enclave; the caller may zero the original after construction.
func NewStaticKeyProvider(keyBytes []byte, id string, opts ...StaticOption) (*StaticKeyProvider, error) {
	if err := validateKey(keyBytes, id); err != nil {
		return nil, err
	}

	p := &StaticKeyProvider{
		currentID: id,
		keys:      map[string]*memguard.Enclave{id: enclaveFor(keyBytes)},
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.err != nil {
		return nil, p.err
	}

	return p, nil
}

// NewStaticKeyProviderFromKeys builds a provider from an ordered key list:
// the first key is current, the rest are kept for opening older blobs.
// Key providers backed by a KMS unwrap their keys and hand them over here.
func NewStaticKeyProviderFromKeys(keys []Key) (*StaticKeyProvider, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no keys", ErrInvalidKeyID)
	}
	opts := make([]StaticOption, 0, len(keys)-1)
	for _, k := range keys[1:] {
		opts = append(opts, WithOldKey(k.Bytes, k.ID))
	}
	return NewStaticKeyProvider(keys[0].Bytes, keys[0].ID, opts...)
}

// CurrentKey returns the current key for new seals.
// The returned bytes are a private copy; callers should clear them when done.
func (p *StaticKeyProvider) CurrentKey() (Key, error) {
	p.mu.RLock()
	id := p.currentID
	p.mu.RUnlock()
	return p.KeyByID(id)
}

// KeyByID returns the key with the given ID.
func (p *StaticKeyProvider) KeyByID(id string) (Key, error) {
	p.mu.RLock()
	enclave, ok := p.keys[id]
	destroyed := p.destroyed
	p.mu.RUnlock()
	if destroyed {
		return Key{}, ErrProviderDestroyed
	}
	if !ok {
		return Key{}, fmt.Errorf("%w: %s", ErrUnknownKEK, id)
	}

	buf, err := enclave.Open()
	if err != nil {
		return Key{}, fmt.Errorf("keymanager: open key %q: %w", id, err)
	}
	defer buf.Destroy()

	b := make([]byte, buf.Size())
	copy(b, buf.Bytes())
	return Key{ID: id, Bytes: b}, nil
}

// Destroy drops every key. Later lookups return ErrProviderDestroyed.
// It is safe to call more than once.
func (p *StaticKeyProvider) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.keys)
	p.destroyed = true
}

func validateKey(keyBytes []byte, id string) error {
	if len(keyBytes) != aesKeySize {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(keyBytes))
	}
	if id == "" {
		return fmt.Errorf("%w: key ID must not be empty", ErrInvalidKeyID)
	}
	if len(id) > maxKeyIDLen {
		return fmt.Errorf("%w: key ID longer than %d bytes", ErrInvalidKeyID, maxKeyIDLen)
	}
	return nil
}

// enclaveFor seals a copy of b; memguard wipes the buffer it is handed.
func enclaveFor(b []byte) *memguard.Enclave {
	buf := make([]byte, len(b))
	copy(buf, b)
	return memguard.NewEnclave(buf)
}

// Compile-time interface check.
var _ KeyProvider = (*StaticKeyProvider)(nil)
