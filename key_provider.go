package keymanager

// Key is a named key-encryption key used to seal key blobs at rest.
type Key struct {
	// ID identifies the key inside sealed blobs (e.g., "kek-2024-01").
	ID string

	// Bytes is the raw key material. Must be 32 bytes for AES-256.
	Bytes []byte
}

// KeyProvider supplies key-encryption keys to a Sealer.
// Returned key bytes belong to the caller, which clears them after use.
// Implementations must be safe for concurrent use.
type KeyProvider interface {
	// CurrentKey returns the key used for new seals.
	CurrentKey() (Key, error)

	// KeyByID returns the key with the given ID, used to open sealed blobs.
	// Returns ErrUnknownKEK if the key ID is not known.
	KeyByID(id string) (Key, error)
}
