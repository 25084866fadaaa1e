package keymanager

import "errors"

var (
	// ErrKeyNotFound is returned when no key blob exists at the expected path.
	// It usually means the file was never encrypted.
	ErrKeyNotFound = errors.New("keymanager: key not found")

	// ErrMalformedShareRecord is returned when a matched share record's source
	// path cannot be split into an owner and a path relative to the owner's files.
	ErrMalformedShareRecord = errors.New("keymanager: malformed share record")

	// ErrStorageWriteFailed is returned when the blob store rejects a write or a
	// directory creation.
	ErrStorageWriteFailed = errors.New("keymanager: storage write failed")

	// ErrInvalidIdentity is returned when an identity is empty or contains a path separator.
	ErrInvalidIdentity = errors.New("keymanager: invalid identity")

	// ErrInvalidPath is returned when a file path is empty or climbs out of its namespace.
	ErrInvalidPath = errors.New("keymanager: invalid path")

	// ErrInvalidKeySize is returned when a key-encryption key is not 32 bytes (AES-256).
	ErrInvalidKeySize = errors.New("keymanager: invalid key size, must be 32 bytes")

	// ErrInvalidFormat is returned when a sealed blob has an invalid format.
	ErrInvalidFormat = errors.New("keymanager: invalid sealed blob format")

	// ErrDecryptionFailed is returned when opening a sealed blob fails (wrong key, tampered data).
	ErrDecryptionFailed = errors.New("keymanager: decryption failed")

	// ErrInvalidKeyID is returned when a key-encryption key ID is empty or invalid.
	ErrInvalidKeyID = errors.New("keymanager: invalid key ID")

	// ErrUnknownKEK is returned when a sealed blob names a key-encryption key the
	// provider does not hold. The blob exists; it cannot be opened with this configuration.
	ErrUnknownKEK = errors.New("keymanager: unknown key-encryption key")

	// ErrProviderDestroyed is returned by a StaticKeyProvider after Destroy.
	ErrProviderDestroyed = errors.New("keymanager: key provider destroyed")
)

// IsKeyNotFound returns true if the error is or wraps ErrKeyNotFound.
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsMalformedShareRecord returns true if the error is or wraps ErrMalformedShareRecord.
func IsMalformedShareRecord(err error) bool {
	return errors.Is(err, ErrMalformedShareRecord)
}

// IsStorageWriteFailed returns true if the error is or wraps ErrStorageWriteFailed.
func IsStorageWriteFailed(err error) bool {
	return errors.Is(err, ErrStorageWriteFailed)
}

// IsInvalidIdentity returns true if the error is or wraps ErrInvalidIdentity.
func IsInvalidIdentity(err error) bool {
	return errors.Is(err, ErrInvalidIdentity)
}

// IsInvalidPath returns true if the error is or wraps ErrInvalidPath.
func IsInvalidPath(err error) bool {
	return errors.Is(err, ErrInvalidPath)
}

// IsInvalidKeySize returns true if the error is or wraps ErrInvalidKeySize.
func IsInvalidKeySize(err error) bool {
	return errors.Is(err, ErrInvalidKeySize)
}

// IsInvalidFormat returns true if the error is or wraps ErrInvalidFormat.
func IsInvalidFormat(err error) bool {
	return errors.Is(err, ErrInvalidFormat)
}

// IsDecryptionFailed returns true if the error is or wraps ErrDecryptionFailed.
func IsDecryptionFailed(err error) bool {
	return errors.Is(err, ErrDecryptionFailed)
}

// IsInvalidKeyID returns true if the error is or wraps ErrInvalidKeyID.
func IsInvalidKeyID(err error) bool {
	return errors.Is(err, ErrInvalidKeyID)
}

// IsUnknownKEK returns true if the error is or wraps ErrUnknownKEK.
func IsUnknownKEK(err error) bool {
	return errors.Is(err, ErrUnknownKEK)
}

// IsProviderDestroyed returns true if the error is or wraps ErrProviderDestroyed.
func IsProviderDestroyed(err error) bool {
	return errors.Is(err, ErrProviderDestroyed)
}
