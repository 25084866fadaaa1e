package keymanager

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// sealBlob encrypts plaintext under a fresh DEK and wraps the DEK with kek.
// The KEK ID is bound to both ciphertexts as additional data.
func sealBlob(plaintext []byte, kek Key) ([]byte, error) {
	if len(kek.Bytes) != aesKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(kek.Bytes))
	}
	if kek.ID == "" || len(kek.ID) > maxKeyIDLen {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKeyID, kek.ID)
	}
	aad := []byte(kek.ID)

	dek, err := randomBytes(aesKeySize)
	if err != nil {
		return nil, fmt.Errorf("keymanager: failed to generate DEK: %w", err)
	}
	defer clear(dek)

	kekGCM, err := newGCM(kek.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keymanager: KEK cipher: %w", err)
	}
	dekNonce, err := randomBytes(gcmNonceSize)
	if err != nil {
		return nil, fmt.Errorf("keymanager: failed to generate DEK nonce: %w", err)
	}

	dekGCM, err := newGCM(dek)
	if err != nil {
		return nil, fmt.Errorf("keymanager: DEK cipher: %w", err)
	}
	dataNonce, err := randomBytes(gcmNonceSize)
	if err != nil {
		return nil, fmt.Errorf("keymanager: failed to generate data nonce: %w", err)
	}

	h := &header{
		version:      formatVersion,
		algorithm:    algAES256GCM,
		keyID:        kek.ID,
		dekNonce:     dekNonce,
		encryptedDEK: kekGCM.Seal(nil, dekNonce, dek, aad),
		dataNonce:    dataNonce,
	}
	ciphertext := dekGCM.Seal(nil, dataNonce, plaintext, aad)

	var buf bytes.Buffer
	buf.Grow(headerSize(kek.ID) + len(ciphertext))
	if err := writeHeader(&buf, h); err != nil {
		return nil, fmt.Errorf("keymanager: failed to write header: %w", err)
	}
	buf.Write(ciphertext)
	return buf.Bytes(), nil
}

// openBlob reverses sealBlob, looking the KEK up by the ID recorded in the header.
func openBlob(data []byte, provider KeyProvider) ([]byte, error) {
	h, ciphertext, err := readHeader(data)
	if err != nil {
		return nil, err
	}

	kek, err := provider.KeyByID(h.keyID)
	if err != nil {
		// ErrKeyNotFound means a missing key blob; a missing KEK is a configuration fault.
		if IsKeyNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKEK, h.keyID)
		}
		return nil, err
	}
	defer clear(kek.Bytes)

	if len(kek.Bytes) != aesKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(kek.Bytes))
	}
	aad := []byte(h.keyID)

	kekGCM, err := newGCM(kek.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	dek, err := kekGCM.Open(nil, h.dekNonce, h.encryptedDEK, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unwrap DEK", ErrDecryptionFailed)
	}
	defer clear(dek)

	dekGCM, err := newGCM(dek)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	plaintext, err := dekGCM.Open(nil, h.dataNonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt data", ErrDecryptionFailed)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
