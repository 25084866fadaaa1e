package keymanager

import (
	"fmt"
	"io"
)

// Sealed blob layout:
//
//	magic(2) "SK" | version(1) | alg(1) | keyIDLen(1) | keyID | dekNonce(12) | encryptedDEK(48) | dataNonce(12) | ciphertext
const (
	sealMagic = "SK"

	formatVersion = 0x01

	algAES256GCM = 0x01

	aesKeySize = 32

	gcmNonceSize = 12

	gcmTagSize = 16

	// encryptedDEKSize is a 32-byte DEK plus its GCM tag.
	encryptedDEKSize = aesKeySize + gcmTagSize

	// minHeaderSize covers magic, version, alg and the key ID length byte.
	minHeaderSize = 5

	maxKeyIDLen = 255
)

type header struct {
	version      byte
	algorithm    byte
	keyID        string
	dekNonce     []byte
	encryptedDEK []byte
	dataNonce    []byte
}

func headerSize(keyID string) int {
	return minHeaderSize + len(keyID) + gcmNonceSize + encryptedDEKSize + gcmNonceSize
}

func writeHeader(w io.Writer, h *header) error {
	if len(h.keyID) > maxKeyIDLen {
		return fmt.Errorf("%w: key ID too long", ErrInvalidFormat)
	}
	if len(h.dekNonce) != gcmNonceSize || len(h.dataNonce) != gcmNonceSize {
		return fmt.Errorf("%w: bad nonce size", ErrInvalidFormat)
	}
	if len(h.encryptedDEK) != encryptedDEKSize {
		return fmt.Errorf("%w: bad wrapped DEK size", ErrInvalidFormat)
	}

	for _, part := range [][]byte{
		[]byte(sealMagic),
		{h.version, h.algorithm, byte(len(h.keyID))},
		[]byte(h.keyID),
		h.dekNonce,
		h.encryptedDEK,
		h.dataNonce,
	} {
		if _, err := w.Write(part); err != nil {
			return err
		}
	}
	return nil
}

// readHeader parses the header and returns it with the remaining ciphertext.
// Header byte slices are copies; mutating data afterwards does not affect them.
func readHeader(data []byte) (*header, []byte, error) {
	if len(data) < minHeaderSize {
		return nil, nil, fmt.Errorf("%w: data too short", ErrInvalidFormat)
	}
	if string(data[0:2]) != sealMagic {
		return nil, nil, fmt.Errorf("%w: invalid magic bytes", ErrInvalidFormat)
	}

	h := &header{
		version:   data[2],
		algorithm: data[3],
	}
	if h.version != formatVersion {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, h.version)
	}
	if h.algorithm != algAES256GCM {
		return nil, nil, fmt.Errorf("%w: unsupported algorithm %d", ErrInvalidFormat, h.algorithm)
	}

	keyIDLen := int(data[4])
	if keyIDLen == 0 {
		return nil, nil, fmt.Errorf("%w: empty key ID", ErrInvalidFormat)
	}
	offset := minHeaderSize
	if len(data) < offset+keyIDLen+gcmNonceSize+encryptedDEKSize+gcmNonceSize {
		return nil, nil, fmt.Errorf("%w: data too short for header", ErrInvalidFormat)
	}

	next := func(n int) []byte {
		b := append([]byte(nil), data[offset:offset+n]...)
		offset += n
		return b
	}
	h.keyID = string(next(keyIDLen))
	h.dekNonce = next(gcmNonceSize)
	h.encryptedDEK = next(encryptedDEKSize)
	h.dataNonce = next(gcmNonceSize)

	rest := data[offset:]
	if len(rest) < gcmTagSize {
		return nil, nil, fmt.Errorf("%w: ciphertext shorter than GCM tag", ErrInvalidFormat)
	}
	return h, rest, nil
}
