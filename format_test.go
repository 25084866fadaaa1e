package keymanager

import (
	"bytes"
	"strings"
	"testing"
)

func testHeader(keyID string) *header {
	return &header{
		version:      formatVersion,
		algorithm:    algAES256GCM,
		keyID:        keyID,
		dekNonce:     bytes.Repeat([]byte{0xAA}, gcmNonceSize),
		encryptedDEK: bytes.Repeat([]byte{0xBB}, encryptedDEKSize),
		dataNonce:    bytes.Repeat([]byte{0xCC}, gcmNonceSize),
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := testHeader("kek-1")

	var buf bytes.Buffer
	if err := writeHeader(&buf, h); err != nil {
		t.Fatalf("writeHeader: %v", err)
	}
	if buf.Len() != headerSize("kek-1") {
		t.Errorf("header length: got %d, want %d", buf.Len(), headerSize("kek-1"))
	}

	ciphertext := bytes.Repeat([]byte("c"), gcmTagSize+4)
	data := append(buf.Bytes(), ciphertext...)

	parsed, remaining, err := readHeader(data)
	if err != nil {
		t.Fatalf("readHeader: %v", err)
	}
	if parsed.keyID != h.keyID {
		t.Errorf("keyID: got %q, want %q", parsed.keyID, h.keyID)
	}
	if !bytes.Equal(parsed.dekNonce, h.dekNonce) {
		t.Error("dekNonce mismatch")
	}
	if !bytes.Equal(parsed.encryptedDEK, h.encryptedDEK) {
		t.Error("encryptedDEK mismatch")
	}
	if !bytes.Equal(parsed.dataNonce, h.dataNonce) {
		t.Error("dataNonce mismatch")
	}
	if !bytes.Equal(remaining, ciphertext) {
		t.Errorf("remaining: got %q, want %q", remaining, ciphertext)
	}

	// Parsed header fields are copies.
	clear(data)
	if parsed.dekNonce[0] != 0xAA {
		t.Error("dekNonce aliases the input slice")
	}
}

func TestReadHeaderRejects(t *testing.T) {
	valid := func() []byte {
		var buf bytes.Buffer
		if err := writeHeader(&buf, testHeader("k")); err != nil {
			t.Fatal(err)
		}
		return append(buf.Bytes(), make([]byte, gcmTagSize)...)
	}

	cases := map[string][]byte{
		"short":          []byte("SK"),
		"bad magic":      []byte("EC\x01\x01\x00"),
		"bad version":    []byte("SK\x99\x01\x00"),
		"bad algorithm":  []byte("SK\x01\x99\x00"),
		"empty key id":   []byte("SK\x01\x01\x00"),
		"truncated body": []byte("SK\x01\x01\x04key1"),
		"partial tag":    valid()[:headerSize("k")+gcmTagSize/2],
	}
	for name, data := range cases {
		if _, _, err := readHeader(data); !IsInvalidFormat(err) {
			t.Errorf("%s: expected ErrInvalidFormat, got %v", name, err)
		}
	}

	if _, _, err := readHeader(valid()); err != nil {
		t.Errorf("valid header rejected: %v", err)
	}
}

func TestWriteHeaderKeyIDLimits(t *testing.T) {
	var buf bytes.Buffer
	if err := writeHeader(&buf, testHeader(strings.Repeat("k", maxKeyIDLen))); err != nil {
		t.Errorf("max key ID: %v", err)
	}

	buf.Reset()
	if err := writeHeader(&buf, testHeader(strings.Repeat("k", maxKeyIDLen+1))); !IsInvalidFormat(err) {
		t.Errorf("long key ID: expected ErrInvalidFormat, got %v", err)
	}
}

func TestHeaderSize(t *testing.T) {
	keyID := "kek-1"
	expected := minHeaderSize + len(keyID) + gcmNonceSize + encryptedDEKSize + gcmNonceSize
	if got := headerSize(keyID); got != expected {
		t.Errorf("headerSize(%q): got %d, want %d", keyID, got, expected)
	}
}
