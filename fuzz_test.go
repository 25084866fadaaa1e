package keymanager

import (
	"bytes"
	"strings"
	"testing"
)

func FuzzReadHeader(f *testing.F) {
	var buf bytes.Buffer
	if err := writeHeader(&buf, testHeader("kek-1")); err != nil {
		f.Fatal(err)
	}
	f.Add(append(buf.Bytes(), make([]byte, gcmTagSize)...))
	f.Add([]byte("SK\x01\x01\x04key1"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		h, rest, err := readHeader(data)
		if err != nil {
			if !IsInvalidFormat(err) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			return
		}
		if h.keyID == "" || len(rest) < gcmTagSize {
			t.Fatalf("accepted header with key ID %q and %d trailing bytes", h.keyID, len(rest))
		}
		if headerSize(h.keyID)+len(rest) != len(data) {
			t.Fatal("header and ciphertext do not cover the input")
		}
	})
}

func FuzzNormalizePath(f *testing.F) {
	for _, seed := range []string{"doc.txt", "/a/b", "../x", "a/../b", "///"} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, p string) {
		rel, err := normalizePath(p)
		if err != nil {
			return
		}
		if rel == "" || strings.HasPrefix(rel, "/") {
			t.Fatalf("normalizePath(%q) = %q", p, rel)
		}
		for _, seg := range strings.Split(rel, "/") {
			if seg == ".." {
				t.Fatalf("normalizePath(%q) kept a parent segment: %q", p, rel)
			}
		}
	})
}
