//go:build gofuzz

package keymanager

import (
	"bytes"

	fuzz "github.com/AdamKorcz/go-118-fuzz-build/testing"
)

var fuzzKey = bytes.Repeat([]byte{0x42}, aesKeySize)

// FuzzOpenBlob feeds arbitrary sealed blobs to the opener. It must fail
// cleanly on anything it did not seal itself.
func FuzzOpenBlob(f *fuzz.F) {
	f.Fuzz(func(t *fuzz.T, data []byte) {
		p, err := NewStaticKeyProvider(fuzzKey, "fuzz")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := openBlob(data, p); err == nil {
			t.Fatalf("opened a blob that was never sealed: %x", data)
		}
	})
}

// FuzzParseShareSource checks that every accepted source stays inside the
// owner's files directory.
func FuzzParseShareSource(f *fuzz.F) {
	f.Fuzz(func(t *fuzz.T, source string) {
		layout := DefaultLayout()
		loc, err := parseShareSource(source, layout)
		if err != nil {
			return
		}
		if err := loc.Owner.Validate(); err != nil {
			t.Fatalf("accepted invalid owner from %q: %v", source, err)
		}
		if layout.FilePath(loc.Owner, loc.Path) != source {
			t.Fatalf("source %q does not round trip, got %v", source, loc)
		}
	})
}
