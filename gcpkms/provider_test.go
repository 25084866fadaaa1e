package gcpkms

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	kmspb "cloud.google.com/go/kms/apiv1/kmspb"

	keymanager "github.com/rbaliyan/keymanager"
)

const resource = "projects/p/locations/global/keyRings/r/cryptoKeys/k"

type mockClient struct {
	keys   map[string][]byte // "resource:ciphertext" -> plaintext
	failOn string
}

func (m *mockClient) Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error) {
	lookup := req.Name + ":" + string(req.Ciphertext)
	if lookup == m.failOn {
		return nil, fmt.Errorf("gcpkms: permission denied")
	}
	plaintext, ok := m.keys[lookup]
	if !ok {
		return nil, fmt.Errorf("gcpkms: decryption failed")
	}
	return &kmspb.DecryptResponse{Plaintext: plaintext}, nil
}

func makeKey(offset int) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + offset)
	}
	return key
}

func TestNew(t *testing.T) {
	client := &mockClient{keys: map[string][]byte{resource + ":ct1": makeKey(0)}}

	provider, err := New(context.Background(), client, WithEncryptedKey([]byte("ct1"), "kek-1", resource))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key, err := provider.CurrentKey()
	if err != nil {
		t.Fatalf("CurrentKey: %v", err)
	}
	if key.ID != "kek-1" {
		t.Errorf("CurrentKey().ID: got %q, want %q", key.ID, "kek-1")
	}
}

func TestNewWithRotation(t *testing.T) {
	client := &mockClient{keys: map[string][]byte{
		resource + ":new": makeKey(100),
		resource + ":old": makeKey(0),
	}}

	provider, err := New(context.Background(), client,
		WithEncryptedKey([]byte("new"), "kek-v2", resource),
		WithEncryptedKey([]byte("old"), "kek-v1", resource),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	current, err := provider.CurrentKey()
	if err != nil {
		t.Fatal(err)
	}
	if current.ID != "kek-v2" {
		t.Errorf("CurrentKey().ID: got %q, want %q", current.ID, "kek-v2")
	}
	old, err := provider.KeyByID("kek-v1")
	if err != nil {
		t.Fatalf("KeyByID: %v", err)
	}
	if !bytes.Equal(old.Bytes, makeKey(0)) {
		t.Error("old key bytes mismatch")
	}
}

func TestNewErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, &mockClient{}); err == nil {
		t.Error("expected error for no keys")
	}
	if _, err := New(ctx, &mockClient{}, WithEncryptedKey([]byte("ct"), "kek-1", "")); err == nil {
		t.Error("expected error for missing resource name")
	}

	client := &mockClient{failOn: resource + ":ct"}
	if _, err := New(ctx, client, WithEncryptedKey([]byte("ct"), "kek-1", resource)); err == nil {
		t.Error("expected error for decrypt failure")
	}

	short := &mockClient{keys: map[string][]byte{resource + ":ct": make([]byte, 16)}}
	if _, err := New(ctx, short, WithEncryptedKey([]byte("ct"), "kek-1", resource)); !keymanager.IsInvalidKeySize(err) {
		t.Errorf("expected ErrInvalidKeySize, got %v", err)
	}
}

func TestNewDecryptedKeyZeroed(t *testing.T) {
	plaintext := makeKey(1)
	client := &mockClient{keys: map[string][]byte{resource + ":ct": plaintext}}

	if _, err := New(context.Background(), client, WithEncryptedKey([]byte("ct"), "kek-1", resource)); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plaintext, make([]byte, 32)) {
		t.Error("unwrapped key material was not zeroed after construction")
	}
}
