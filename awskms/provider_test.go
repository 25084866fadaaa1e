package awskms

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"

	keymanager "github.com/rbaliyan/keymanager"
)

// mockClient unwraps by looking the ciphertext up in a table.
type mockClient struct {
	keys   map[string][]byte // ciphertext -> plaintext
	failOn string
	seenID []string
}

func (m *mockClient) Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	ct := string(params.CiphertextBlob)
	if params.KeyId != nil {
		m.seenID = append(m.seenID, *params.KeyId)
	}
	if ct == m.failOn {
		return nil, fmt.Errorf("kms: access denied")
	}
	plaintext, ok := m.keys[ct]
	if !ok {
		return nil, fmt.Errorf("kms: invalid ciphertext")
	}
	return &kms.DecryptOutput{Plaintext: plaintext}, nil
}

func makeKey(offset int) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + offset)
	}
	return key
}

func TestNew(t *testing.T) {
	client := &mockClient{keys: map[string][]byte{"wrapped-1": makeKey(0)}}

	provider, err := New(context.Background(), client, WithEncryptedKey([]byte("wrapped-1"), "kek-1"))
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
	if !bytes.Equal(key.Bytes, makeKey(0)) {
		t.Error("CurrentKey().Bytes do not match the unwrapped key")
	}
}

func TestNewWithRotation(t *testing.T) {
	client := &mockClient{keys: map[string][]byte{
		"wrapped-new": makeKey(100),
		"wrapped-old": makeKey(0),
	}}

	provider, err := New(context.Background(), client,
		WithEncryptedKey([]byte("wrapped-new"), "kek-v2"),
		WithEncryptedKey([]byte("wrapped-old"), "kek-v1"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	current, err := provider.CurrentKey()
	if err != nil {
		t.Fatalf("CurrentKey: %v", err)
	}
	if current.ID != "kek-v2" {
		t.Errorf("CurrentKey().ID: got %q, want %q", current.ID, "kek-v2")
	}
	if _, err := provider.KeyByID("kek-v1"); err != nil {
		t.Errorf("KeyByID(kek-v1): %v", err)
	}
}

func TestNewNoKeys(t *testing.T) {
	if _, err := New(context.Background(), &mockClient{}); err == nil {
		t.Error("expected error for no keys")
	}
}

func TestNewDecryptFailure(t *testing.T) {
	good := makeKey(0)
	client := &mockClient{
		keys:   map[string][]byte{"wrapped-1": good},
		failOn: "wrapped-2",
	}

	_, err := New(context.Background(), client,
		WithEncryptedKey([]byte("wrapped-1"), "kek-1"),
		WithEncryptedKey([]byte("wrapped-2"), "kek-2"),
	)
	if err == nil {
		t.Fatal("expected error for decrypt failure")
	}
	if !bytes.Equal(good, make([]byte, 32)) {
		t.Error("keys unwrapped before the failure were not cleared")
	}
}

func TestNewDuplicateID(t *testing.T) {
	client := &mockClient{keys: map[string][]byte{"a": makeKey(0), "b": makeKey(1)}}

	_, err := New(context.Background(), client,
		WithEncryptedKey([]byte("a"), "kek"),
		WithEncryptedKey([]byte("b"), "kek"),
	)
	if !keymanager.IsInvalidKeyID(err) {
		t.Errorf("expected ErrInvalidKeyID, got %v", err)
	}
}

func TestNewWithKMSKeyID(t *testing.T) {
	client := &mockClient{keys: map[string][]byte{"wrapped-1": makeKey(0)}}
	arn := "arn:aws:kms:us-east-1:123:key/abc"

	if _, err := New(context.Background(), client,
		WithEncryptedKeyForKMSKey([]byte("wrapped-1"), "kek-1", arn),
	); err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(client.seenID) != 1 || client.seenID[0] != arn {
		t.Errorf("KeyId sent to KMS: got %v, want [%s]", client.seenID, arn)
	}
}

func TestNewDecryptedKeyZeroed(t *testing.T) {
	plaintext := makeKey(1)
	client := &mockClient{keys: map[string][]byte{"wrapped": plaintext}}

	if _, err := New(context.Background(), client, WithEncryptedKey([]byte("wrapped"), "kek-1")); err != nil {
		t.Fatalf("New: %v", err)
	}

	// The mock hands back its own slice, so clearing is observable here.
	if !bytes.Equal(plaintext, make([]byte, 32)) {
		t.Error("unwrapped key material was not zeroed after construction")
	}
}

func TestProviderSealsPrivateKeys(t *testing.T) {
	client := &mockClient{keys: map[string][]byte{"wrapped": makeKey(0)}}
	provider, err := New(context.Background(), client, WithEncryptedKey([]byte("wrapped"), "kek-1"))
	if err != nil {
		t.Fatal(err)
	}

	sealer, err := keymanager.NewBlobSealer(provider)
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := sealer.Seal([]byte("private"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != "private" {
		t.Errorf("got %q, want %q", got, "private")
	}
}
