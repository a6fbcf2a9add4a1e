package hasher_test

import (
	"testing"

	"github.com/routeforge/routeforge/adapters/hasher"
	"golang.org/x/crypto/bcrypt"
)

func TestBcrypt_NewBcrypt_InvalidCost(t *testing.T) {
	if h := hasher.NewBcrypt(1); h == nil {
		t.Fatal("expected hasher with default cost")
	}
	if h := hasher.NewBcrypt(100); h == nil {
		t.Fatal("expected hasher with default cost")
	}
}

func TestBcrypt_HashAndCompare(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)

	password := "mySecretKey"
	hash, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if len(hash) == 0 || hash[0] != '$' {
		t.Errorf("hash = %q, want bcrypt format", hash)
	}

	if !h.Compare(hash, password) {
		t.Error("Compare should match the original plaintext")
	}
	if h.Compare(hash, "wrongKey") {
		t.Error("Compare should reject a different plaintext")
	}
}

func TestBcrypt_SaltedHashesDiffer(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)

	hash1, _ := h.Hash("key")
	hash2, _ := h.Hash("key")

	if string(hash1) == string(hash2) {
		t.Error("same plaintext should produce different hashes due to salt")
	}
}

func TestBcrypt_Compare_InvalidHash(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)

	if h.Compare([]byte("not-a-hash"), "key") {
		t.Error("Compare should return false for invalid hash")
	}
	if h.Compare(nil, "key") {
		t.Error("Compare should return false for empty hash")
	}
}

func TestFake_RoundTrip(t *testing.T) {
	h := hasher.Fake{}

	hash, err := h.Hash("plaintext")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if string(hash) != "plaintext" {
		t.Errorf("Fake hash = %q, want plaintext", hash)
	}
	if !h.Compare(hash, "plaintext") {
		t.Error("Fake Compare should match")
	}
	if h.Compare(hash, "other") {
		t.Error("Fake Compare should reject different values")
	}
}
