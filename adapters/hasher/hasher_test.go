package hasher

import "testing"

func TestBcrypt_HashAndCompare(t *testing.T) {
	h := NewBcrypt(4) // minimum cost keeps the test fast

	digest, err := h.Hash("s3cret")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if string(digest) == "s3cret" {
		t.Error("digest must not equal the plaintext")
	}
	if !h.Compare(digest, "s3cret") {
		t.Error("Compare should match the original plaintext")
	}
	if h.Compare(digest, "wrong") {
		t.Error("Compare should reject a different plaintext")
	}
}

func TestGenerateRaw(t *testing.T) {
	a, err := GenerateRaw()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateRaw()
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64 hex characters", len(a))
	}
	if a == b {
		t.Error("consecutive values must differ")
	}
}
