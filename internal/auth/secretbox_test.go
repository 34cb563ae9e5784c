package auth

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestSealRoundTrip(t *testing.T) {
	s, err := NewSealer(testKey)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	sealed, err := s.Seal("portal-password-123")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("portal-password-123")) {
		t.Fatalf("sealed blob contains plaintext")
	}

	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "portal-password-123" {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestSealUniqueNonce(t *testing.T) {
	s, _ := NewSealer(testKey)
	a, _ := s.Seal("same input")
	b, _ := s.Seal("same input")
	if bytes.Equal(a, b) {
		t.Fatalf("two seals of the same input produced identical blobs")
	}
}

func TestOpenTampered(t *testing.T) {
	s, _ := NewSealer(testKey)
	sealed, _ := s.Seal("secret")
	sealed[len(sealed)-1] ^= 0xff
	if _, err := s.Open(sealed); err == nil {
		t.Fatalf("expected error for tampered blob")
	}
}

func TestNewSealerBadKey(t *testing.T) {
	if _, err := NewSealer("not-hex"); err == nil {
		t.Fatalf("expected error for non-hex key")
	}
	short := hex.EncodeToString([]byte(strings.Repeat("a", 16)))
	if _, err := NewSealer(short); err == nil {
		t.Fatalf("expected error for short key")
	}
}
