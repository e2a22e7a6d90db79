package crypto

import (
	"errors"
	"testing"
)

func TestGenerateKeyLengthAndUniqueness(t *testing.T) {
	first, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	second, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct keys")
	}
	raw, err := first.bytes()
	if err != nil {
		t.Fatalf("key decode: %v", err)
	}
	if len(raw) != keyBytes {
		t.Fatalf("expected %d byte key, got %d", keyBytes, len(raw))
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	cipher, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	for _, plaintext := range []string{"", "hello world", "emoji 🚀 and ünïcode", "https://example.com?q=1&x=2"} {
		sealed, err := cipher.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		opened, err := cipher.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", plaintext, err)
		}
		if opened != plaintext {
			t.Fatalf("round trip mismatch: %q != %q", opened, plaintext)
		}
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	key, _ := GenerateKey()
	cipher, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	first, err := cipher.Encrypt("same message")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	second, err := cipher.Encrypt("same message")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct payloads for repeated plaintext")
	}
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	key, _ := GenerateKey()
	cipher, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	cases := []string{"not base64 %%%", "c2hvcnQ=", ""}
	for _, input := range cases {
		if _, err := cipher.Decrypt(input); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("Decrypt(%q): expected ErrDecryptionFailed, got %v", input, err)
		}
	}
}

func TestDecryptRejectsTamperedPayload(t *testing.T) {
	key, _ := GenerateKey()
	cipher, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	sealed, err := cipher.Encrypt("hello")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	tampered := []byte(sealed)
	tampered[len(tampered)-2] ^= 0x01
	if _, err := cipher.Decrypt(string(tampered)); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed for tampered payload, got %v", err)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	keyA, _ := GenerateKey()
	keyB, _ := GenerateKey()
	a, err := NewCipher(keyA)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	b, err := NewCipher(keyB)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	sealed, err := a.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := b.Decrypt(sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed with wrong key, got %v", err)
	}
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	first, err := DeriveKey("shared secret")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	second, err := DeriveKey("shared secret")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if first != second {
		t.Fatal("expected deterministic derivation")
	}
	other, err := DeriveKey("different secret")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if other == first {
		t.Fatal("expected distinct keys for distinct passphrases")
	}
	if _, err := DeriveKey(""); err == nil {
		t.Fatal("expected error for empty passphrase")
	}
}
