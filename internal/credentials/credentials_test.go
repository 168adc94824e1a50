package credentials

import (
	"errors"
	"testing"
)

func TestStore_RoundTrip(t *testing.T) {
	s, err := NewStore("test-master-secret")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	enc, err := s.Encrypt(Plain{
		ClientID: []byte("client-1"),
		Secret:   []byte("s3cr3t"),
	})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if enc.ClientID == "" || enc.Secret == "" {
		t.Fatalf("expected sealed client id and secret, got %+v", enc)
	}
	if enc.AccessToken != "" {
		t.Fatalf("expected empty access token to stay empty")
	}
	if enc.Secret == "s3cr3t" {
		t.Fatalf("secret stored in plaintext")
	}

	p, err := s.Decrypt(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	defer p.Wipe()
	if string(p.ClientID) != "client-1" || string(p.Secret) != "s3cr3t" {
		t.Fatalf("unexpected plaintext %q / %q", p.ClientID, p.Secret)
	}
	if p.AccessToken != nil {
		t.Fatalf("expected nil access token")
	}
}

func TestStore_SealingIsRandomized(t *testing.T) {
	s, _ := NewStore("k")
	a, _ := s.EncryptValue([]byte("same"))
	b, _ := s.EncryptValue([]byte("same"))
	if a == b {
		t.Fatalf("expected distinct ciphertexts for the same value")
	}
}

func TestStore_WrongKeyFailsWithoutPartialResult(t *testing.T) {
	s1, _ := NewStore("key-one")
	s2, _ := NewStore("key-two")
	enc, err := s1.Encrypt(Plain{ClientID: []byte("id"), Secret: []byte("pw")})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	p, err := s2.Decrypt(enc)
	if !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
	if p.ClientID != nil || p.Secret != nil || p.AccessToken != nil {
		t.Fatalf("expected zero value on failure, got %+v", p)
	}
}

func TestStore_TamperedValue(t *testing.T) {
	s, _ := NewStore("k")
	v, _ := s.EncryptValue([]byte("value"))
	b := []byte(v)
	if b[len(b)-2] == 'A' {
		b[len(b)-2] = 'B'
	} else {
		b[len(b)-2] = 'A'
	}
	if _, err := s.DecryptValue(string(b)); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt for tampered value, got %v", err)
	}
	if _, err := s.DecryptValue("not base64 !!"); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt for bad encoding, got %v", err)
	}
}

func TestPlain_Wipe(t *testing.T) {
	secret := []byte("wipe-me")
	p := Plain{Secret: secret}
	p.Wipe()
	for _, c := range secret {
		if c != 0 {
			t.Fatalf("secret bytes not zeroed: %q", secret)
		}
	}
	if p.Secret != nil {
		t.Fatalf("expected nil secret after wipe")
	}
}

func TestNewStore_RequiresSecret(t *testing.T) {
	if _, err := NewStore(""); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}
