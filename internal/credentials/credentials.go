// Package credentials encrypts LMS API credentials at rest and decrypts them
// on demand for the single template operation that needs them.
package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	formatVersion byte = 1
	saltSize           = 16
	keyInfo            = "seb-lms-client-credentials"
)

var (
	ErrNoSecret = errors.New("credentials: missing encryption secret")
	ErrDecrypt  = errors.New("credentials: decryption failed")
	ErrEncrypt  = errors.New("credentials: encryption failed")
)

// Encrypted is the at-rest form of a client credential triple. Every field is
// a sealed, base64 encoded value; an empty field means "not set".
type Encrypted struct {
	ClientID    string `json:"-"`
	Secret      string `json:"-"`
	AccessToken string `json:"-"`
}

func (e Encrypted) HasClientID() bool    { return e.ClientID != "" }
func (e Encrypted) HasSecret() bool      { return e.Secret != "" }
func (e Encrypted) HasAccessToken() bool { return e.AccessToken != "" }

// Plain is the decrypted form. Callers must Wipe it as soon as the operation
// that required it returns.
type Plain struct {
	ClientID    []byte
	Secret      []byte
	AccessToken []byte
}

func (p *Plain) Wipe() {
	if p == nil {
		return
	}
	zero(p.ClientID)
	zero(p.Secret)
	zero(p.AccessToken)
	p.ClientID, p.Secret, p.AccessToken = nil, nil, nil
}

func (p Plain) String() string { return "credentials.Plain{redacted}" }

// Store seals and opens credential values with a key derived per value from
// a process-wide master secret.
type Store struct {
	master []byte
	rand   io.Reader
}

func NewStore(secret string) (*Store, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Store{master: []byte(secret), rand: rand.Reader}, nil
}

// Encrypt seals every non-empty field of p. p is left untouched.
func (s *Store) Encrypt(p Plain) (Encrypted, error) {
	var out Encrypted
	var err error
	if out.ClientID, err = s.EncryptValue(p.ClientID); err != nil {
		return Encrypted{}, err
	}
	if out.Secret, err = s.EncryptValue(p.Secret); err != nil {
		return Encrypted{}, err
	}
	if out.AccessToken, err = s.EncryptValue(p.AccessToken); err != nil {
		return Encrypted{}, err
	}
	return out, nil
}

// Decrypt opens all fields of e. It never returns a partially decrypted value:
// on any failure the already opened fields are wiped and an error is returned.
func (s *Store) Decrypt(e Encrypted) (Plain, error) {
	var p Plain
	var err error
	if p.ClientID, err = s.DecryptValue(e.ClientID); err != nil {
		p.Wipe()
		return Plain{}, fmt.Errorf("client id: %w", err)
	}
	if p.Secret, err = s.DecryptValue(e.Secret); err != nil {
		p.Wipe()
		return Plain{}, fmt.Errorf("secret: %w", err)
	}
	if p.AccessToken, err = s.DecryptValue(e.AccessToken); err != nil {
		p.Wipe()
		return Plain{}, fmt.Errorf("access token: %w", err)
	}
	return p, nil
}

// EncryptValue seals a single value. Empty input yields an empty string.
func (s *Store) EncryptValue(plain []byte) (string, error) {
	if len(plain) == 0 {
		return "", nil
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(s.rand, salt); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	key, err := s.deriveKey(salt)
	if err != nil {
		return "", err
	}
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}

	buf := make([]byte, 0, 1+saltSize+len(nonce)+len(plain)+aead.Overhead())
	buf = append(buf, formatVersion)
	buf = append(buf, salt...)
	buf = append(buf, nonce...)
	buf = aead.Seal(buf, nonce, plain, salt)
	return base64.RawStdEncoding.EncodeToString(buf), nil
}

// DecryptValue opens a single sealed value. An empty input yields nil.
func (s *Store) DecryptValue(sealed string) ([]byte, error) {
	if sealed == "" {
		return nil, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: bad encoding", ErrDecrypt)
	}
	if len(raw) < 1+saltSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: value too short", ErrDecrypt)
	}
	if raw[0] != formatVersion {
		return nil, fmt.Errorf("%w: unknown format version %d", ErrDecrypt, raw[0])
	}
	salt := raw[1 : 1+saltSize]
	nonce := raw[1+saltSize : 1+saltSize+chacha20poly1305.NonceSizeX]
	sealedBody := raw[1+saltSize+chacha20poly1305.NonceSizeX:]

	key, err := s.deriveKey(salt)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plain, err := aead.Open(nil, nonce, sealedBody, salt)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

func (s *Store) deriveKey(salt []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, s.master, salt, []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("credentials: derive key: %w", err)
	}
	return key, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
