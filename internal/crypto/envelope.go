// Package crypto seals small secrets, such as the vault password kept in the
// OS keyring, with AES-256-GCM under a random envelope key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the envelope key length (AES-256)
	KeySize = 32

	SaltSize  = 16
	NonceSize = 12

	// Iterations of PBKDF2-SHA256 used to derive the per-seal key
	Iterations = 100000

	// version is the first byte of every sealed payload and the GCM
	// additional data
	version byte = 1
)

var (
	// ErrInvalidKey is returned for keys of the wrong length
	ErrInvalidKey = errors.New("invalid envelope key")

	// ErrMalformed is returned when a sealed value cannot be parsed
	ErrMalformed = errors.New("malformed sealed value")

	// ErrOpen is returned when authentication of a sealed value fails
	ErrOpen = errors.New("sealed value could not be opened")
)

// Key is an envelope key. Its String form never reveals the bytes.
type Key []byte

// Envelope seals and opens values with one key
type Envelope struct {
	key  Key
	rand io.Reader
}

// GenerateKey returns a random envelope key
func GenerateKey() (Key, error) {
	return generateKey(rand.Reader)
}

func generateKey(r io.Reader) (Key, error) {
	key := make(Key, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to generate envelope key: %w", err)
	}
	return key, nil
}

// DecodeKey parses the base64 form produced by Key.Encode
func DecodeKey(encoded string) (Key, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKey, len(raw))
	}
	return Key(raw), nil
}

func (k Key) Encode() string {
	return base64.StdEncoding.EncodeToString(k)
}

func (k Key) String() string {
	return fmt.Sprintf("Key[%d bytes]", len(k))
}

// Zeroize overwrites the key in place
func (k Key) Zeroize() {
	clear(k)
}

// New returns an envelope for key
func New(key Key) (*Envelope, error) {
	return NewWithRand(key, rand.Reader)
}

// NewWithRand returns an envelope drawing salts and nonces from r
func NewWithRand(key Key, r io.Reader) (*Envelope, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	return &Envelope{key: key, rand: r}, nil
}

func (e *Envelope) aead(salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key(e.key, salt, Iterations, KeySize, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext. The result is
// base64(version | salt | nonce | ciphertext) and differs on every call.
func (e *Envelope) Seal(plaintext string) (string, error) {
	buf := make([]byte, 1+SaltSize+NonceSize, 1+SaltSize+NonceSize+len(plaintext)+16)
	buf[0] = version
	if _, err := io.ReadFull(e.rand, buf[1:]); err != nil {
		return "", fmt.Errorf("failed to read salt and nonce: %w", err)
	}
	salt := buf[1 : 1+SaltSize]
	nonce := buf[1+SaltSize:]

	gcm, err := e.aead(salt)
	if err != nil {
		return "", err
	}
	out := gcm.Seal(buf, nonce, []byte(plaintext), buf[:1])
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal
func (e *Envelope) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < 1+SaltSize+NonceSize+1 {
		return "", fmt.Errorf("%w: %d bytes", ErrMalformed, len(raw))
	}
	if raw[0] != version {
		return "", fmt.Errorf("%w: unknown version %d", ErrMalformed, raw[0])
	}

	salt := raw[1 : 1+SaltSize]
	nonce := raw[1+SaltSize : 1+SaltSize+NonceSize]
	gcm, err := e.aead(salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, raw[1+SaltSize+NonceSize:], raw[:1])
	if err != nil {
		return "", ErrOpen
	}
	return string(plaintext), nil
}
