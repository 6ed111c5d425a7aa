package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize     = 32     // salt size in bytes
	KeySize      = 32     // AES-256 key size
	NonceSize    = 12     // GCM nonce size
	TagSize      = 16     // GCM authentication tag size
	DefaultIters = 210000 // PBKDF2 iterations (OWASP minimum)
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrAuthFailed        = errors.New("authentication failed")
)

// DeriveKey derives a KeySize encryption key from a password and salt
// using PBKDF2-HMAC-SHA256. Deterministic: the same password and salt
// always yield the same key.
func DeriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, DefaultIters, KeySize, sha256.New)
}

// GenerateSalt returns a fresh random KDF salt.
func GenerateSalt() ([]byte, error) {
	return GenerateRandom(SaltSize)
}

// GenerateKey returns a fresh cryptographically random KeySize key.
func GenerateKey() ([]byte, error) {
	return GenerateRandom(KeySize)
}

// GenerateRandom generates n random bytes.
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

// Encryptor provides authenticated encryption under a fixed key.
type Encryptor struct {
	key []byte
}

// NewEncryptor creates an encryptor with the given key.
func NewEncryptor(key []byte) *Encryptor {
	return &Encryptor{key: key}
}

// Encrypt encrypts plaintext with AES-256-GCM under a fresh random
// nonce. The result is nonce || ciphertext || tag.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	result := make([]byte, NonceSize+len(ciphertext))
	copy(result, nonce)
	copy(result[NonceSize:], ciphertext)
	return result, nil
}

// Decrypt decrypts a nonce || ciphertext || tag blob. Returns
// ErrAuthFailed when the tag does not verify: wrong key, corrupted data
// or tampering are indistinguishable.
func (e *Encryptor) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < NonceSize+TagSize {
		return nil, ErrInvalidCiphertext
	}

	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	nonce, ciphertext := blob[:NonceSize], blob[NonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// Destroy clears the encryptor's key from memory.
func (e *Encryptor) Destroy() {
	ClearBytes(e.key)
}

func (e *Encryptor) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// ClearBytes zeroes a byte slice holding sensitive material.
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
