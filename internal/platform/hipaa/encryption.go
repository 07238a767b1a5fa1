package hipaa

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// ciphertextPrefix marks values written by PHIEncryptor so rows stored before
// encryption was enabled are still readable.
const ciphertextPrefix = "enc:v1:"

// FieldEncryptor encrypts single string columns holding PHI.
type FieldEncryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// PHIEncryptor provides AES-256-GCM field-level encryption and decryption for PHI data.
type PHIEncryptor struct {
	aead cipher.AEAD
}

// NewPHIEncryptor creates a new PHIEncryptor with the given 32-byte AES-256 key.
func NewPHIEncryptor(key []byte) (*PHIEncryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("phi encryptor: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("phi encryptor: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("phi encryptor: create GCM: %w", err)
	}

	return &PHIEncryptor{aead: aead}, nil
}

// Encrypt returns "enc:v1:" followed by base64(nonce || ciphertext).
func (e *PHIEncryptor) Encrypt(plaintext string) (string, error) {
	encrypted, err := e.encryptBytes([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return ciphertextPrefix + base64.StdEncoding.EncodeToString(encrypted), nil
}

// Decrypt reverses Encrypt. Values without the ciphertext prefix are
// returned unchanged.
func (e *PHIEncryptor) Decrypt(ciphertext string) (string, error) {
	if !IsEncrypted(ciphertext) {
		return ciphertext, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, ciphertextPrefix))
	if err != nil {
		return "", fmt.Errorf("phi decrypt: base64 decode: %w", err)
	}

	plaintext, err := e.decryptBytes(data)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether s was produced by PHIEncryptor.Encrypt.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, ciphertextPrefix)
}

// encryptBytes encrypts the data and returns the nonce prepended to the ciphertext.
func (e *PHIEncryptor) encryptBytes(data []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("phi encrypt: generate nonce: %w", err)
	}

	return e.aead.Seal(nonce, nonce, data, nil), nil
}

// decryptBytes extracts the nonce from the front of data and decrypts the remainder.
func (e *PHIEncryptor) decryptBytes(data []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("phi decrypt: ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("phi decrypt: %w", err)
	}
	return plaintext, nil
}
