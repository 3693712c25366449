package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	keyLength = 32 // AES-256
	ivLength  = 12 // 96-bit GCM nonce
)

var (
	ErrInvalidKey = errors.New("encryption key must be 64 hex characters")
	ErrDecrypt    = errors.New("unable to decrypt value")
)

// Sealed is an encrypted value and the IV it was sealed with, both hex encoded.
type Sealed struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
}

// Vault seals upstream credentials at rest with AES-256-GCM.
type Vault struct {
	key  []byte
	aead cipher.AEAD
}

// New creates a Vault from a 64 character hex key. A malformed key is a
// startup error, never a runtime one.
func New(hexKey string) (*Vault, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(key) != keyLength {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("[vault.New] aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("[vault.New] gcm: %w", err)
	}

	return &Vault{key: key, aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random IV.
func (v *Vault) Seal(plaintext string) (Sealed, error) {
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return Sealed{}, fmt.Errorf("[Vault.Seal] iv: %w", err)
	}
	ciphertext := v.aead.Seal(nil, iv, []byte(plaintext), nil)
	return Sealed{
		Ciphertext: hex.EncodeToString(ciphertext),
		IV:         hex.EncodeToString(iv),
	}, nil
}

// Open decrypts a sealed value. Every failure is reported as ErrDecrypt.
func (v *Vault) Open(sealed Sealed) (string, error) {
	ciphertext, err := hex.DecodeString(sealed.Ciphertext)
	if err != nil {
		return "", ErrDecrypt
	}
	iv, err := hex.DecodeString(sealed.IV)
	if err != nil || len(iv) != ivLength {
		return "", ErrDecrypt
	}
	plaintext, err := v.aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// Fingerprint derives an opaque, stable user identifier from an email address.
func (v *Vault) Fingerprint(email string) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(mac.Sum(nil))
}

// RandomHex returns n random bytes, hex encoded.
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("[vault.RandomHex] %w", err)
	}
	return hex.EncodeToString(b), nil
}

func NewID() string {
	return uuid.New().String()
}
