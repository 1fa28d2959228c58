// Package crypto implements the password envelope used to protect account
// key blobs at rest: PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM
// authenticated encryption, serialized to a versioned JSON envelope.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"crypto/sha256"
)

const (
	// CurrentVersion is the envelope format version.
	CurrentVersion = 1
	// DefaultIterations is the PBKDF2 iteration count for new envelopes.
	DefaultIterations = 100000

	saltLength = 16
	ivLength   = 12
	keyLength  = 32
)

var (
	// ErrInvalidPassword is returned when the ciphertext fails to
	// authenticate with the key derived from the provided password.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUnsupportedVersion ...
	ErrUnsupportedVersion = errors.New("unsupported envelope version")
	// ErrMalformedEnvelope ...
	ErrMalformedEnvelope = errors.New("malformed encrypted envelope")
)

// EncryptedData is the serialized envelope. All binary fields are base64
// encoded; the ciphertext includes the 16-byte GCM auth tag.
type EncryptedData struct {
	Version    uint32 `json:"version"`
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
	Iterations uint32 `json:"iterations"`
}

// Encrypt seals the plaintext with a key derived from the password.
func Encrypt(plaintext []byte, password string) (*EncryptedData, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generating iv: %w", err)
	}

	aead, err := newAEAD(password, salt, DefaultIterations)
	if err != nil {
		return nil, err
	}

	ciphertext := aead.Seal(nil, iv, plaintext, nil)

	return &EncryptedData{
		Version:    CurrentVersion,
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(iv),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Iterations: DefaultIterations,
	}, nil
}

// Decrypt opens the envelope with a key derived from the password.
func Decrypt(data *EncryptedData, password string) ([]byte, error) {
	if data.Version != CurrentVersion {
		return nil, ErrUnsupportedVersion
	}

	ciphertext, err := base64.StdEncoding.DecodeString(data.Ciphertext)
	if err != nil {
		return nil, ErrMalformedEnvelope
	}
	iv, err := base64.StdEncoding.DecodeString(data.IV)
	if err != nil || len(iv) != ivLength {
		return nil, ErrMalformedEnvelope
	}
	salt, err := base64.StdEncoding.DecodeString(data.Salt)
	if err != nil {
		return nil, ErrMalformedEnvelope
	}

	aead, err := newAEAD(password, salt, data.Iterations)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidPassword
	}
	return plaintext, nil
}

// Serialize returns the JSON encoding of the envelope.
func (e *EncryptedData) Serialize() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEncryptedData decodes a JSON envelope.
func ParseEncryptedData(raw []byte) (*EncryptedData, error) {
	envelope := &EncryptedData{}
	if err := json.Unmarshal(raw, envelope); err != nil {
		return nil, ErrMalformedEnvelope
	}
	if len(envelope.Ciphertext) == 0 || len(envelope.Salt) == 0 {
		return nil, ErrMalformedEnvelope
	}
	return envelope, nil
}

func newAEAD(password string, salt []byte, iterations uint32) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, int(iterations), keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
