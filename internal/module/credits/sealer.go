package credits

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer encrypts self-supplied provider keys at rest with XChaCha20-Poly1305.
// The owning user id is bound as additional data, so a ciphertext copied to
// another row does not open.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a sealer from a 32 byte key.
func NewSealer(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create credential sealer: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns nonce || ciphertext.
func (s *Sealer) Seal(userID uuid.UUID, plaintext string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, []byte(plaintext), userID[:]), nil
}

// Open reverses Seal.
func (s *Sealer) Open(userID uuid.UUID, sealed []byte) (string, error) {
	if len(sealed) < s.aead.NonceSize() {
		return "", fmt.Errorf("%w: sealed value too short", ErrInvalidCredential)
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, userID[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return string(plaintext), nil
}
