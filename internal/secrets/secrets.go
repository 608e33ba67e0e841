// Package secrets provides field-level encryption for credential values that
// are persisted by the settings vault, plus a Secret string type that is
// masked on every outward-facing representation.
package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Masked is what a Secret renders as anywhere outside internal use.
const Masked = "********"

var errShortCiphertext = errors.New("ciphertext too short")

// Cipher encrypts and decrypts credential fields with a process-wide
// symmetric key. Ciphertexts are base64 with a random nonce prefix.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secrets.NewCipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext and returns a base64 ciphertext. Empty input
// encrypts to the empty string so optional fields stay optional.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets.Encrypt: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("secrets.Decrypt: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("secrets.Decrypt: %w", errShortCiphertext)
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("secrets.Decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Secret is a credential value that must never leave the process in
// plaintext. Its String, formatting and JSON representations are masked;
// callers that genuinely need the value use Reveal.
type Secret string

// Reveal returns the underlying plaintext value.
func (s Secret) Reveal() string { return string(s) }

// IsSet reports whether a value is present.
func (s Secret) IsSet() bool { return s != "" }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return Masked
}

// Format implements fmt.Formatter so %v, %s and %q never print the value.
func (s Secret) Format(f fmt.State, verb rune) {
	fmt.Fprint(f, s.String())
}

// MarshalJSON always emits the masked form. Secrets are persisted through
// Cipher, never through JSON.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"` + Masked + `"`), nil
}

// UnmarshalJSON accepts inbound values (settings updates carry candidate
// passwords in request bodies).
func (s *Secret) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("secrets.Secret: %w", err)
	}
	*s = Secret(v)
	return nil
}
