// Package cryptox holds the small cryptographic helpers shared by the
// server and tools: the repeating-key XOR codec clients use for the sync
// document, and argon2id password hashing.
package cryptox

import (
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrEmptyKey    = errors.New("empty key")
	ErrInvalidUTF8 = errors.New("plaintext is not valid utf-8")
)

// XORCipher XORs data against a key repeated to the data length. It is
// an obfuscation layer, not encryption. The wire form is standard
// padded base64 of the XORed bytes, matching what clients produce.
type XORCipher struct {
	key []byte
}

func NewXORCipher(secret string) (*XORCipher, error) {
	if secret == "" {
		return nil, ErrEmptyKey
	}
	return &XORCipher{key: []byte(secret)}, nil
}

func (c *XORCipher) apply(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		out[i] = b ^ c.key[i%len(c.key)]
	}
	return out
}

// Encrypt returns base64(plaintext XOR key).
func (c *XORCipher) Encrypt(plaintext string) string {
	return base64.StdEncoding.EncodeToString(c.apply([]byte(plaintext)))
}

// Decrypt reverses Encrypt. The result must be valid UTF-8.
func (c *XORCipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	plain := c.apply(raw)
	if !utf8.Valid(plain) {
		return "", ErrInvalidUTF8
	}
	return string(plain), nil
}
