package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// encryptionKey derives a stable 32-byte key from the machine hostname plus
// the owning user's home directory, so the encrypted API key in the user
// config file is useless if copied to another machine or account.
func encryptionKey() [32]byte {
	host, _ := os.Hostname()
	home, _ := os.UserHomeDir()
	return sha256.Sum256([]byte("engram-config-key-v1|" + host + "|" + home))
}

// EncryptAPIKey encrypts plaintext for storage in the user config file's
// embed.api_key_encrypted field, returning a hex-encoded nonce||ciphertext.
func EncryptAPIKey(plaintext string) (string, error) {
	key := encryptionKey()
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

func decryptAPIKey(encoded string) (string, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode hex: %w", err)
	}

	key := encryptionKey()
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
