package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"gpimon/internal/domain"
)

// SealedPrefix marks a config value produced by SealSecret.
const SealedPrefix = "enc:"

// KeyEnv names the environment variable holding the passphrase for sealed
// config values.
const KeyEnv = "GPIMON_CONFIG_KEY"

// Argon2id parameters. Sealed values do not record them, so changing any of
// these makes existing values unreadable.
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	saltSize   = 16
)

// IsSealed reports whether v is a sealed value.
func IsSealed(v string) bool { return strings.HasPrefix(v, SealedPrefix) }

// SealSecret encrypts plaintext with AES-256-GCM under a key derived from
// passphrase. The result is SealedPrefix followed by base64url of
// salt, nonce and ciphertext.
func SealSecret(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", domain.NewDomainError("config.SealSecret", domain.ErrInvalidInput, "empty passphrase")
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	aead, err := sealer(passphrase, salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	blob := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.RawURLEncoding.EncodeToString(blob), nil
}

// OpenSecret decrypts a value produced by SealSecret. Values without
// SealedPrefix are returned unchanged.
func OpenSecret(value, passphrase string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	blob, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", domain.NewDomainError("config.OpenSecret", domain.ErrInvalidInput, "malformed sealed value").WithCause(err)
	}
	if len(blob) < saltSize {
		return "", domain.NewDomainError("config.OpenSecret", domain.ErrInvalidInput, "sealed value too short")
	}
	aead, err := sealer(passphrase, blob[:saltSize])
	if err != nil {
		return "", err
	}
	rest := blob[saltSize:]
	if len(rest) < aead.NonceSize()+aead.Overhead() {
		return "", domain.NewDomainError("config.OpenSecret", domain.ErrInvalidInput, "sealed value too short")
	}
	plaintext, err := aead.Open(nil, rest[:aead.NonceSize()], rest[aead.NonceSize():], nil)
	if err != nil {
		return "", domain.NewDomainError("config.OpenSecret", domain.ErrInvalidInput, "wrong passphrase or corrupted value").WithCause(err)
	}
	return string(plaintext), nil
}

func sealer(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// openSecrets replaces sealed gateway tokens with their plaintext.
func openSecrets(cfg *Config, passphrase string) error {
	for i, tok := range cfg.Gateway.Auth.Tokens {
		plain, err := OpenSecret(tok.Token, passphrase)
		if err != nil {
			return fmt.Errorf("gateway auth token %q: %w", tok.Name, err)
		}
		cfg.Gateway.Auth.Tokens[i].Token = plain
	}
	return nil
}
