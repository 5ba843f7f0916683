package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
)

// EncryptionKeySize is the key length required by the token vault (AES-256).
const EncryptionKeySize = 32

// minJWTSecretSize is the minimum accepted session signing secret length.
const minJWTSecretSize = 32

// LoadEncryptionKey reads the token encryption key from the configured path.
// If the file does not exist, a fresh random key is generated and persisted
// with owner-only permissions so restarts can decrypt previously stored tokens.
func (c *Config) LoadEncryptionKey() ([]byte, error) {
	raw, err := loadOrCreateKeyMaterial(c.EncryptionKeyPath, EncryptionKeySize)
	if err != nil {
		return nil, fmt.Errorf("loading encryption key: %w", err)
	}
	if len(raw) != EncryptionKeySize {
		return nil, fmt.Errorf("encryption key at %s must be %d bytes, got %d",
			c.EncryptionKeyPath, EncryptionKeySize, len(raw))
	}
	return raw, nil
}

// LoadJWTSecret reads the session signing secret from the configured path,
// generating and persisting one on first run.
func (c *Config) LoadJWTSecret() ([]byte, error) {
	raw, err := loadOrCreateKeyMaterial(c.JWTSecretPath, 64)
	if err != nil {
		return nil, fmt.Errorf("loading JWT secret: %w", err)
	}
	if len(raw) < minJWTSecretSize {
		return nil, fmt.Errorf("JWT secret at %s must be at least %d bytes, got %d",
			c.JWTSecretPath, minJWTSecretSize, len(raw))
	}
	return raw, nil
}

// loadOrCreateKeyMaterial reads base64-encoded key material from path. When
// the file is absent it generates size random bytes, persists them, and
// returns the new material.
func loadOrCreateKeyMaterial(path string, size int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		decoded, decErr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if decErr != nil {
			return nil, fmt.Errorf("decoding key material in %s: %w", path, decErr)
		}
		return decoded, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key material: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("creating key directory: %w", err)
		}
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(path, []byte(encoded+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("persisting key material to %s: %w", path, err)
	}
	logger.Infof("Generated new key material at %s", path)

	return key, nil
}
