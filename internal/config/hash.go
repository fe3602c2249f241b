package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// SecretFingerprint identifies the configured secret in logs without
// revealing it: the first 12 hex chars of its BLAKE3 hash.
func (c *Config) SecretFingerprint() string {
	if c.Webhook.Secret == "" {
		return ""
	}
	hash := blake3.Sum256([]byte(c.Webhook.Secret))
	return hex.EncodeToString(hash[:])[:12]
}
