package config

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
)

// ConfigHasher tracks the hash of the configuration the service runs with
// and compares it with the file on disk.
type ConfigHasher struct {
	configPath string
	activeHash string

	mu sync.RWMutex
}

// NewConfigHasher creates a new config hasher
func NewConfigHasher(configPath string) *ConfigHasher {
	return &ConfigHasher{
		configPath: configPath,
	}
}

// CalculateHash returns the MD5 of the canonical TOML form of config.
func CalculateHash(config *Config) (string, error) {
	buf, err := config.SerializeConfig()
	if err != nil {
		return "", fmt.Errorf("failed to serialize config: %w", err)
	}
	hash := md5.Sum(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

// CurrentHash loads the config file and hashes it.
func (h *ConfigHasher) CurrentHash() (string, error) {
	cfg, err := LoadConfig(h.configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return CalculateHash(cfg)
}

// ActiveHash returns the hash of the config the service applied last.
func (h *ConfigHasher) ActiveHash() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.activeHash
}

// SetActiveConfig records config as the one the service runs with.
func (h *ConfigHasher) SetActiveConfig(config *Config) error {
	hash, err := CalculateHash(config)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activeHash = hash
	return nil
}

// IsOutdated reports whether the file on disk differs from the active config.
func (h *ConfigHasher) IsOutdated() (bool, error) {
	current, err := h.CurrentHash()
	if err != nil {
		return false, err
	}
	return current != h.ActiveHash(), nil
}
