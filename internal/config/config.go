// Package config loads and saves the server configuration. The config
// file holds the shared login credential, so it is sealed at rest with
// AES-256-GCM under a random key kept next to it with 0600 permissions.
package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	configFile = "config.enc"
	keyFile    = "config.key"
	keyLen     = 32
)

var ErrNotInitialized = errors.New("config not initialized; run `homeflix init`")

type Config struct {
	Bind         string `json:"bind"`
	Port         int    `json:"port"`
	RootDir      string `json:"root_dir"`
	LogLevel     string `json:"log_level"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	HTTPS        bool   `json:"https"`
	CertFile     string `json:"cert_file"`
	KeyFile      string `json:"key_file"`
}

func Default() Config {
	return Config{
		Bind:     "0.0.0.0",
		Port:     8080,
		RootDir:  "",
		LogLevel: "info",
	}
}

// DefaultDataDir resolves the per-user data directory holding the sealed
// config, its key and the session database.
func DefaultDataDir() (string, error) {
	if p := strings.TrimSpace(os.Getenv("HOMEFLIX_DATA_DIR")); p != "" {
		return p, nil
	}
	cfgRoot, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(cfgRoot, "homeflix"), nil
}

// Load reads and unseals the config from dataDir. A missing config is
// ErrNotInitialized; a present but undecryptable or corrupt config is a
// hard error, never a partial result.
func Load(dataDir string) (Config, error) {
	sealed, err := os.ReadFile(filepath.Join(dataDir, configFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, ErrNotInitialized
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	key, err := os.ReadFile(filepath.Join(dataDir, keyFile))
	if err != nil {
		return Config{}, fmt.Errorf("read config key: %w", err)
	}
	plain, err := unseal(key, sealed)
	if err != nil {
		return Config{}, fmt.Errorf("unseal config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(plain, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save validates, seals and writes cfg under dataDir, creating the key on
// first use.
func Save(dataDir string, cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	key, err := loadOrCreateKey(filepath.Join(dataDir, keyFile))
	if err != nil {
		return err
	}
	plain, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	sealed, err := seal(key, plain)
	if err != nil {
		return fmt.Errorf("seal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, configFile), sealed, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func Validate(cfg Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	if strings.TrimSpace(cfg.Username) == "" {
		return fmt.Errorf("username is empty")
	}
	if strings.TrimSpace(cfg.PasswordHash) == "" {
		return fmt.Errorf("password hash is empty")
	}
	if cfg.RootDir == "" {
		return fmt.Errorf("root directory is not set")
	}
	if cfg.HTTPS && (cfg.CertFile == "" || cfg.KeyFile == "") {
		return fmt.Errorf("https enabled but cert/key missing")
	}
	return nil
}

func loadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != keyLen {
			return nil, fmt.Errorf("config key has wrong size %d", len(key))
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config key: %w", err)
	}
	key = make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate config key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write config key: %w", err)
	}
	return key, nil
}

func seal(key, plain []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

func unseal(key, sealed []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed config too short")
	}
	nonce, box := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return nil, fmt.Errorf("config is corrupt or the key does not match: %w", err)
	}
	return plain, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("config key has wrong size %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
