// internal/wallet/wallet.go
package wallet

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
)

// ErrNoKey is returned when neither the user nor the default key is configured.
var ErrNoKey = errors.New("no signing key for user")

// Config selects where keys come from.
type Config struct {
	File       string `mapstructure:"file"`
	DefaultKey string `mapstructure:"default_key"`
}

// ParseKey decodes a base58 secret key or a JSON byte array as written by solana-keygen.
func ParseKey(raw string) (solana.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	var b []byte
	if strings.HasPrefix(raw, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(raw), &ints); err != nil {
			return nil, fmt.Errorf("decode key array: %w", err)
		}
		b = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("key byte %d out of range", i)
			}
			b[i] = byte(v)
		}
	} else {
		var err error
		if b, err = base58.Decode(raw); err != nil {
			return nil, fmt.Errorf("decode key: %w", err)
		}
	}
	if len(b) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(b))
	}
	return solana.PrivateKey(b), nil
}

// Keyring maps users to signing keys with an optional default.
type Keyring struct {
	mu       sync.RWMutex
	keys     map[string]solana.PrivateKey
	fallback solana.PrivateKey
	logger   *zap.Logger
}

// New creates an empty keyring.
func New(logger *zap.Logger) *Keyring {
	return &Keyring{keys: make(map[string]solana.PrivateKey), logger: logger.Named("keyring")}
}

// Load builds a keyring from cfg. Both sources are optional.
func Load(cfg Config, logger *zap.Logger) (*Keyring, error) {
	k := New(logger)
	if cfg.DefaultKey != "" {
		key, err := ParseKey(cfg.DefaultKey)
		if err != nil {
			return nil, fmt.Errorf("default key: %w", err)
		}
		k.SetDefault(key)
	}
	if cfg.File != "" {
		if err := k.LoadFile(cfg.File); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// LoadFile reads a CSV file with the columns user_id,private_key.
func (k *Keyring) LoadFile(path string) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open keyring: %w", err)
	}
	defer f.Close()
	return k.LoadCSV(f)
}

// LoadCSV reads user_id,private_key rows. A header row and malformed rows are skipped.
func (k *Keyring) LoadCSV(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("read keyring: %w", err)
	}

	loaded := 0
	for i, rec := range records {
		if len(rec) != 2 {
			k.logger.Warn("Skipping malformed keyring row", zap.Int("row", i+1))
			continue
		}
		user := strings.TrimSpace(rec[0])
		if i == 0 && strings.EqualFold(user, "user_id") {
			continue
		}
		key, err := ParseKey(rec[1])
		if err != nil {
			k.logger.Warn("Skipping invalid key", zap.Int("row", i+1), zap.String("user_id", user), zap.Error(err))
			continue
		}
		k.Set(user, key)
		loaded++
	}
	k.logger.Info("Keyring loaded", zap.Int("keys", loaded))
	return nil
}

// Set assigns key to userID.
func (k *Keyring) Set(userID string, key solana.PrivateKey) {
	k.mu.Lock()
	k.keys[userID] = key
	k.mu.Unlock()
}

// SetDefault sets the key used for users without their own.
func (k *Keyring) SetDefault(key solana.PrivateKey) {
	k.mu.Lock()
	k.fallback = key
	k.mu.Unlock()
}

// Key returns the user's key or the default.
func (k *Keyring) Key(userID string) (solana.PrivateKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if key, ok := k.keys[userID]; ok {
		return key, nil
	}
	if len(k.fallback) > 0 {
		return k.fallback, nil
	}
	return nil, fmt.Errorf("%w %s", ErrNoKey, userID)
}

// Len is the number of per-user keys.
func (k *Keyring) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}
