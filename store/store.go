package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("record not found")

// Record lifetimes.
const (
	SessionTTL         = 30 * 24 * time.Hour
	AuthCodeTTL        = 10 * time.Minute
	PaymentPageTTL     = 15 * time.Minute
	UsedPaymentPageTTL = 1 * time.Minute
	NoExpiry           = time.Duration(0)
)

// Store is a key-value store with per-record expiry. Writes are atomic per key
// only; there are no multi-key transactions.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes value under key. A zero ttl means the record never expires.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("[store.GetJSON] decode %s: %w", keyKind(key), err)
	}
	return nil
}

func PutJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("[store.PutJSON] encode %s: %w", keyKind(key), err)
	}
	return s.Put(ctx, key, raw, ttl)
}

// GetString reads an index record holding a plain identifier.
func GetString(ctx context.Context, s Store, key string) (string, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func PutString(ctx context.Context, s Store, key, value string, ttl time.Duration) error {
	return s.Put(ctx, key, []byte(value), ttl)
}
