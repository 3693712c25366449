package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jrsteele09/go-agent-auth/store"
)

var _ store.Store = (*MemStore)(nil)

// MemStore is an in-process store backed by ttlcache. Expired records are
// evicted by the cache's cleanup loop and are never returned by Get.
type MemStore struct {
	cache *ttlcache.Cache[string, []byte]
}

func New() *MemStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []byte](ttlcache.NoTTL),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go cache.Start()

	return &MemStore{cache: cache}
}

func (m *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	item := m.cache.Get(key)
	if item == nil || item.IsExpired() {
		return nil, store.ErrNotFound
	}
	value := item.Value()
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.cache.Set(key, stored, ttl)
	return nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// Keys lists the live keys starting with prefix, sorted.
func (m *MemStore) Keys(prefix string) []string {
	keys := make([]string, 0)
	for key, item := range m.cache.Items() {
		if strings.HasPrefix(key, prefix) && !item.IsExpired() {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// TTL reports the remaining lifetime of key. Zero means no expiry.
func (m *MemStore) TTL(key string) (time.Duration, bool) {
	item := m.cache.Get(key)
	if item == nil || item.IsExpired() {
		return 0, false
	}
	if item.ExpiresAt().IsZero() {
		return 0, true
	}
	return time.Until(item.ExpiresAt()), true
}

// Close stops the cleanup loop.
func (m *MemStore) Close() {
	m.cache.Stop()
}
