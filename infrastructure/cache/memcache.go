package cache

import (
	"errors"
	"sync"
	"time"
)

var ErrNotInteger = errors.New("value is not an integer")

// MemCache is a simple in-memory cache backed by sync.Map.
// Items can have optional TTL. A background cleanup goroutine
// runs when NewMemCache is given a positive cleanupInterval.
type MemCache struct {
	items sync.Map
	stop  chan struct{}
	wg    sync.WaitGroup
}

type item struct {
	mu         sync.Mutex
	value      any
	expiration int64 // unix nano; 0 means no expiration
}

func NewMemCache(cleanupInterval time.Duration) *MemCache {
	m := &MemCache{
		stop: make(chan struct{}),
	}
	if cleanupInterval > 0 {
		m.wg.Add(1)
		go func() {
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()
			defer m.wg.Done()
			for {
				select {
				case <-ticker.C:
					m.cleanup()
				case <-m.stop:
					return
				}
			}
		}()
	}
	return m
}

func (m *MemCache) Set(key string, value any, ttl time.Duration) {
	m.items.Store(key, &item{
		value:      value,
		expiration: expiresAt(ttl),
	})
}

func (m *MemCache) Get(key string) (any, bool) {
	v, ok := m.items.Load(key)
	if !ok {
		return nil, false
	}
	it := v.(*item)
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.isExpired() {
		m.items.CompareAndDelete(key, it)
		return nil, false
	}
	return it.value, true
}

func (m *MemCache) Delete(key string) {
	m.items.Delete(key)
}

func (m *MemCache) Close() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	m.wg.Wait()
	m.stop = nil
}

// Increment adds delta to the counter at key and returns the new value.
// A missing or expired counter starts from zero and lives for ttl; the ttl
// of a live counter is not extended.
func (m *MemCache) Increment(key string, delta int64, ttl time.Duration) (int64, error) {
	actual, _ := m.items.LoadOrStore(key, &item{
		value:      int64(0),
		expiration: expiresAt(ttl),
	})
	it := actual.(*item)

	it.mu.Lock()
	defer it.mu.Unlock()

	if it.isExpired() {
		it.value = int64(0)
		it.expiration = expiresAt(ttl)
	}

	v, ok := it.value.(int64)
	if !ok {
		return 0, ErrNotInteger
	}
	v += delta
	it.value = v
	return v, nil
}

func expiresAt(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return time.Now().Add(ttl).UnixNano()
}

func (it *item) isExpired() bool {
	if it == nil || it.expiration == 0 {
		return false
	}
	return time.Now().UnixNano() > it.expiration
}

func (m *MemCache) cleanup() {
	m.items.Range(func(k, v any) bool {
		it := v.(*item)
		it.mu.Lock()
		expired := it.isExpired()
		it.mu.Unlock()
		if expired {
			m.items.CompareAndDelete(k, it)
		}
		return true
	})
}
