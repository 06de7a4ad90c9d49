// Package lock provides per-key in-process locks.
// Draw operations hold the lock of their draw id so one process never
// interleaves two mutations of the same draw.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a key's lock is not acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for key lock")

type keyMutex struct {
	mu sync.Mutex
}

// KeyLock serializes work per string key.
type KeyLock struct {
	locks sync.Map // map[string]*keyMutex
	pool  sync.Pool
}

// NewKeyLock creates a new KeyLock.
func NewKeyLock() *KeyLock {
	return &KeyLock{
		pool: sync.Pool{
			New: func() any {
				return &keyMutex{}
			},
		},
	}
}

func (kl *KeyLock) getLock(key string) *keyMutex {
	if v, ok := kl.locks.Load(key); ok {
		return v.(*keyMutex)
	}

	newLock := kl.pool.Get().(*keyMutex)

	// another goroutine may have stored first
	actual, loaded := kl.locks.LoadOrStore(key, newLock)
	if loaded {
		kl.pool.Put(newLock)
	}
	return actual.(*keyMutex)
}

// Lock acquires the lock for key.
func (kl *KeyLock) Lock(key string) {
	kl.getLock(key).mu.Lock()
}

// Unlock releases the lock for key.
func (kl *KeyLock) Unlock(key string) {
	if v, ok := kl.locks.Load(key); ok {
		v.(*keyMutex).mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
func (kl *KeyLock) TryLock(key string) bool {
	return kl.getLock(key).mu.TryLock()
}

// LockWithTimeout waits up to timeout for the lock.
// It returns false if the wait timed out or ctx was cancelled.
func (kl *KeyLock) LockWithTimeout(ctx context.Context, key string, timeout time.Duration) bool {
	lock := kl.getLock(key)

	done := make(chan struct{})
	go func() {
		lock.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return true
	case <-timeoutCtx.Done():
		// the waiter still acquires eventually; hand the lock straight back
		go func() {
			<-done
			lock.mu.Unlock()
		}()
		return false
	}
}

// WithLock runs fn while holding the lock for key.
func (kl *KeyLock) WithLock(key string, fn func() error) error {
	kl.Lock(key)
	defer kl.Unlock(key)
	return fn()
}

// WithLockContext runs fn while holding the lock for key, giving up after timeout.
func (kl *KeyLock) WithLockContext(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	if !kl.LockWithTimeout(ctx, key, timeout) {
		return ErrLockTimeout
	}
	defer kl.Unlock(key)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// IsLocked reports whether key is currently held. Point-in-time only.
func (kl *KeyLock) IsLocked(key string) bool {
	if v, ok := kl.locks.Load(key); ok {
		lock := v.(*keyMutex)
		if lock.mu.TryLock() {
			lock.mu.Unlock()
			return false
		}
		return true
	}
	return false
}
