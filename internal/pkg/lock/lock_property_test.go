package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestWithLockSerializesPerKey checks that concurrent read-modify-write under
// WithLock yields the sequential result.
func TestWithLockSerializesPerKey(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numOps := rapid.IntRange(2, 30).Draw(t, "numOps")
		key := rapid.StringMatching(`draw-[a-f0-9]{8}`).Draw(t, "key")

		kl := NewKeyLock()
		counter := 0

		var wg sync.WaitGroup
		wg.Add(numOps)
		for i := 0; i < numOps; i++ {
			go func() {
				defer wg.Done()
				_ = kl.WithLock(key, func() error {
					counter++
					return nil
				})
			}()
		}
		wg.Wait()

		if counter != numOps {
			t.Fatalf("expected %d, got %d", numOps, counter)
		}
	})
}

// TestIndependentKeys checks that different keys never block each other.
func TestIndependentKeys(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numKeys := rapid.IntRange(2, 10).Draw(t, "numKeys")
		opsPerKey := rapid.IntRange(1, 20).Draw(t, "opsPerKey")

		kl := NewKeyLock()
		counts := make([]int, numKeys)

		var wg sync.WaitGroup
		wg.Add(numKeys * opsPerKey)
		for k := 0; k < numKeys; k++ {
			key := string(rune('a' + k))
			for j := 0; j < opsPerKey; j++ {
				go func(idx int, key string) {
					defer wg.Done()
					kl.Lock(key)
					defer kl.Unlock(key)
					counts[idx]++
				}(k, key)
			}
		}
		wg.Wait()

		for k, c := range counts {
			if c != opsPerKey {
				t.Fatalf("key %d: expected %d, got %d", k, opsPerKey, c)
			}
		}
	})
}

// TestTryLockAdmitsOneHolder checks that the lock is free again after contention.
func TestTryLockAdmitsOneHolder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		attempts := rapid.IntRange(2, 20).Draw(t, "attempts")
		kl := NewKeyLock()

		var holders atomic.Int32
		var maxHolders atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(attempts)
		for i := 0; i < attempts; i++ {
			go func() {
				defer wg.Done()
				<-start
				if kl.TryLock("d") {
					n := holders.Add(1)
					if n > maxHolders.Load() {
						maxHolders.Store(n)
					}
					holders.Add(-1)
					kl.Unlock("d")
				}
			}()
		}
		close(start)
		wg.Wait()

		if maxHolders.Load() > 1 {
			t.Fatalf("lock held by %d goroutines at once", maxHolders.Load())
		}
		if !kl.TryLock("d") {
			t.Fatal("lock should be free after all holders released")
		}
		kl.Unlock("d")
	})
}

func TestWithLockContextTimesOut(t *testing.T) {
	kl := NewKeyLock()
	kl.Lock("busy")
	defer kl.Unlock("busy")

	err := kl.WithLockContext(context.Background(), "busy", 20*time.Millisecond, func() error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if !kl.IsLocked("busy") {
		t.Fatal("original holder should still hold the lock")
	}
}
