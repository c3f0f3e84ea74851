package vault

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRetryStoreContract(t *testing.T) {
	storageContract(t, NewRetryStore(NewMemoryStore(), fastRetry()))
}

func TestRetryStoreRecoversFromTransientFailures(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{inner: NewMemoryStore(), failures: 2}
	store := NewRetryStore(flaky, RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond})

	if err := store.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set failed despite retries: %v", err)
	}
	if flaky.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", flaky.calls)
	}
	got, err := store.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Errorf("Get after recovery: %q, %v", got, err)
	}
}

func TestRetryStoreDoesNotRetryNotFound(t *testing.T) {
	flaky := &flakyStore{inner: NewMemoryStore()}
	store := NewRetryStore(flaky, fastRetry())

	if _, err := store.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if flaky.calls != 1 {
		t.Errorf("absent key was retried: %d calls", flaky.calls)
	}
}

func TestRetryStoreExhaustsAttempts(t *testing.T) {
	flaky := &flakyStore{inner: NewMemoryStore(), failures: 100}
	store := NewRetryStore(flaky, fastRetry())

	err := store.Set(context.Background(), "k", "v")
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if se.Op != "set" || se.Attempts != 2 {
		t.Errorf("StorageError op/attempts = %q/%d", se.Op, se.Attempts)
	}
	if flaky.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", flaky.calls)
	}
}

func TestRetryStoreHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	flaky := &flakyStore{inner: NewMemoryStore(), failures: 100}
	store := NewRetryStore(flaky, RetryConfig{MaxAttempts: 5, InitialWait: time.Minute})

	err := store.Set(ctx, "k", "v")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if flaky.calls != 1 {
		t.Errorf("cancelled call kept retrying: %d calls", flaky.calls)
	}
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond}
}

// flakyStore fails the next `failures` calls, then delegates to inner. Safe
// for the manager's concurrent field writes.
type flakyStore struct {
	inner Storage

	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, error) {
	if err := s.tick(); err != nil {
		return "", err
	}
	return s.inner.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	if err := s.tick(); err != nil {
		return err
	}
	return s.inner.Set(ctx, key, value)
}

func (s *flakyStore) Delete(ctx context.Context, key string) error {
	if err := s.tick(); err != nil {
		return err
	}
	return s.inner.Delete(ctx, key)
}

func (s *flakyStore) tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("backend hiccup")
	}
	return nil
}
