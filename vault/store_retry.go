// ABOUTME: Retrying decorator for Storage backends with transient failures.
// ABOUTME: Exponential backoff between attempts; absent keys pass through untouched.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig controls how RetryStore retries failed backend calls. The zero
// value selects the defaults noted per field.
type RetryConfig struct {
	MaxAttempts int           // attempts per call, default 3
	InitialWait time.Duration // wait before the first retry, default 100ms
	MaxWait     time.Duration // cap on the wait between retries, default 2s
	Multiplier  float64       // backoff multiplier, default 2.0
}

func (c RetryConfig) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return 3
	}
	return c.MaxAttempts
}

func (c RetryConfig) initialWait() time.Duration {
	if c.InitialWait <= 0 {
		return 100 * time.Millisecond
	}
	return c.InitialWait
}

func (c RetryConfig) maxWait() time.Duration {
	if c.MaxWait <= 0 {
		return 2 * time.Second
	}
	return c.MaxWait
}

func (c RetryConfig) multiplier() float64 {
	if c.Multiplier <= 1 {
		return 2.0
	}
	return c.Multiplier
}

// StorageError reports a backend call that kept failing after retries.
type StorageError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RetryStore wraps a Storage and retries calls that fail with backend errors.
// Platform keychains in particular fail transiently when the keychain daemon
// is busy or momentarily locked. ErrNotFound is a result, not a failure, and
// is never retried; context cancellation also ends retrying immediately.
type RetryStore struct {
	inner Storage
	cfg   RetryConfig
}

// NewRetryStore wraps inner with retry behavior.
func NewRetryStore(inner Storage, cfg RetryConfig) *RetryStore {
	return &RetryStore{inner: inner, cfg: cfg}
}

// Get implements Storage.
func (s *RetryStore) Get(ctx context.Context, key string) (string, error) {
	return withRetry(ctx, s.cfg, "get", func() (string, error) {
		return s.inner.Get(ctx, key)
	})
}

// Set implements Storage.
func (s *RetryStore) Set(ctx context.Context, key, value string) error {
	_, err := withRetry(ctx, s.cfg, "set", func() (struct{}, error) {
		return struct{}{}, s.inner.Set(ctx, key, value)
	})
	return err
}

// Delete implements Storage.
func (s *RetryStore) Delete(ctx context.Context, key string) error {
	_, err := withRetry(ctx, s.cfg, "delete", func() (struct{}, error) {
		return struct{}{}, s.inner.Delete(ctx, key)
	})
	return err
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func withRetry[T any](ctx context.Context, cfg RetryConfig, op string, fn func() (T, error)) (T, error) {
	var zero T
	wait := cfg.initialWait()
	attempts := cfg.maxAttempts()

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var result T
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
		wait = time.Duration(float64(wait) * cfg.multiplier())
		if limit := cfg.maxWait(); wait > limit {
			wait = limit
		}
	}
	return zero, &StorageError{Op: op, Attempts: attempts, Err: err}
}
