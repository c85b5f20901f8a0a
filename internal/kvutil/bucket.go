// Package kvutil provides utilities for working with NATS JetStream
// KeyValue and Object stores.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// EnsureKVBucketWithRetry creates or opens a KV bucket with retry logic.
//
// Several controllers sharing one NATS account may race to create the same
// readiness bucket. Creation is retried with exponential backoff; a bucket
// that already exists is opened instead.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: KV bucket configuration
//   - maxRetries: Maximum number of retry attempts (default: 3)
//
// Returns:
//   - jetstream.KeyValue: The KV bucket instance
//   - error: Any error that occurred after all retries
//
// Example:
//
//	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
//	    Bucket:  "handover-readiness",
//	    History: 1,
//	}, 3)
func EnsureKVBucketWithRetry(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.KeyValueConfig,
	maxRetries int,
) (jetstream.KeyValue, error) {
	return ensureWithRetry(ctx, config.Bucket, maxRetries,
		func() (jetstream.KeyValue, error) { return js.CreateKeyValue(ctx, config) },
		func() (jetstream.KeyValue, error) { return js.KeyValue(ctx, config.Bucket) },
	)
}

// EnsureObjectStoreWithRetry creates or opens an Object Store bucket with retry logic.
//
// Same semantics as EnsureKVBucketWithRetry.
func EnsureObjectStoreWithRetry(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.ObjectStoreConfig,
	maxRetries int,
) (jetstream.ObjectStore, error) {
	return ensureWithRetry(ctx, config.Bucket, maxRetries,
		func() (jetstream.ObjectStore, error) { return js.CreateObjectStore(ctx, config) },
		func() (jetstream.ObjectStore, error) { return js.ObjectStore(ctx, config.Bucket) },
	)
}

func ensureWithRetry[T any](
	ctx context.Context,
	bucket string,
	maxRetries int,
	create func() (T, error),
	open func() (T, error),
) (T, error) {
	var zero T
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		b, err := create()
		if err == nil {
			return b, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) || errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
			b, err := open()
			if err == nil {
				return b, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return zero, fmt.Errorf("context cancelled during bucket creation: %w", ctx.Err())
		}

		// Exponential backoff: 10ms, 20ms, 40ms...
		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond //nolint:gosec // attempt is bounded by maxRetries
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return zero, fmt.Errorf("failed to create/open bucket %s after %d attempts: %w",
		bucket, maxRetries, lastErr)
}
