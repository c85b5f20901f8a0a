package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/arloliu/handover/internal/kvutil"
	"github.com/arloliu/handover/internal/natsutil"
	"github.com/arloliu/handover/types"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket is the KV bucket used by OpenNATS when none is given.
const DefaultBucket = "handover-readiness"

// NATS is a Backend on a JetStream KeyValue bucket.
//
// Logical keys contain ':' and '/', which NATS does not allow in KV keys, so
// they are stored base64url-encoded and decoded again by Keys.
type NATS struct {
	kv jetstream.KeyValue
}

var _ Backend = (*NATS)(nil)

// NewNATS wraps an existing bucket.
func NewNATS(kv jetstream.KeyValue) *NATS {
	return &NATS{kv: kv}
}

// OpenNATS creates or opens bucket and wraps it.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - js: JetStream context
//   - bucket: Bucket name (DefaultBucket if empty)
//
// Returns:
//   - *NATS: The backend
//   - error: Bucket creation failure after retries
func OpenNATS(ctx context.Context, js jetstream.JetStream, bucket string) (*NATS, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}

	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "handover readiness records",
		History:     1,
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("open readiness bucket: %w", err)
	}

	return &NATS{kv: kv}, nil
}

func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeKey(encoded string) (string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}

	return string(raw), true
}

// Get implements Backend.
func (n *NATS) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := n.kv.Get(ctx, encodeKey(key))
	if err != nil {
		return nil, natsutil.Classify("kv get", err, types.ErrKeyNotFound)
	}

	return entry.Value(), nil
}

// Put implements Backend.
func (n *NATS) Put(ctx context.Context, key string, value []byte) error {
	_, err := n.kv.Put(ctx, encodeKey(key), value)

	return natsutil.Classify("kv put", err, nil)
}

// Delete implements Backend.
func (n *NATS) Delete(ctx context.Context, key string) error {
	err := n.kv.Delete(ctx, encodeKey(key))
	if natsutil.IsNotFound(err) {
		return nil
	}

	return natsutil.Classify("kv delete", err, nil)
}

// Keys implements Backend.
func (n *NATS) Keys(ctx context.Context, prefix string) ([]string, error) {
	lister, err := n.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}

		return nil, natsutil.Classify("kv list keys", err, nil)
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case encoded, ok := <-lister.Keys():
			if !ok {
				return keys, nil
			}

			key, valid := decodeKey(encoded)
			if valid && hasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
	}
}
