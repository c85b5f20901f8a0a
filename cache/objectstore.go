package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/handover/internal/kvutil"
	"github.com/arloliu/handover/internal/natsutil"
	"github.com/arloliu/handover/types"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/zeebo/xxh3"
)

// bucketPrefix starts the name of every Object Store bucket owned by the cache.
const bucketPrefix = "handover-cache-"

const (
	metaStatus   = "status"
	metaStoredAt = "stored-at"
	metaDigest   = "digest"
)

// ObjectStore is a Backend on NATS JetStream Object Stores.
//
// Each partition is one bucket. Partition names contain characters NATS does
// not accept in bucket names, so the bucket is named after the xxh3 hash of
// the partition name and the name itself is kept in the bucket description.
type ObjectStore struct {
	js      jetstream.JetStream
	storage jetstream.StorageType
}

var _ Backend = (*ObjectStore)(nil)

// ObjectStoreOption configures an ObjectStore.
type ObjectStoreOption func(*ObjectStore)

// WithMemoryStorage keeps partition buckets in server memory instead of on disk.
func WithMemoryStorage() ObjectStoreOption {
	return func(o *ObjectStore) {
		o.storage = jetstream.MemoryStorage
	}
}

// NewObjectStore creates a backend on js.
func NewObjectStore(js jetstream.JetStream, opts ...ObjectStoreOption) *ObjectStore {
	o := &ObjectStore{js: js, storage: jetstream.FileStorage}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// BucketName returns the bucket backing the named partition.
func BucketName(partition string) string {
	return fmt.Sprintf("%s%016x", bucketPrefix, xxh3.HashString(partition))
}

// Open implements Backend.
func (o *ObjectStore) Open(ctx context.Context, name string) (Partition, error) {
	obs, err := kvutil.EnsureObjectStoreWithRetry(ctx, o.js, jetstream.ObjectStoreConfig{
		Bucket:      BucketName(name),
		Description: name,
		Storage:     o.storage,
	}, 3)
	if err != nil {
		return nil, natsutil.Classify("open object store", err, err)
	}

	return &objectPartition{name: name, obs: obs}, nil
}

// Names implements Backend.
func (o *ObjectStore) Names(ctx context.Context) ([]string, error) {
	lister := o.js.ObjectStores(ctx)

	var names []string
	for status := range lister.Status() {
		if !strings.HasPrefix(status.Bucket(), bucketPrefix) || status.Description() == "" {
			continue
		}
		names = append(names, status.Description())
	}
	if err := lister.Error(); err != nil {
		return nil, natsutil.Classify("list object stores", err, err)
	}

	return names, nil
}

// Drop implements Backend.
func (o *ObjectStore) Drop(ctx context.Context, name string) error {
	err := o.js.DeleteObjectStore(ctx, BucketName(name))
	if err == nil || natsutil.IsNotFound(err) {
		return nil
	}

	return natsutil.Classify("delete object store", err, err)
}

type objectPartition struct {
	name string
	obs  jetstream.ObjectStore
}

func (p *objectPartition) Name() string {
	return p.name
}

func (p *objectPartition) Match(ctx context.Context, req *http.Request) (*Response, error) {
	if req.Method != http.MethodGet && req.Method != "" {
		return nil, types.ErrEntryNotFound
	}

	return p.MatchURL(ctx, req.URL.String())
}

func (p *objectPartition) MatchURL(ctx context.Context, url string) (*Response, error) {
	res, err := p.obs.Get(ctx, url)
	if err != nil {
		return nil, natsutil.Classify("object get", err, types.ErrEntryNotFound)
	}
	defer res.Close()

	info, err := res.Info()
	if err != nil {
		return nil, natsutil.Classify("object info", err, types.ErrEntryNotFound)
	}

	body, err := io.ReadAll(res)
	if err != nil {
		return nil, fmt.Errorf("object read %s: %w", url, err)
	}

	resp := &Response{
		URL:        url,
		StatusCode: http.StatusOK,
		Header:     http.Header(info.Headers),
		Body:       body,
		Digest:     xxh3.Hash(body),
		StoredAt:   info.ModTime,
	}
	if v, ok := info.Metadata[metaStatus]; ok {
		if status, err := strconv.Atoi(v); err == nil {
			resp.StatusCode = status
		}
	}
	if v, ok := info.Metadata[metaStoredAt]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			resp.StoredAt = time.UnixMilli(ms)
		}
	}
	if v, ok := info.Metadata[metaDigest]; ok {
		if digest, err := strconv.ParseUint(v, 16, 64); err == nil {
			resp.Digest = digest
		}
	}

	return resp, nil
}

func (p *objectPartition) Put(ctx context.Context, url string, resp *Response) error {
	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	meta := jetstream.ObjectMeta{
		Name:    url,
		Headers: nats.Header(resp.Header.Clone()),
		Metadata: map[string]string{
			metaStatus:   strconv.Itoa(resp.StatusCode),
			metaStoredAt: strconv.FormatInt(storedAt.UnixMilli(), 10),
			metaDigest:   resp.DigestHex(),
		},
	}

	if _, err := p.obs.Put(ctx, meta, bytes.NewReader(resp.Body)); err != nil {
		return natsutil.Classify("object put", err, err)
	}

	return nil
}
