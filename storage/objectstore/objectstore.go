package objectstore

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/natsclient"
	"github.com/xfyecn/sitewhere-master-sub001/pkg/cache"
	"github.com/xfyecn/sitewhere-master-sub001/storage"
)

// bucket is the part of jetstream.ObjectStore the store uses.
type bucket interface {
	PutBytes(ctx context.Context, name string, data []byte) (*jetstream.ObjectInfo, error)
	GetBytes(ctx context.Context, name string, opts ...jetstream.GetObjectOpt) ([]byte, error)
	List(ctx context.Context, opts ...jetstream.ListObjectsOpt) ([]*jetstream.ObjectInfo, error)
	Delete(ctx context.Context, name string) error
}

// Store is a storage.Store backed by a JetStream ObjectStore bucket.
type Store struct {
	*component.Lifecycle

	cfg     Config
	client  *natsclient.Client
	metrics *storage.Metrics
	cache   *cache.LRU[[]byte]

	// open returns the bucket; replaced in tests
	open func(ctx context.Context) (bucket, error)

	mu     sync.RWMutex
	bucket bucket
}

var _ storage.Store = (*Store)(nil)

// New creates a store on deps.NATSClient.
func New(deps component.Dependencies, cfg Config) *Store {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultConfig().Bucket
	}
	s := &Store{cfg: cfg, client: deps.NATSClient}
	s.open = s.openBucket
	s.Lifecycle = component.NewLifecycle(s, component.TypeDataStore, "objectstore-"+strings.ToLower(cfg.Bucket), deps.LifecycleOptions()...)

	m, err := storage.NewMetrics(deps.MetricsRegistry, "objectstore", cfg.Bucket)
	if err != nil {
		s.Logger().Warn("Storage metrics disabled", "bucket", cfg.Bucket, "error", err)
	}
	s.metrics = m

	if cfg.CacheSize > 0 {
		c, err := cache.NewLRU[[]byte](cfg.CacheSize, cache.WithTTL[[]byte](cfg.CacheTTL))
		if err != nil {
			s.Logger().Warn("Object cache disabled", "error", err)
		}
		s.cache = c
	}
	return s
}

func (s *Store) openBucket(ctx context.Context) (bucket, error) {
	if s.client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, s.Name(), "Start", "NATS client")
	}
	if err := s.client.Connect(ctx); err != nil {
		return nil, err
	}
	js, err := s.client.JetStream()
	if err != nil {
		return nil, err
	}
	obj, err := js.ObjectStore(ctx, s.cfg.Bucket)
	if stderrors.Is(err, jetstream.ErrBucketNotFound) {
		obj, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      s.cfg.Bucket,
			Description: "device stream chunks",
		})
	}
	if err != nil {
		return nil, errors.WrapTransient(err, s.Name(), "Start", "open bucket "+s.cfg.Bucket)
	}
	return obj, nil
}

func (s *Store) Start(ctx context.Context, _ component.Monitor) error {
	b, err := s.open(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.bucket = b
	s.mu.Unlock()
	s.Logger().Info("Object store ready", "bucket", s.cfg.Bucket)
	return nil
}

func (s *Store) Stop(context.Context, component.Monitor) error {
	s.mu.Lock()
	s.bucket = nil
	s.mu.Unlock()
	if s.cache != nil {
		s.cache.Clear()
	}
	return nil
}

func (s *Store) current() (bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bucket == nil {
		return nil, errors.WrapTransient(errors.ErrNotStarted, s.Name(), "bucket", "check started")
	}
	return s.bucket, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) (err error) {
	defer func(start time.Time) { s.metrics.Observe("put", start, err) }(time.Now())
	b, err := s.current()
	if err != nil {
		return err
	}
	if _, err = b.PutBytes(ctx, key, data); err != nil {
		return errors.WrapTransient(err, s.Name(), "Put", "put "+key)
	}
	if s.cache != nil {
		s.cache.Delete(key)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (data []byte, err error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			s.metrics.CacheHit()
			return cached, nil
		}
		s.metrics.CacheMiss()
	}

	defer func(start time.Time) { s.metrics.Observe("get", start, err) }(time.Now())
	b, err := s.current()
	if err != nil {
		return nil, err
	}
	data, err = b.GetBytes(ctx, key)
	if stderrors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, storage.ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.WrapTransient(err, s.Name(), "Get", "get "+key)
	}
	if s.cache != nil {
		if _, cerr := s.cache.Set(key, data); cerr != nil {
			s.Logger().Debug("Cache set failed", "key", key, "error", cerr)
		}
	}
	return data, nil
}

func (s *Store) List(ctx context.Context, prefix string) (keys []string, err error) {
	defer func(start time.Time) { s.metrics.Observe("list", start, err) }(time.Now())
	b, err := s.current()
	if err != nil {
		return nil, err
	}
	infos, err := b.List(ctx)
	if stderrors.Is(err, jetstream.ErrNoObjectsFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.WrapTransient(err, s.Name(), "List", "list "+prefix)
	}
	keys = make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Deleted || !strings.HasPrefix(info.Name, prefix) {
			continue
		}
		keys = append(keys, info.Name)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { s.metrics.Observe("delete", start, err) }(time.Now())
	b, err := s.current()
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Delete(key)
	}
	err = b.Delete(ctx, key)
	if err != nil && !stderrors.Is(err, jetstream.ErrObjectNotFound) {
		return errors.WrapTransient(err, s.Name(), "Delete", "delete "+key)
	}
	return nil
}
