// Package minio implements storage.Store on a MinIO or other S3 compatible
// bucket.
package minio

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/pkg/retry"
	"github.com/xfyecn/sitewhere-master-sub001/storage"
)

// Config configures the endpoint and bucket.
type Config struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	AccessKey string `json:"access_key" yaml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	UseTLS    bool   `json:"use_tls" yaml:"use_tls"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	Region    string `json:"region" yaml:"region"`
}

// objects is the bucket API the store needs. minioObjects adapts
// *minio.Client to it.
type objects interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Remove(ctx context.Context, key string) error
}

// Store is a storage.Store backed by one bucket.
type Store struct {
	*component.Lifecycle

	cfg     Config
	metrics *storage.Metrics
	dial    func(cfg Config) (objects, error)

	mu      sync.RWMutex
	objects objects
}

var _ storage.Store = (*Store)(nil)

// New creates a MinIO store. The client is created and the bucket ensured on
// start.
func New(deps component.Dependencies, cfg Config) *Store {
	s := &Store{cfg: cfg, dial: dial}
	s.Lifecycle = component.NewLifecycle(s, component.TypeDataStore, "minio-"+cfg.Bucket, deps.LifecycleOptions()...)
	m, err := storage.NewMetrics(deps.MetricsRegistry, "minio", cfg.Bucket)
	if err != nil {
		s.Logger().Warn("Storage metrics disabled", "bucket", cfg.Bucket, "error", err)
	}
	s.metrics = m
	return s
}

func (s *Store) Start(ctx context.Context, _ component.Monitor) error {
	if s.cfg.Endpoint == "" || s.cfg.Bucket == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, s.Name(), "Start", "endpoint and bucket")
	}
	obj, err := s.dial(s.cfg)
	if err != nil {
		return errors.WrapInvalid(err, s.Name(), "Start", "create client")
	}
	err = retry.Do(ctx, retry.Connect(), func(ctx context.Context) error {
		return obj.EnsureBucket(ctx)
	})
	if err != nil {
		return errors.WrapTransient(err, s.Name(), "Start", "ensure bucket "+s.cfg.Bucket)
	}

	s.mu.Lock()
	s.objects = obj
	s.mu.Unlock()
	s.Logger().Info("MinIO store ready", "endpoint", s.cfg.Endpoint, "bucket", s.cfg.Bucket)
	return nil
}

func (s *Store) Stop(context.Context, component.Monitor) error {
	s.mu.Lock()
	s.objects = nil
	s.mu.Unlock()
	return nil
}

func (s *Store) current() (objects, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.objects == nil {
		return nil, errors.WrapTransient(errors.ErrNotStarted, s.Name(), "objects", "check started")
	}
	return s.objects, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) (err error) {
	defer func(start time.Time) { s.metrics.Observe("put", start, err) }(time.Now())
	obj, err := s.current()
	if err != nil {
		return err
	}
	if err = obj.Put(ctx, key, data); err != nil {
		return errors.WrapTransient(err, s.Name(), "Put", "put "+key)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (data []byte, err error) {
	defer func(start time.Time) { s.metrics.Observe("get", start, err) }(time.Now())
	obj, err := s.current()
	if err != nil {
		return nil, err
	}
	data, err = obj.Get(ctx, key)
	if stderrors.Is(err, storage.ErrKeyNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, errors.WrapTransient(err, s.Name(), "Get", "get "+key)
	}
	return data, nil
}

func (s *Store) List(ctx context.Context, prefix string) (keys []string, err error) {
	defer func(start time.Time) { s.metrics.Observe("list", start, err) }(time.Now())
	obj, err := s.current()
	if err != nil {
		return nil, err
	}
	keys, err = obj.List(ctx, prefix)
	if err != nil {
		return nil, errors.WrapTransient(err, s.Name(), "List", "list "+prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { s.metrics.Observe("delete", start, err) }(time.Now())
	obj, err := s.current()
	if err != nil {
		return err
	}
	if err = obj.Remove(ctx, key); err != nil {
		return errors.WrapTransient(err, s.Name(), "Delete", "delete "+key)
	}
	return nil
}

type minioObjects struct {
	mc     *minio.Client
	bucket string
	region string
}

func dial(cfg Config) (objects, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseTLS,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &minioObjects{mc: mc, bucket: cfg.Bucket, region: cfg.Region}, nil
}

func (m *minioObjects) EnsureBucket(ctx context.Context) error {
	exists, err := m.mc.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return m.mc.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region})
	}
	return nil
}

func (m *minioObjects) Put(ctx context.Context, key string, data []byte) error {
	_, err := m.mc.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (m *minioObjects) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.mc.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, notFound(err)
	}
	return data, nil
}

func notFound(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return storage.ErrKeyNotFound
	}
	return err
}

func (m *minioObjects) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for info := range m.mc.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, info.Err
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}

func (m *minioObjects) Remove(ctx context.Context, key string) error {
	return m.mc.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}
