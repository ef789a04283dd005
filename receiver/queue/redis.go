package queue

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xfyecn/sitewhere-master-sub001/decoder"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
)

// RedisConfig selects the list to drain.
type RedisConfig struct {
	Addr     string        `json:"addr" yaml:"addr"`
	Password string        `json:"password" yaml:"password"`
	DB       int           `json:"db" yaml:"db"`
	List     string        `json:"list" yaml:"list"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"` // BLPOP wait per call
}

// RedisSource pops payloads from the head of a Redis list with BLPOP.
type RedisSource struct {
	cfg RedisConfig

	mu     sync.Mutex
	client *redis.Client
}

var _ Source[[]byte] = (*RedisSource)(nil)

// NewRedisSource creates a Redis list source.
func NewRedisSource(cfg RedisConfig) *RedisSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	return &RedisSource{cfg: cfg}
}

func (s *RedisSource) Open(ctx context.Context) error {
	if s.cfg.Addr == "" || s.cfg.List == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "redis-source", "Open", "config validation")
	}
	client := redis.NewClient(&redis.Options{
		Addr:        s.cfg.Addr,
		Password:    s.cfg.Password,
		DB:          s.cfg.DB,
		DialTimeout: 5 * time.Second,
		// must outlast the BLPOP wait
		ReadTimeout: s.cfg.Timeout + 2*time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return errors.WrapTransient(err, "redis-source", "Open", "ping")
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	return nil
}

// Take waits for the next list entry, polling in Timeout steps so shutdown is
// noticed.
func (s *RedisSource) Take(ctx context.Context) (Item[[]byte], error) {
	for {
		s.mu.Lock()
		client := s.client
		s.mu.Unlock()
		if client == nil {
			return Item[[]byte]{}, ErrClosed
		}

		res, err := client.BLPop(ctx, s.cfg.Timeout, s.cfg.List).Result()
		switch {
		case err == nil:
			// BLPOP returns the key followed by the value
			return Item[[]byte]{
				Payload:  []byte(res[1]),
				Metadata: map[string]any{decoder.MetaTopic: res[0]},
			}, nil
		case stderrors.Is(err, redis.Nil):
			continue
		case stderrors.Is(err, redis.ErrClosed):
			return Item[[]byte]{}, ErrClosed
		default:
			return Item[[]byte]{}, err
		}
	}
}

func (s *RedisSource) Close() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}
