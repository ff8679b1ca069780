package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lk2023060901/scenekeep-go/pkg/log"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
	"github.com/lk2023060901/scenekeep-go/pkg/util/retry"
)

// RedisConfig 为 RedisStore 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// Prefix 会拼接在每个 key 之前。
	Prefix string `mapstructure:"prefix"`
	// TTL 为记录的过期时间，0 表示不过期。
	TTL time.Duration `mapstructure:"ttl"`
	// ConnectTimeout 为建立连接时探测的总时长。
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`
	// Attempts 为单次操作的最大尝试次数。
	Attempts uint `mapstructure:"attempts"`
}

// DefaultRedisConfig 返回默认配置。
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:           "localhost:6379",
		Prefix:         "scenekeep:",
		ConnectTimeout: 5 * time.Second,
		Attempts:       3,
	}
}

// RedisStore 基于 go-redis 保存记录。
type RedisStore struct {
	client *redis.Client
	cfg    RedisConfig
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore 创建客户端并以指数退避探测连通性，超过 ConnectTimeout 仍不可用时返回错误。
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = cfg.ConnectTimeout
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = DefaultRedisConfig().ConnectTimeout
	}

	logger := log.Ctx(ctx).With(zap.String("addr", cfg.Addr))
	ping := func() error {
		err := client.Ping(ctx).Err()
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("redis not ready, retrying", zap.Error(err), zap.Duration("next", next))
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(bo, ctx), notify); err != nil {
		_ = client.Close()
		return nil, merr.WrapErrIoFailed(cfg.Addr, err)
	}
	logger.Info("redis store connected", zap.Int("db", cfg.DB))
	return NewRedisStoreWithClient(client, cfg), nil
}

// NewRedisStoreWithClient 使用已有客户端创建 RedisStore，不做连通性探测。
func NewRedisStoreWithClient(client *redis.Client, cfg RedisConfig) *RedisStore {
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultRedisConfig().Attempts
	}
	return &RedisStore{client: client, cfg: cfg}
}

func (s *RedisStore) key(key string) string {
	return s.cfg.Prefix + key
}

func (s *RedisStore) do(ctx context.Context, key string, fn func() error) error {
	return retry.Do(ctx, func() error {
		return merr.WrapErrIoFailed(key, fn())
	}, retry.Attempts(s.cfg.Attempts), retry.Sleep(20*time.Millisecond), retry.MaxSleepTime(200*time.Millisecond),
		retry.RetryErr(merr.IsRetryableErr))
}

func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.do(ctx, key, func() error {
		return s.client.Set(ctx, s.key(key), data, s.cfg.TTL).Err()
	})
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	var (
		data  []byte
		found bool
	)
	err := s.do(ctx, key, func() error {
		v, err := s.client.Get(ctx, s.key(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		data, found = v, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, found, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.do(ctx, key, func() error {
		return s.client.Del(ctx, s.key(key)).Err()
	})
}

// Close 关闭底层客户端。
func (s *RedisStore) Close() error {
	return s.client.Close()
}
