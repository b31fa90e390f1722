// Package dedup 回调去重：Redis SETNX 优先，未配置 Redis 时退化为进程内表
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix = "wallbox:dedup"

	// DefaultTTL 重放窗口
	DefaultTTL = 10 * time.Minute
)

// kvClient 用到的 Redis 命令
type kvClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Deduper 同一 key 在 TTL 内只放行一次
type Deduper struct {
	redis  kvClient
	logger *zap.Logger
	ttl    time.Duration
	prefix string
	now    func() time.Time

	mu    sync.Mutex
	local map[string]time.Time
}

// New client 为 nil 时使用进程内去重
func New(client kvClient, logger *zap.Logger, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		redis:  client,
		logger: logger,
		ttl:    ttl,
		prefix: keyPrefix,
		now:    time.Now,
		local:  make(map[string]time.Time),
	}
}

// NewRedis 便于直接传入 *redis.Client（可为 nil）
func NewRedis(client *redis.Client, logger *zap.Logger, ttl time.Duration) *Deduper {
	if client == nil {
		return New(nil, logger, ttl)
	}
	return New(client, logger, ttl)
}

// WithKeyPrefix 多套环境共用一个 Redis 时按前缀隔离
func (d *Deduper) WithKeyPrefix(prefix string) *Deduper {
	if prefix != "" {
		d.prefix = prefix
	}
	return d
}

// Claim 首次出现返回 true；Redis 故障时放行，由下游幂等兜底
func (d *Deduper) Claim(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("dedup key is empty")
	}
	if d.redis == nil {
		return d.claimLocal(key), nil
	}
	ok, err := d.redis.SetNX(ctx, d.buildKey(key), "1", d.ttl).Result()
	if err != nil {
		d.logger.Warn("dedup claim failed, letting through", zap.String("key", key), zap.Error(err))
		return true, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		d.logger.Debug("duplicate callback", zap.String("key", key))
	}
	return ok, nil
}

// Release 处理失败时释放，允许对端重试
func (d *Deduper) Release(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if d.redis == nil {
		d.mu.Lock()
		delete(d.local, key)
		d.mu.Unlock()
		return nil
	}
	return d.redis.Del(ctx, d.buildKey(key)).Err()
}

func (d *Deduper) claimLocal(key string) bool {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, exp := range d.local {
		if now.After(exp) {
			delete(d.local, k)
		}
	}
	if exp, ok := d.local[key]; ok && now.Before(exp) {
		return false
	}
	d.local[key] = now.Add(d.ttl)
	return true
}

func (d *Deduper) buildKey(key string) string {
	return fmt.Sprintf("%s:%s", d.prefix, key)
}
