package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/taoyao-code/wallbox-server/internal/config"
)

const defaultKeyPrefix = "wallbox"

// Client 推送队列与回调去重共用的连接池，所有键都挂在同一前缀下
type Client struct {
	*redis.Client
	prefix string
}

// NewClient workers 为推送 worker 数；instanceID 用作 CLIENT SETNAME 便于排查
func NewClient(cfg cfgpkg.RedisConfig, workers int, instanceID string) (*Client, error) {
	if !cfg.Enabled {
		return nil, errors.New("redis is not enabled")
	}
	prefix := keyPrefix(cfg.KeyPrefix)

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   prefix + "-" + instanceID,
		PoolSize:     poolSize(cfg.PoolSize, cfg.MinIdleConns, workers),
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Client{Client: rdb, prefix: prefix}, nil
}

func keyPrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), ":")
	if p == "" {
		return defaultKeyPrefix
	}
	return p
}

// poolSize 每个推送 worker 的 BLPOP 会独占一条连接，回调去重至少还要留出 minIdle+1 条
func poolSize(configured, minIdle, workers int) int {
	need := workers + minIdle + 1
	if configured < need {
		return need
	}
	return configured
}

// Key 拼出带前缀的键
func (c *Client) Key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

// DedupPrefix 回调去重键空间
func (c *Client) DedupPrefix() string { return c.Key("dedup") }

// NotifyQueueKey 推送队列
func (c *Client) NotifyQueueKey() string { return c.Key("notify", "queue") }

// QueueDepth 推送队列积压条数
func (c *Client) QueueDepth(ctx context.Context) (int64, error) {
	return c.LLen(ctx, c.NotifyQueueKey()).Result()
}

func (c *Client) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Stats 连接池统计
func (c *Client) Stats() *redis.PoolStats {
	return c.PoolStats()
}
