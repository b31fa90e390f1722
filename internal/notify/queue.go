package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueFull 本地队列已满
var ErrQueueFull = errors.New("notification queue full")

// Job 待推送消息
type Job struct {
	ID      string    `json:"id"`
	UserID  int64     `json:"user_id"`
	Message string    `json:"message"`
	Created time.Time `json:"created"`
}

// Queue 推送队列；Pop 在无消息时返回 (nil, nil)
type Queue interface {
	Push(ctx context.Context, job Job) error
	Pop(ctx context.Context) (*Job, error)
}

// ChannelQueue 进程内有界队列（未启用 Redis 时使用）
type ChannelQueue struct {
	ch   chan Job
	wait time.Duration
}

func NewChannelQueue(size int) *ChannelQueue {
	if size <= 0 {
		size = 1024
	}
	return &ChannelQueue{ch: make(chan Job, size), wait: time.Second}
}

// Push 满时立即失败，不阻塞调用方
func (q *ChannelQueue) Push(_ context.Context, job Job) error {
	select {
	case q.ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *ChannelQueue) Pop(ctx context.Context) (*Job, error) {
	t := time.NewTimer(q.wait)
	defer t.Stop()
	select {
	case job := <-q.ch:
		return &job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return nil, nil
	}
}

const redisQueueKey = "wallbox:notify:queue"

// listClient RedisQueue 用到的命令子集
type listClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// RedisQueue Redis List 队列：RPUSH 入队，BLPOP 出队，多实例共享
type RedisQueue struct {
	client listClient
	key    string
	wait   time.Duration
}

func NewRedisQueue(client listClient) *RedisQueue {
	return &RedisQueue{client: client, key: redisQueueKey, wait: 5 * time.Second}
}

// WithKey 使用与连接配置一致的队列键
func (q *RedisQueue) WithKey(key string) *RedisQueue {
	if key != "" {
		q.key = key
	}
	return q
}

func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (*Job, error) {
	res, err := q.client.BLPop(ctx, q.wait, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis blpop: %w", err)
	}
	// res[0] 为 key，res[1] 为值
	if len(res) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}
