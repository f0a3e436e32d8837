package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"skoropad/internal/config"
	"skoropad/internal/models"
	"skoropad/internal/utils"
)

// RedisRelay 通过 Redis pub/sub 在多个实例之间转发新消息
//
// Publish 只写入 Redis；包括本实例在内的所有订阅实例收到后再交给本地 Broker 分发。
type RedisRelay struct {
	client  *redis.Client
	channel string
	broker  *Broker
	logger  utils.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConnectRedis 连接 Redis 并检查可用性
func ConnectRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	utils.GetLogger().Info("Redis连接成功", "addr", cfg.Addr, "db", cfg.DB)
	return rdb, nil
}

// NewRedisRelay 创建转发器，调用 Start 后开始接收
func NewRedisRelay(client *redis.Client, channel string, broker *Broker) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		broker:  broker,
		logger:  utils.GetLogger(),
	}
}

// Publish 把消息写入 Redis 频道
func (r *RedisRelay) Publish(ctx context.Context, msg models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Start 订阅频道并在后台转发，订阅确认后返回
func (r *RedisRelay) Start(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go r.run(runCtx, pubsub)

	r.logger.Info("实时消息转发已启动", "channel", r.channel)
	return nil
}

func (r *RedisRelay) run(ctx context.Context, pubsub *redis.PubSub) {
	defer r.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var msg models.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.logger.Warn("无法解析实时消息", "channel", m.Channel, "error", err.Error())
				continue
			}
			r.broker.Dispatch(msg)
		}
	}
}

// Close 停止转发
func (r *RedisRelay) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}
