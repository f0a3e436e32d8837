package bootstrap

import (
	"context"
	"fmt"

	"skoropad/internal/config"
	"skoropad/internal/handlers"
	"skoropad/internal/messaging"
	"skoropad/internal/realtime"
	"skoropad/internal/services"
	"skoropad/internal/utils"

	"github.com/redis/go-redis/v9"
)

// Container 应用容器（简单装配）
type Container struct {
	Config   *config.Config
	DB       *services.Database
	Storage  *services.StorageService // MinIO 不可用时为 nil，图片地址原样返回
	UserRepo *services.UserRepository
	MsgRepo  *services.MessageRepository
	Store    messaging.Store // 可能包了一层熔断
	Broker   *realtime.Broker
	Relay    *realtime.RedisRelay // 未启用 Redis 时为 nil
	Redis    *redis.Client
	Sessions *messaging.Manager

	MessageHandler   *handlers.MessageHandler
	WebSocketHandler *handlers.WebSocketHandler
	HealthHandler    *handlers.HealthHandler
}

// New 构建容器
func New(cfg *config.Config, db *services.Database) (*Container, error) {
	logger := utils.GetLogger()
	ctn := &Container{Config: cfg, DB: db}

	// 存储失败不影响私信，只是图片退回为对象键
	var media services.MediaResolver
	storage, err := services.NewStorageService(cfg)
	if err != nil {
		logger.Warn("对象存储初始化失败，图片地址将原样返回", "error", err.Error())
	} else {
		ctn.Storage = storage
		media = storage
	}

	ctn.Broker = realtime.NewBroker(cfg.Messaging.EventBufferSize)
	var feed realtime.Feed = ctn.Broker
	if cfg.Redis.Enabled {
		client, err := realtime.ConnectRedis(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("连接Redis失败: %w", err)
		}
		relay := realtime.NewRedisRelay(client, cfg.Redis.Channel, ctn.Broker)
		if err := relay.Start(context.Background()); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("订阅Redis频道失败: %w", err)
		}
		ctn.Redis = client
		ctn.Relay = relay
		feed = relay
	}

	ctn.UserRepo = services.NewUserRepository(db, media)
	ctn.MsgRepo = services.NewMessageRepository(db, ctn.UserRepo, feed, media)
	ctn.Store = ctn.MsgRepo
	if cfg.Messaging.Breaker.Enabled {
		ctn.Store = services.NewBreakerStore(ctn.MsgRepo, cfg.Messaging.Breaker)
	}

	ctn.Sessions = messaging.NewManager(ctn.Store, ctn.Broker, messaging.Options{
		RemoteTimeout:    cfg.Messaging.RemoteTimeout,
		PollInterval:     cfg.Messaging.UnreadPollInterval,
		MaxContentLength: cfg.Messaging.MaxContentLength,
		EventBuffer:      cfg.Messaging.EventBufferSize,
		Logger:           logger,
	}, cfg.Messaging.SessionIdleTTL)

	ctn.MessageHandler = handlers.NewMessageHandler(ctn.Sessions)
	ctn.WebSocketHandler = handlers.NewWebSocketHandler(ctn.Sessions, cfg)
	ctn.HealthHandler = handlers.NewHealthHandler(ctn.healthChecks(), ctn.Sessions.Count)

	logger.Info("私信服务装配完成",
		"redis", cfg.Redis.Enabled,
		"breaker", cfg.Messaging.Breaker.Enabled,
		"storage", ctn.Storage != nil)
	return ctn, nil
}

func (c *Container) healthChecks() map[string]handlers.HealthCheckFunc {
	checks := map[string]handlers.HealthCheckFunc{
		"database": c.DB.Ping,
	}
	if c.Storage != nil {
		checks["storage"] = c.Storage.Ping
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return c.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Close 按依赖的反方向释放资源，数据库由调用方关闭
func (c *Container) Close() {
	if c.Sessions != nil {
		c.Sessions.Close()
	}
	if c.Relay != nil {
		c.Relay.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			utils.GetLogger().Warn("关闭Redis连接失败", "error", err.Error())
		}
	}
}
