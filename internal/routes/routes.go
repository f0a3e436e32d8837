package routes

import (
	"skoropad/internal/bootstrap"
	"skoropad/internal/config"
	"skoropad/internal/middleware"
	"skoropad/internal/utils"

	"github.com/gin-gonic/gin"
)

// 全局每个IP每分钟请求数
const globalRatePerMinute = 300

// SetupRoutes 设置路由
func SetupRoutes(cfg *config.Config, ctn *bootstrap.Container) *gin.Engine {
	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()

	// 添加中间件
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware()) // 请求ID中间件
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(cfg))
	r.Use(middleware.RateLimitMiddleware(globalRatePerMinute))

	// 健康检查路由
	r.GET("/health", ctn.HealthHandler.Check)
	r.GET("/ready", ctn.HealthHandler.Ready)
	r.GET("/live", ctn.HealthHandler.Live)

	msg := ctn.MessageHandler

	// 私信路由，全部需要认证
	messages := r.Group("/api/messages")
	messages.Use(middleware.AuthMiddleware(cfg))
	{
		messages.GET("/conversations", msg.GetConversations)
		messages.GET("/conversations/:listingId/:userId", msg.OpenConversation)
		messages.POST("/conversations/:listingId/:userId",
			middleware.SendRateLimitMiddleware(cfg.Messaging.SendRatePerMinute), msg.SendMessage)
		messages.DELETE("/conversations/:listingId/:userId", msg.DeleteConversation)
		messages.POST("/close", msg.CloseConversation)
		messages.GET("/unread", msg.GetUnreadCount)
		messages.GET("/can-message/:listingId", msg.CanMessage)

		// 浏览器无法给 WebSocket 设置请求头，token 走 access_token 参数
		messages.GET("/ws", ctn.WebSocketHandler.HandleWebSocket)
	}

	utils.GetLogger().Info("路由设置完成", "mode", cfg.Server.Mode, "port", cfg.Server.Port)
	return r
}
