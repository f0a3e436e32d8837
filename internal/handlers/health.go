package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"skoropad/internal/models"
	"skoropad/internal/utils"

	"github.com/gin-gonic/gin"
)

// HealthCheckFunc 单个依赖的检查函数
type HealthCheckFunc func(ctx context.Context) error

// HealthHandler 健康检查处理器
type HealthHandler struct {
	checks   map[string]HealthCheckFunc
	sessions func() int
	logger   utils.Logger
}

// NewHealthHandler 创建健康检查处理器；sessions 返回当前在线会话数，可为 nil
func NewHealthHandler(checks map[string]HealthCheckFunc, sessions func() int) *HealthHandler {
	return &HealthHandler{
		checks:   checks,
		sessions: sessions,
		logger:   utils.GetLogger(),
	}
}

// HealthStatus 健康状态结构
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Services  map[string]interface{} `json:"services"`
}

// runChecks 依次执行检查，返回失败的依赖
func (h *HealthHandler) runChecks(ctx context.Context) (map[string]interface{}, []string) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	services := make(map[string]interface{}, len(names))
	var failed []string
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := h.checks[name](checkCtx)
		cancel()
		if err != nil {
			failed = append(failed, name)
			services[name] = map[string]interface{}{"status": "down", "error": err.Error()}
			h.logger.Error("依赖健康检查失败", "service", name, "error", err.Error())
			continue
		}
		services[name] = map[string]interface{}{"status": "up"}
	}
	return services, failed
}

// Check 健康检查
func (h *HealthHandler) Check(c *gin.Context) {
	services, failed := h.runChecks(c.Request.Context())
	if h.sessions != nil {
		services["messaging"] = map[string]interface{}{
			"status":   "up",
			"sessions": h.sessions(),
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if len(failed) > 0 {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, models.CommonResponse{
		Code:    httpStatus,
		Message: "健康检查完成",
		Data: HealthStatus{
			Status:    status,
			Timestamp: time.Now(),
			Version:   "1.0.0",
			Services:  services,
		},
	})
}

// Ready 就绪检查
func (h *HealthHandler) Ready(c *gin.Context) {
	if _, failed := h.runChecks(c.Request.Context()); len(failed) > 0 {
		h.logger.Error("服务未就绪", "failed", failed)
		c.JSON(http.StatusServiceUnavailable, models.CommonResponse{
			Code:    http.StatusServiceUnavailable,
			Message: "服务未就绪",
			Data:    gin.H{"failed": failed},
		})
		return
	}

	c.JSON(http.StatusOK, models.CommonResponse{
		Code:    http.StatusOK,
		Message: "服务已就绪",
	})
}

// Live 存活检查
func (h *HealthHandler) Live(c *gin.Context) {
	// 简单的存活检查，不依赖外部服务
	c.JSON(http.StatusOK, models.CommonResponse{
		Code:    http.StatusOK,
		Message: "服务存活",
		Data: map[string]interface{}{
			"timestamp": time.Now().Unix(),
		},
	})
}
