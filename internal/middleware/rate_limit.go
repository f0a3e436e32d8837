package middleware

import (
	"net/http"
	"sync"
	"time"

	"skoropad/internal/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyedRateLimiter 按键（用户ID或IP）分配令牌桶
type KeyedRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedRateLimiter 每分钟 perMinute 次，允许 burst 次突发
func NewKeyedRateLimiter(perMinute, burst int) *KeyedRateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return &KeyedRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		idleTTL:  5 * time.Minute,
	}
}

// Allow 检查该键是否允许请求
func (l *KeyedRateLimiter) Allow(key string) bool {
	return l.get(key).Allow()
}

func (l *KeyedRateLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
		l.cleanupLocked(now)
	}
	v.lastSeen = now
	return v.limiter
}

// cleanupLocked 清理长时间未出现的键，随新键创建顺带执行
func (l *KeyedRateLimiter) cleanupLocked(now time.Time) {
	if len(l.visitors) < 1024 {
		return
	}
	cutoff := now.Add(-l.idleTTL)
	for k, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, k)
		}
	}
}

// RateLimitMiddleware 按IP限流
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	limiter := NewKeyedRateLimiter(perMinute, perMinute/2)
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			tooManyRequests(c, "请求频率过高，请稍后再试")
			c.Abort()
			return
		}
		c.Next()
	}
}

// SendRateLimitMiddleware 按用户限制发送私信的频率，需在认证之后使用
func SendRateLimitMiddleware(perMinute int) gin.HandlerFunc {
	limiter := NewKeyedRateLimiter(perMinute, 5)
	logger := utils.GetLogger()
	return func(c *gin.Context) {
		key, err := utils.GetUserIDFromContext(c)
		if err != nil {
			key = "ip:" + c.ClientIP()
		}
		if !limiter.Allow(key) {
			logger.Warn("发送私信过于频繁", "key", key, "path", c.Request.URL.Path)
			tooManyRequests(c, "发送过于频繁，请稍后再试")
			c.Abort()
			return
		}
		c.Next()
	}
}

func tooManyRequests(c *gin.Context, message string) {
	utils.ErrorWithCodeResponse(c, utils.NewAppError(utils.ErrRateLimitExceeded, message, http.StatusTooManyRequests), nil)
}
