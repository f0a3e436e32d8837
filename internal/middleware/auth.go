package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"skoropad/internal/config"
	"skoropad/internal/models"
	"skoropad/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// AuthMiddleware JWT认证中间件
//
// token 由外部认证服务签发（HS256），用户ID 在 sub 中。
// WebSocket 握手无法设置请求头，允许通过 access_token 查询参数传递。
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	logger := utils.GetLogger()
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			utils.ErrorWithCodeResponse(c, utils.NewAppError(utils.ErrUserNotAuthenticated, "缺少Authorization头", http.StatusUnauthorized), nil)
			c.Abort()
			return
		}

		claims, err := ParseToken(tokenString, &cfg.JWT)
		if err != nil {
			logger.Debug("token校验失败", "path", c.Request.URL.Path, "error", err.Error())
			utils.ErrorWithCodeResponse(c, err, nil)
			c.Abort()
			return
		}

		// 将用户信息存储到上下文中
		c.Set(utils.ContextUserID, claims.UserID())
		c.Set(utils.ContextUserRole, claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("access_token"); token != "" {
			return token, true
		}
		return "", false
	}
	// 检查Bearer前缀
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[7:])
	return token, token != ""
}

// ParseToken 校验签名、有效期与签发方
func ParseToken(tokenString string, cfg *config.JWTConfig) (*models.Claims, error) {
	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.SecretKey), nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, utils.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", utils.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, utils.ErrInvalidToken
	}
	if claims.UserID() == "" {
		return nil, utils.ErrInvalidUserID
	}
	if cfg.Issuer != "" && !claims.VerifyIssuer(cfg.Issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", utils.ErrInvalidToken, claims.Issuer)
	}
	return claims, nil
}
