package models

import (
	"github.com/golang-jwt/jwt/v4"
)

// Claims JWT声明结构体
//
// 用户ID 放在 sub 中，role 为可选的自定义声明。
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID 返回 token 对应的用户ID
func (c *Claims) UserID() string {
	return c.Subject
}
