package models

import "time"

// 用户角色
const (
	RoleUser      = "user"
	RoleVIP       = "vip"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// User 用户结构体（由外部认证服务维护）
type User struct {
	ID        string    `json:"id" db:"id"`
	Nickname  string    `json:"nickname" db:"nickname"`
	Role      string    `json:"role" db:"role"`
	AvatarURL string    `json:"avatar_url,omitempty" db:"avatar_url"`
	IsBanned  bool      `json:"is_banned" db:"is_banned"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CommonResponse 通用响应结构体
type CommonResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
