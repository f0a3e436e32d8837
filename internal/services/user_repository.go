package services

import (
	"context"
	"database/sql"
	"errors"

	"skoropad/internal/models"
	"skoropad/internal/utils"
)

// UserRepository 用户数据访问层（只读，用户由外部认证服务维护）
type UserRepository struct {
	db     *Database
	media  MediaResolver
	logger utils.Logger
}

// NewUserRepository 创建用户数据访问层，media 可为 nil
func NewUserRepository(db *Database, media MediaResolver) *UserRepository {
	return &UserRepository{
		db:     db,
		media:  media,
		logger: utils.GetLogger(),
	}
}

// GetUserByID 根据ID获取用户，不存在时返回 nil
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, nickname, role, avatar_url, is_banned, created_at FROM users WHERE id = ?`

	user := &models.User{}
	var avatar sql.NullString
	err := r.db.DB.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Nickname,
		&user.Role,
		&avatar,
		&user.IsBanned,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("查询用户失败", "userID", id, "error", err.Error())
		return nil, dbErr("查询用户失败", err)
	}
	user.AvatarURL = resolveMedia(ctx, r.media, avatar.String)
	return user, nil
}

// Exists 用户是否存在
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.DB.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		r.logger.Error("检查用户失败", "userID", id, "error", err.Error())
		return false, dbErr("检查用户失败", err)
	}
	return true, nil
}
