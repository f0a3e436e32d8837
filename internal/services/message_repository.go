package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"skoropad/internal/messaging"
	"skoropad/internal/models"
	"skoropad/internal/realtime"
	"skoropad/internal/utils"
)

// MessageRepository 私信数据访问层（messaging.Store 的 MySQL 实现）
type MessageRepository struct {
	db     *Database
	users  *UserRepository
	feed   realtime.Feed
	media  MediaResolver
	logger utils.Logger
}

// NewMessageRepository 创建私信数据访问层；feed 和 media 可为 nil
func NewMessageRepository(db *Database, users *UserRepository, feed realtime.Feed, media MediaResolver) *MessageRepository {
	return &MessageRepository{
		db:     db,
		users:  users,
		feed:   feed,
		media:  media,
		logger: utils.GetLogger(),
	}
}

var _ messaging.Store = (*MessageRepository)(nil)

// 消息连同双方用户与广告快照
const messageSelect = `
	SELECT m.id, m.advertisement_id, m.sender_id, m.receiver_id, m.content, m.is_read, m.created_at,
	       s.nickname, s.role, s.avatar_url,
	       r.nickname, r.role, r.avatar_url,
	       a.title, a.price, a.images
	FROM messages m
	LEFT JOIN users s ON s.id = m.sender_id
	LEFT JOIN users r ON r.id = m.receiver_id
	LEFT JOIN advertisements a ON a.id = m.advertisement_id`

// rowScanner sql.Row 与 sql.Rows 的公共部分
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *MessageRepository) scanMessage(ctx context.Context, row rowScanner) (models.Message, error) {
	var msg models.Message
	var senderNick, senderRole, senderAvatar sql.NullString
	var receiverNick, receiverRole, receiverAvatar sql.NullString
	var title sql.NullString
	var price sql.NullFloat64
	var images []byte
	err := row.Scan(
		&msg.ID, &msg.ListingID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.IsRead, &msg.CreatedAt,
		&senderNick, &senderRole, &senderAvatar,
		&receiverNick, &receiverRole, &receiverAvatar,
		&title, &price, &images,
	)
	if err != nil {
		return msg, err
	}

	if senderNick.Valid {
		msg.Sender = &models.UserSnapshot{
			Nickname:  senderNick.String,
			Role:      senderRole.String,
			AvatarURL: resolveMedia(ctx, r.media, senderAvatar.String),
		}
	}
	if receiverNick.Valid {
		msg.Receiver = &models.UserSnapshot{
			Nickname:  receiverNick.String,
			Role:      receiverRole.String,
			AvatarURL: resolveMedia(ctx, r.media, receiverAvatar.String),
		}
	}
	if title.Valid {
		msg.Listing = &models.ListingSnapshot{
			Title:  title.String,
			Price:  price.Float64,
			Images: r.decodeImages(ctx, images),
		}
	}
	return msg, nil
}

// decodeImages 解析 JSON 图片数组并转换为可访问的URL
func (r *MessageRepository) decodeImages(ctx context.Context, raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		r.logger.Debug("广告图片字段格式异常", "error", err.Error())
		return nil
	}
	for i, key := range keys {
		keys[i] = resolveMedia(ctx, r.media, key)
	}
	return keys
}

func (r *MessageRepository) queryMessages(ctx context.Context, op string, query string, args ...interface{}) ([]models.Message, error) {
	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("查询消息失败", "op", op, "error", err.Error())
		return nil, dbErr("查询消息失败", err)
	}
	defer rows.Close()

	// 初始化为空数组，避免返回null
	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := r.scanMessage(ctx, rows)
		if err != nil {
			return nil, dbErr("读取消息失败", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("读取消息失败", err)
	}
	return messages, nil
}

// ListUserMessages 用户参与的全部消息，最新在前
func (r *MessageRepository) ListUserMessages(ctx context.Context, userID string) ([]models.Message, error) {
	query := messageSelect + `
	WHERE m.sender_id = ? OR m.receiver_id = ?
	ORDER BY m.created_at DESC, m.id DESC`
	return r.queryMessages(ctx, "list_user_messages", query, userID, userID)
}

// ListThread 某个会话的消息，按时间正序
func (r *MessageRepository) ListThread(ctx context.Context, userID string, key messaging.Key) ([]models.Message, error) {
	query := messageSelect + `
	WHERE m.advertisement_id = ?
	  AND ((m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?))
	ORDER BY m.created_at ASC, m.id ASC`
	return r.queryMessages(ctx, "list_thread", query,
		key.ListingID, userID, key.CounterpartID, key.CounterpartID, userID)
}

// GetMessage 根据ID获取消息，不存在时返回 nil
func (r *MessageRepository) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := r.db.DB.QueryRowContext(ctx, messageSelect+` WHERE m.id = ?`, id)
	msg, err := r.scanMessage(ctx, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("查询消息失败", err)
	}
	return &msg, nil
}

// InsertMessage 写入消息，id 与时间由服务端分配，写入后推送给实时通道
func (r *MessageRepository) InsertMessage(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	content := strings.TrimSpace(in.Content)

	query := `INSERT INTO messages (id, advertisement_id, sender_id, receiver_id, content, is_read, created_at)
	          VALUES (?, ?, ?, ?, ?, 0, ?)`
	if _, err := r.db.DB.ExecContext(ctx, query, id, in.ListingID, in.SenderID, in.ReceiverID, content, now); err != nil {
		r.logger.Error("写入消息失败", "senderID", in.SenderID, "receiverID", in.ReceiverID, "error", err.Error())
		return nil, dbErr("发送消息失败", err)
	}

	msg, err := r.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("消息写入后未找到: %s", id)
	}

	if r.feed != nil {
		if err := r.feed.Publish(ctx, *msg); err != nil {
			// 推送失败不影响写入结果，接收方靠轮询补偿
			r.logger.Warn("推送实时消息失败", "messageID", id, "error", err.Error())
		}
	}
	return msg, nil
}

// MarkRead 把某发送者在该广告下发给接收者的未读消息标记为已读
func (r *MessageRepository) MarkRead(ctx context.Context, listingID, senderID, receiverID string) error {
	query := `UPDATE messages SET is_read = 1
	          WHERE advertisement_id = ? AND sender_id = ? AND receiver_id = ? AND is_read = 0`
	result, err := r.db.DB.ExecContext(ctx, query, listingID, senderID, receiverID)
	if err != nil {
		r.logger.Error("标记已读失败", "listingID", listingID, "receiverID", receiverID, "error", err.Error())
		return dbErr("标记已读失败", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		r.logger.Debug("消息已标记为已读", "listingID", listingID, "receiverID", receiverID, "count", n)
	}
	return nil
}

// DeleteConversation 删除双方在该广告下的全部消息
func (r *MessageRepository) DeleteConversation(ctx context.Context, userID string, key messaging.Key) error {
	query := `DELETE FROM messages
	          WHERE advertisement_id = ?
	            AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))`
	result, err := r.db.DB.ExecContext(ctx, query,
		key.ListingID, userID, key.CounterpartID, key.CounterpartID, userID)
	if err != nil {
		r.logger.Error("删除会话失败", "userID", userID, "conversation", key.String(), "error", err.Error())
		return dbErr("删除会话失败", err)
	}
	n, _ := result.RowsAffected()
	r.logger.Info("会话已删除", "userID", userID, "conversation", key.String(), "deleted", n)
	return nil
}

// CountUnread 用户未读消息总数
func (r *MessageRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = 0`, userID).Scan(&count)
	if err != nil {
		return 0, dbErr("获取未读数失败", err)
	}
	return count, nil
}

// GetListing 获取广告，不存在时返回 nil
func (r *MessageRepository) GetListing(ctx context.Context, listingID string) (*models.Listing, error) {
	query := `SELECT id, user_id, title, price, images, status FROM advertisements WHERE id = ?`

	var (
		listing models.Listing
		images  []byte
	)
	err := r.db.DB.QueryRowContext(ctx, query, listingID).Scan(
		&listing.ID,
		&listing.OwnerID,
		&listing.Title,
		&listing.Price,
		&images,
		&listing.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("查询广告失败", "listingID", listingID, "error", err.Error())
		return nil, dbErr("查询广告失败", err)
	}
	listing.Images = r.decodeImages(ctx, images)
	return &listing, nil
}

// UserExists 用户是否存在
func (r *MessageRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	return r.users.Exists(ctx, userID)
}

// EnsureSchema 创建私信相关数据表
func (r *MessageRepository) EnsureSchema(ctx context.Context) error {
	return r.db.EnsureSchema(ctx)
}
