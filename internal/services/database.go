package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"skoropad/internal/config"
	"skoropad/internal/utils"

	_ "github.com/go-sql-driver/mysql"
)

// Database 数据库服务
type Database struct {
	DB *sql.DB
}

// NewDatabase 创建数据库连接
func NewDatabase(cfg *config.Config) (*Database, error) {
	// 时间统一按 UTC 读写
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=UTC",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
		cfg.Database.Charset,
	)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w: %w", utils.ErrDatabaseConnection, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w: %w", utils.ErrDatabaseConnection, err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	utils.GetLogger().Info("数据库连接成功",
		"host", cfg.Database.Host,
		"database", cfg.Database.Database,
		"maxOpenConns", cfg.Database.MaxOpenConns)
	return &Database{DB: db}, nil
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

// Ping 测试数据库连接
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Stats 连接池状态
func (d *Database) Stats() sql.DBStats {
	return d.DB.Stats()
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		nickname VARCHAR(100) NOT NULL DEFAULT '',
		role VARCHAR(20) NOT NULL DEFAULT 'user',
		avatar_url VARCHAR(512) NULL,
		is_banned TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS advertisements (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		title VARCHAR(255) NOT NULL DEFAULT '',
		price DECIMAL(12,2) NOT NULL DEFAULT 0,
		images JSON NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		INDEX idx_advertisements_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS messages (
		id CHAR(36) NOT NULL PRIMARY KEY,
		advertisement_id VARCHAR(64) NOT NULL,
		sender_id VARCHAR(64) NOT NULL,
		receiver_id VARCHAR(64) NOT NULL,
		content TEXT NOT NULL,
		is_read TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_messages_sender (sender_id, created_at),
		INDEX idx_messages_receiver (receiver_id, is_read, created_at),
		INDEX idx_messages_thread (advertisement_id, sender_id, receiver_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema 创建缺失的表
func (d *Database) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := d.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("创建数据表失败: %w", err)
		}
	}
	utils.GetLogger().Info("数据表检查完成", "tables", len(schemaStatements))
	return nil
}

// dbError 存储层错误，同时匹配 utils.ErrDatabaseQuery 与底层驱动错误
type dbError struct {
	op  string
	err error
}

func (e *dbError) Error() string { return e.op + ": " + e.err.Error() }

func (e *dbError) Unwrap() []error { return []error{utils.ErrDatabaseQuery, e.err} }

func dbErr(op string, err error) error {
	return &dbError{op: op, err: err}
}
