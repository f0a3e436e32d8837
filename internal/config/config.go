package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置结构体
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	JWT       JWTConfig       `yaml:"jwt" json:"jwt"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Log       LogConfig       `yaml:"log" json:"log"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
	WebSocket WebSocketConfig `yaml:"websocket" json:"websocket"`
	Assets    AssetsConfig    `yaml:"assets" json:"assets"`
	MinIO     MinIOConfig     `yaml:"minio" json:"minio"`
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	Messaging MessagingConfig `yaml:"messaging" json:"messaging"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            string        `yaml:"port" json:"port"`
	Mode            string        `yaml:"mode" json:"mode"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// JWTConfig JWT配置
//
// token 由外部认证服务签发，这里只做校验。
type JWTConfig struct {
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Issuer    string `yaml:"issuer" json:"issuer"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            string        `yaml:"port" json:"port"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"password"`
	Database        string        `yaml:"database" json:"database"`
	Charset         string        `yaml:"charset" json:"charset"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate" json:"auto_migrate"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"` // json | console
	Output   string `yaml:"output" json:"output"` // stdout | file
	FilePath string `yaml:"file_path" json:"file_path"`
}

// CORSConfig CORS配置
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allow_origins" json:"allow_origins"`
	AllowMethods     []string `yaml:"allow_methods" json:"allow_methods"`
	AllowHeaders     []string `yaml:"allow_headers" json:"allow_headers"`
	AllowCredentials bool     `yaml:"allow_credentials" json:"allow_credentials"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" json:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" json:"write_buffer_size"`
	SendBufferSize  int           `yaml:"send_buffer_size" json:"send_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval" json:"ping_interval"`
	PongWait        time.Duration `yaml:"pong_wait" json:"pong_wait"`
	WriteWait       time.Duration `yaml:"write_wait" json:"write_wait"`
	MaxMessageSize  int64         `yaml:"max_message_size" json:"max_message_size"`
}

// AssetsConfig 静态资源配置
type AssetsConfig struct {
	// PublicBaseURL 指向桶根目录的可公开访问地址，例如: http://localhost:9000/skoropad-media
	PublicBaseURL string `yaml:"public_base_url" json:"public_base_url"`
	// PresignExpiry 大于0时改用预签名URL（私有桶）
	PresignExpiry time.Duration `yaml:"presign_expiry" json:"presign_expiry"`
}

// MinIOConfig MinIO 对象存储连接配置
type MinIOConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl" json:"use_ssl"`
	Bucket          string `yaml:"bucket" json:"bucket"`
}

// RedisConfig Redis 配置（多实例之间转发实时消息）
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Channel  string `yaml:"channel" json:"channel"`
}

// MessagingConfig 私信会话配置
type MessagingConfig struct {
	RemoteTimeout      time.Duration `yaml:"remote_timeout" json:"remote_timeout"`
	UnreadPollInterval time.Duration `yaml:"unread_poll_interval" json:"unread_poll_interval"`
	SessionIdleTTL     time.Duration `yaml:"session_idle_ttl" json:"session_idle_ttl"`
	MaxContentLength   int           `yaml:"max_content_length" json:"max_content_length"`
	SendRatePerMinute  int           `yaml:"send_rate_per_minute" json:"send_rate_per_minute"`
	EventBufferSize    int           `yaml:"event_buffer_size" json:"event_buffer_size"`
	Breaker            BreakerConfig `yaml:"breaker" json:"breaker"`
}

// BreakerConfig 数据库熔断配置
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
	Interval         time.Duration `yaml:"interval" json:"interval"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
}

// Load 加载配置
func Load() *Config {
	// .env 只补充尚未设置的环境变量
	if err := godotenv.Load(); err == nil {
		fmt.Println("已加载 .env 文件")
	}

	env := getEnv("APP_ENV", "dev")
	configFile := getConfigFile(env)

	config := getDefaultConfig()

	if configFile != "" {
		if err := loadFromFile(config, configFile); err != nil {
			fmt.Printf("警告: 加载配置文件失败 %s: %v\n", configFile, err)
		} else {
			fmt.Printf("已加载配置文件: %s\n", configFile)
		}
	}

	// 环境变量覆盖配置文件
	overrideWithEnvVars(config)

	return config
}

// getConfigFile 获取配置文件路径
func getConfigFile(env string) string {
	configFiles := []string{
		fmt.Sprintf("config.%s.yaml", env),
		"config.yaml",
	}

	for _, file := range configFiles {
		if _, err := os.Stat(file); err == nil {
			return file
		}
	}

	return ""
}

// getDefaultConfig 获取默认配置
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			Mode:            "release",
			ShutdownTimeout: 10 * time.Second,
		},
		JWT: JWTConfig{
			SecretKey: "default_secret_key_change_in_production",
			Issuer:    "",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            "3306",
			Username:        "root",
			Password:        "",
			Database:        "skoropad",
			Charset:         "utf8mb4",
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			AutoMigrate:     false,
		},
		Log: LogConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "log/app.log",
		},
		CORS: CORSConfig{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "X-Request-ID", "Authorization"},
			AllowCredentials: true,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			SendBufferSize:  64,
			PingInterval:    30 * time.Second,
			PongWait:        60 * time.Second,
			WriteWait:       10 * time.Second,
			MaxMessageSize:  4096,
		},
		Assets: AssetsConfig{
			PublicBaseURL: "http://localhost:9000/skoropad-media",
		},
		MinIO: MinIOConfig{
			Enabled:         false,
			Endpoint:        "localhost:9000",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			UseSSL:          false,
			Bucket:          "skoropad-media",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			Channel: "skoropad:messages",
		},
		Messaging: MessagingConfig{
			RemoteTimeout:      15 * time.Second,
			UnreadPollInterval: 30 * time.Second,
			SessionIdleTTL:     30 * time.Minute,
			MaxContentLength:   2000,
			SendRatePerMinute:  30,
			EventBufferSize:    64,
			Breaker: BreakerConfig{
				Enabled:          true,
				MaxRequests:      1,
				Interval:         time.Minute,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
		},
	}
}

// loadFromFile 从文件加载配置
func loadFromFile(config *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, config)
}

// overrideWithEnvVars 用环境变量覆盖配置
func overrideWithEnvVars(config *Config) {
	// 服务器配置
	if val := getEnv("SERVER_HOST", ""); val != "" {
		config.Server.Host = val
	}
	if val := getEnv("SERVER_PORT", ""); val != "" {
		config.Server.Port = val
	}
	if val := getEnv("SERVER_MODE", ""); val != "" {
		config.Server.Mode = val
	}

	// 数据库配置
	if val := getEnv("DB_HOST", ""); val != "" {
		config.Database.Host = val
	}
	if val := getEnv("DB_PORT", ""); val != "" {
		config.Database.Port = val
	}
	if val := getEnv("DB_USERNAME", ""); val != "" {
		config.Database.Username = val
	}
	if val := getEnv("DB_PASSWORD", ""); val != "" {
		config.Database.Password = val
	}
	if val := getEnv("DB_DATABASE", ""); val != "" {
		config.Database.Database = val
	}
	if val := getEnv("DB_AUTO_MIGRATE", ""); val != "" {
		config.Database.AutoMigrate = parseBool(val)
	}

	// JWT配置
	if val := getEnv("JWT_SECRET", ""); val != "" {
		config.JWT.SecretKey = val
	}
	if val := getEnv("JWT_ISSUER", ""); val != "" {
		config.JWT.Issuer = val
	}

	// 日志配置
	if val := getEnv("LOG_LEVEL", ""); val != "" {
		config.Log.Level = val
	}
	if val := getEnv("LOG_FORMAT", ""); val != "" {
		config.Log.Format = val
	}
	if val := getEnv("LOG_OUTPUT", ""); val != "" {
		config.Log.Output = val
	}

	// 静态资源配置
	if val := getEnv("ASSETS_PUBLIC_BASE_URL", ""); val != "" {
		config.Assets.PublicBaseURL = val
	}

	// MinIO 配置
	if val := getEnv("MINIO_ENABLED", ""); val != "" {
		config.MinIO.Enabled = parseBool(val)
	}
	if val := getEnv("MINIO_ENDPOINT", ""); val != "" {
		config.MinIO.Endpoint = val
	}
	if val := getEnv("MINIO_ACCESS_KEY", ""); val != "" {
		config.MinIO.AccessKeyID = val
	}
	if val := getEnv("MINIO_SECRET_KEY", ""); val != "" {
		config.MinIO.SecretAccessKey = val
	}
	if val := getEnv("MINIO_USE_SSL", ""); val != "" {
		config.MinIO.UseSSL = parseBool(val)
	}
	if val := getEnv("MINIO_BUCKET", ""); val != "" {
		config.MinIO.Bucket = val
	}

	// Redis 配置
	if val := getEnv("REDIS_ENABLED", ""); val != "" {
		config.Redis.Enabled = parseBool(val)
	}
	if val := getEnv("REDIS_ADDR", ""); val != "" {
		config.Redis.Addr = val
	}
	if val := getEnv("REDIS_PASSWORD", ""); val != "" {
		config.Redis.Password = val
	}

	// 私信配置
	if val := getEnv("MESSAGING_REMOTE_TIMEOUT", ""); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			config.Messaging.RemoteTimeout = d
		}
	}
	if val := getEnv("MESSAGING_UNREAD_POLL_INTERVAL", ""); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			config.Messaging.UnreadPollInterval = d
		}
	}
	if val := getEnv("MESSAGING_SEND_RATE_PER_MINUTE", ""); val != "" {
		if n := parseInt(val); n > 0 {
			config.Messaging.SendRatePerMinute = n
		}
	}
}

// parseInt 解析整数
func parseInt(s string) int {
	var result int
	fmt.Sscanf(s, "%d", &result)
	return result
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
