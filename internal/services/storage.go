package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"skoropad/internal/config"
	"skoropad/internal/utils"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MediaResolver 把存储中的对象键转换为客户端可访问的URL
type MediaResolver interface {
	MediaURL(ctx context.Context, key string) string
}

func resolveMedia(ctx context.Context, m MediaResolver, key string) string {
	if key == "" || m == nil {
		return key
	}
	return m.MediaURL(ctx, key)
}

// StorageService 封装对象存储（MinIO），只负责生成头像与广告图片的访问地址
type StorageService struct {
	client     *minio.Client
	bucket     string
	publicBase string
	expiry     time.Duration
	logger     utils.Logger
}

// NewStorageService 初始化存储服务；未启用 MinIO 时只按公开地址拼接
func NewStorageService(cfg *config.Config) (*StorageService, error) {
	logger := utils.GetLogger()
	s := &StorageService{
		bucket:     cfg.MinIO.Bucket,
		publicBase: strings.TrimRight(cfg.Assets.PublicBaseURL, "/"),
		expiry:     cfg.Assets.PresignExpiry,
		logger:     logger,
	}
	if !cfg.MinIO.Enabled {
		return s, nil
	}

	cli, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKeyID, cfg.MinIO.SecretAccessKey, ""),
		Secure: cfg.MinIO.UseSSL,
	})
	if err != nil {
		logger.Error("初始化 MinIO 客户端失败", "error", err.Error())
		return nil, err
	}

	// 确保桶存在
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := cli.BucketExists(ctx, cfg.MinIO.Bucket)
	if err != nil {
		logger.Error("检查桶失败", "bucket", cfg.MinIO.Bucket, "error", err.Error())
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("存储桶不存在: %s", cfg.MinIO.Bucket)
	}

	s.client = cli
	logger.Info("MinIO 已连接", "endpoint", cfg.MinIO.Endpoint, "bucket", cfg.MinIO.Bucket, "presign", s.expiry > 0)
	return s, nil
}

// MediaURL 返回对象的访问地址；已是完整URL时原样返回
func (s *StorageService) MediaURL(ctx context.Context, key string) string {
	if key == "" || strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	key = strings.TrimLeft(key, "/")

	if s.client != nil && s.expiry > 0 {
		u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, nil)
		if err == nil {
			return u.String()
		}
		s.logger.Warn("生成预签名URL失败", "object", key, "error", err.Error())
	}

	if s.publicBase == "" {
		return key
	}
	return fmt.Sprintf("%s/%s", s.publicBase, key)
}

// Ping 检查对象存储可用性，未启用时直接返回
func (s *StorageService) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
