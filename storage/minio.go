package storage

import (
	"context"
	"fmt"
	"time"

	"storycast/config"
	"storycast/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio 初始化MinIO客户端并确保节目存储桶存在
func InitMinio(cfg *config.Config) error {
	var err error
	minioClient, err = minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := minioClient.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := minioClient.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("存储桶已创建", logger.String("bucket", cfg.MinioBucket))
	}

	logger.Info("MinIO连接成功",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))
	return nil
}

// TestMinioConnection 测试MinIO连接
func TestMinioConnection(cfg *config.Config) error {
	if minioClient == nil {
		return fmt.Errorf("minio client not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := minioClient.ListBuckets(ctx); err != nil {
		return fmt.Errorf("minio connection test failed: %w", err)
	}
	return nil
}
