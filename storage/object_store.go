package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"

	"storycast/model"

	"github.com/minio/minio-go/v7"
)

// ObjectStore 对象存储抽象，方便测试替换
type ObjectStore interface {
	UploadProgram(ctx context.Context, key model.GenerationKey, localPath string) (string, error)
	DownloadToFile(ctx context.Context, objectPath string, localPath string) error
	GetManifest(ctx context.Context, key model.GenerationKey) (*model.CombinedManifest, error)
	PutManifest(ctx context.Context, key model.GenerationKey, m *model.CombinedManifest) error
}

// ProgramObjectPath 节目文件的确定性路径，重新生成时原地覆盖
func ProgramObjectPath(key model.GenerationKey) string {
	return path.Join("programs", key.World, key.OwnerID, key.Language, key.Variant, "program.mp3")
}

// ManifestObjectPath 合并清单路径，kids与parent共用一份
func ManifestObjectPath(key model.GenerationKey) string {
	return path.Join("programs", key.World, key.OwnerID, key.Language, "manifest.json")
}

// RecordingsPrefix 某一生成键下的录音对象前缀
func RecordingsPrefix(key model.GenerationKey) string {
	return path.Join("recordings", key.World, key.OwnerID, key.Language, key.Variant) + "/"
}

type minioObjectStore struct {
	bucket string
}

// NewMinioObjectStore 创建基于MinIO的对象存储
func NewMinioObjectStore(bucket string) ObjectStore {
	return &minioObjectStore{bucket: bucket}
}

// UploadProgram 上传节目文件。路径固定覆盖旧版本，
// 带 no-cache 响应头防止CDN和浏览器缓存住旧节目。
func (s *minioObjectStore) UploadProgram(ctx context.Context, key model.GenerationKey, localPath string) (string, error) {
	objectPath := ProgramObjectPath(key)

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open program file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat program file: %w", err)
	}

	_, err = minioClient.PutObject(ctx, s.bucket, objectPath, file, stat.Size(), minio.PutObjectOptions{
		ContentType:      "audio/mpeg",
		CacheControl:     "no-cache, no-store, must-revalidate",
		DisableMultipart: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload program: %w", err)
	}
	return objectPath, nil
}

func (s *minioObjectStore) DownloadToFile(ctx context.Context, objectPath string, localPath string) error {
	obj, err := minioClient.GetObject(ctx, s.bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to get object %s: %w", objectPath, err)
	}
	defer obj.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, obj); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("failed to download %s: %w", objectPath, err)
	}
	return nil
}

// GetManifest 读取合并清单，不存在返回 (nil, nil)
func (s *minioObjectStore) GetManifest(ctx context.Context, key model.GenerationKey) (*model.CombinedManifest, error) {
	obj, err := minioClient.GetObject(ctx, s.bucket, ManifestObjectPath(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get manifest: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m model.CombinedManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

func (s *minioObjectStore) PutManifest(ctx context.Context, key model.GenerationKey, m *model.CombinedManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	_, err = minioClient.PutObject(ctx, s.bucket, ManifestObjectPath(key),
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType:      "application/json",
			CacheControl:     "no-cache, no-store, must-revalidate",
			DisableMultipart: true,
		})
	if err != nil {
		return fmt.Errorf("failed to upload manifest: %w", err)
	}
	return nil
}
