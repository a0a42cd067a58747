package storage

import (
	"context"
	"fmt"
	"path"
	"sort"

	"storycast/model"

	"github.com/minio/minio-go/v7"
)

// RecordingLister 列出用户已上传的录音文件，用于生成决策
type RecordingLister interface {
	ListRecordings(ctx context.Context, key model.GenerationKey) ([]string, error)
}

type minioRecordingLister struct {
	bucket string
}

func NewMinioRecordingLister(bucket string) RecordingLister {
	return &minioRecordingLister{bucket: bucket}
}

// ListRecordings 返回排序后的录音对象名列表（不含前缀目录）
func (l *minioRecordingLister) ListRecordings(ctx context.Context, key model.GenerationKey) ([]string, error) {
	prefix := RecordingsPrefix(key)

	var names []string
	for obj := range minioClient.ListObjects(ctx, l.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list recordings: %w", obj.Err)
		}
		if obj.Size == 0 {
			continue
		}
		names = append(names, path.Base(obj.Key))
	}

	sort.Strings(names)
	return names, nil
}
