package program

import (
	"context"
	"fmt"
	"time"

	"storycast/cache"
	"storycast/logger"
	"storycast/model"
	"storycast/storage"
)

// Publisher 上传成品并维护对比清单。节目路径固定覆盖，
// 返回的URL带版本参数破掉客户端和CDN缓存。
type Publisher struct {
	store         storage.ObjectStore
	publicBaseURL string
	cooldown      time.Duration
}

func NewPublisher(store storage.ObjectStore, publicBaseURL string, cooldown time.Duration) *Publisher {
	return &Publisher{store: store, publicBaseURL: publicBaseURL, cooldown: cooldown}
}

// Publish 上传节目并写入本变体的清单。音频上传失败是致命的；
// 节目已经传成功后清单写失败只记日志，不拖垮整个任务。
func (p *Publisher) Publish(ctx context.Context, key model.GenerationKey, localPath string, recordingFiles []string) (string, *model.ProgramManifest, error) {
	objectPath, err := p.store.UploadProgram(ctx, key, localPath)
	if err != nil {
		return "", nil, fmt.Errorf("program upload: %w", err)
	}

	programURL := fmt.Sprintf("%s/%s?v=%d", p.publicBaseURL, objectPath, time.Now().Unix())

	manifest := &model.ProgramManifest{
		GeneratedAt:    time.Now(),
		OwnerID:        key.OwnerID,
		World:          key.World,
		Language:       key.Language,
		Variant:        key.Variant,
		RecordingCount: len(recordingFiles),
		RecordingFiles: recordingFiles,
		ProgramURL:     programURL,
		Version:        model.ManifestVersion,
	}

	if err := p.mergeAndWrite(ctx, key, manifest); err != nil {
		logger.Error("清单写入失败，节目本身已发布",
			logger.String("key", key.String()),
			logger.ErrorField(err))
	}
	return programURL, manifest, nil
}

// PublishFailure 写入错误清单充当熔断器：RetryAfter之前
// 即使输入变了也不允许自动重新生成。
func (p *Publisher) PublishFailure(ctx context.Context, key model.GenerationKey, cause string) {
	prior, err := p.store.GetManifest(ctx, key)
	if err != nil {
		logger.Warn("错误清单读取旧值失败", logger.ErrorField(err))
	}

	failureCount := 1
	if prior != nil {
		if slot := prior.VariantSlot(key.Variant); slot != nil && *slot != nil {
			failureCount = (*slot).FailureCount + 1
		}
	}

	retryAfter := time.Now().Add(p.cooldown)
	manifest := &model.ProgramManifest{
		GeneratedAt:  time.Now(),
		OwnerID:      key.OwnerID,
		World:        key.World,
		Language:     key.Language,
		Variant:      key.Variant,
		Version:      model.ManifestVersion,
		Error:        true,
		FailureCount: failureCount,
		RetryAfter:   &retryAfter,
	}

	if err := p.mergeAndWrite(ctx, key, manifest); err != nil {
		logger.Error("错误清单写入失败",
			logger.String("key", key.String()),
			logger.String("cause", cause),
			logger.ErrorField(err))
		return
	}
	logger.Warn("已写入错误清单",
		logger.String("key", key.String()),
		logger.Int("failureCount", failureCount),
		logger.Time("retryAfter", retryAfter))
}

// mergeAndWrite 读改写：只替换本变体槽位，另一变体原样保留
func (p *Publisher) mergeAndWrite(ctx context.Context, key model.GenerationKey, manifest *model.ProgramManifest) error {
	combined, err := p.store.GetManifest(ctx, key)
	if err != nil {
		return fmt.Errorf("read combined manifest: %w", err)
	}
	if combined == nil {
		combined = &model.CombinedManifest{}
	}

	combined.Merge(manifest)
	if err := p.store.PutManifest(ctx, key, combined); err != nil {
		return fmt.Errorf("write combined manifest: %w", err)
	}

	cache.DropManifest(ctx, key)
	return nil
}
