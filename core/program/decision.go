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

// Decision 生成决策的结果
type Decision struct {
	ShouldGenerate bool     `json:"shouldGenerate"`
	Reason         string   `json:"reason"`
	CoolingDown    bool     `json:"coolingDown"`
	RecordingCount int      `json:"recordingCount"`
	ManifestCount  int      `json:"manifestCount"`
	Recordings     []string `json:"-"`
}

// Checker 判断某个生成键是否需要重新生成节目
type Checker struct {
	store  storage.ObjectStore
	lister storage.RecordingLister
}

func NewChecker(store storage.ObjectStore, lister storage.RecordingLister) *Checker {
	return &Checker{store: store, lister: lister}
}

// Check 幂等决策：录音集合和上次清单一致就不重新生成。
// 清单带文件名列表时按集合对比，否则退化为计数对比。
// 熔断冷却期内即使输入变了也返回"暂不生成"。
func (c *Checker) Check(ctx context.Context, key model.GenerationKey) (Decision, error) {
	recordings, err := c.lister.ListRecordings(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("list recordings: %w", err)
	}

	manifest, err := c.loadManifest(ctx, key)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{RecordingCount: len(recordings), Recordings: recordings}

	var slot *model.ProgramManifest
	if manifest != nil {
		if s := manifest.VariantSlot(key.Variant); s != nil {
			slot = *s
		}
	}

	if slot.CoolingDown(time.Now()) {
		d.CoolingDown = true
		d.Reason = fmt.Sprintf("cooling down until %s after %d failures",
			slot.RetryAfter.Format(time.RFC3339), slot.FailureCount)
		return d, nil
	}

	if slot == nil || slot.Error {
		if len(recordings) == 0 {
			d.Reason = "no recordings yet"
			return d, nil
		}
		d.ShouldGenerate = true
		d.Reason = "no successful program yet"
		return d, nil
	}

	d.ManifestCount = slot.RecordingCount
	if len(slot.RecordingFiles) > 0 {
		if sameFileSet(slot.RecordingFiles, recordings) {
			d.Reason = "recording set unchanged"
			return d, nil
		}
		d.ShouldGenerate = true
		d.Reason = "recording set changed"
		return d, nil
	}

	if slot.RecordingCount == len(recordings) {
		d.Reason = "recording count unchanged"
		return d, nil
	}
	d.ShouldGenerate = true
	d.Reason = fmt.Sprintf("recording count changed: %d -> %d", slot.RecordingCount, len(recordings))
	return d, nil
}

func (c *Checker) loadManifest(ctx context.Context, key model.GenerationKey) (*model.CombinedManifest, error) {
	cached, err := cache.GetManifest(ctx, key)
	if err != nil {
		logger.Warn("清单缓存读取失败", logger.ErrorField(err))
	}
	if cached != nil {
		return cached, nil
	}

	manifest, err := c.store.GetManifest(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if manifest != nil {
		if err := cache.SetManifest(ctx, key, manifest, 60*time.Second); err != nil {
			logger.Warn("清单缓存写入失败", logger.ErrorField(err))
		}
	}
	return manifest, nil
}

// sameFileSet 忽略顺序对比两组文件名
func sameFileSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, f := range a {
		seen[f]++
	}
	for _, f := range b {
		if seen[f] == 0 {
			return false
		}
		seen[f]--
	}
	return true
}
