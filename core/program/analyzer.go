package program

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"storycast/core/audio"
	"storycast/logger"
	"storycast/model"
)

// Analyzer 从系统播报语音里测出本次节目的响度参考值
type Analyzer struct {
	engine         audio.Engine
	defaultLUFS    float64
	perFileTimeout time.Duration
}

func NewAnalyzer(engine audio.Engine, defaultLUFS float64, perFileTimeout time.Duration) *Analyzer {
	return &Analyzer{engine: engine, defaultLUFS: defaultLUFS, perFileTimeout: perFileTimeout}
}

// TargetLevel 对所有系统语音文件测综合响度并取算术平均。
// 单个文件测量失败或超时只是剔除出平均，不会让任务失败；
// 一个系统语音都没有（或全部失败）时回退到默认目标。
func (a *Analyzer) TargetLevel(ctx context.Context, segments []model.MaterializedSegment) (float64, StageOutcome) {
	outcome := StageOutcome{}
	target := audio.DefaultTarget(a.defaultLUFS)

	var sum float64
	var measured int
	for _, seg := range segments {
		if !seg.IsSystemVoice {
			continue
		}

		lufs, err := a.measureOne(ctx, seg.LocalPath, target)
		if err != nil {
			outcome.Degrade(fmt.Sprintf("loudness measurement skipped for segment %d: %v", seg.OriginalIndex, err))
			logger.Warn("响度测量失败，剔除出平均",
				logger.String("path", seg.LocalPath),
				logger.ErrorField(err))
			continue
		}
		sum += lufs
		measured++
	}

	if measured == 0 {
		if outcome.Degraded {
			logger.Warn("全部系统语音测量失败，使用默认响度目标",
				logger.Float64("defaultLUFS", a.defaultLUFS))
		}
		return a.defaultLUFS, outcome
	}

	mean := sum / float64(measured)
	logger.Info("响度参考值已确定",
		logger.Float64("targetLUFS", mean),
		logger.Int("measuredFiles", measured))
	return mean, outcome
}

func (a *Analyzer) measureOne(ctx context.Context, path string, target audio.Target) (float64, error) {
	mctx, cancel := context.WithTimeout(ctx, a.perFileTimeout)
	defer cancel()

	m, err := a.engine.MeasureLoudness(mctx, path, target)
	if err != nil {
		return 0, err
	}

	lufs, err := strconv.ParseFloat(m.InputI, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid input_i %q: %w", m.InputI, err)
	}
	return lufs, nil
}
