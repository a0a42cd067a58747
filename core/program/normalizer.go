package program

import (
	"context"
	"fmt"
	"time"

	"storycast/core/audio"
	"storycast/logger"
	"storycast/model"
)

// Normalizer 把用户录音拉到分析器给出的目标响度，
// 并叠加固定的语音清理链。系统语音保持作者设定的电平不动。
type Normalizer struct {
	engine         audio.Engine
	perFileTimeout time.Duration
}

func NewNormalizer(engine audio.Engine, perFileTimeout time.Duration) *Normalizer {
	return &Normalizer{engine: engine, perFileTimeout: perFileTimeout}
}

// Normalize 逐个处理录音文件。目标响度作为参数传入，
// 不放全局状态，保持每次调用独立可测。失败或超时的文件
// 保留原样继续装配，绝不因单个文件失败整个任务。
func (n *Normalizer) Normalize(ctx context.Context, segments []model.MaterializedSegment, targetLUFS float64) StageOutcome {
	outcome := StageOutcome{}
	target := audio.DefaultTarget(targetLUFS)

	for i := range segments {
		seg := &segments[i]
		if !seg.IsRecording {
			continue
		}

		if err := n.normalizeOne(ctx, seg.LocalPath, target); err != nil {
			outcome.Degrade(fmt.Sprintf("segment %d published un-normalized: %v", seg.OriginalIndex, err))
			logger.Warn("归一化失败，文件原样保留",
				logger.String("path", seg.LocalPath),
				logger.Float64("targetLUFS", targetLUFS),
				logger.ErrorField(err))
		}
	}
	return outcome
}

// normalizeOne 两遍loudnorm：先测量再按测量值线性归一，
// 成功后用归一化结果原地替换输入文件。
func (n *Normalizer) normalizeOne(ctx context.Context, path string, target audio.Target) error {
	nctx, cancel := context.WithTimeout(ctx, n.perFileTimeout)
	defer cancel()

	m, err := n.engine.MeasureLoudness(nctx, path, target)
	if err != nil {
		return fmt.Errorf("measurement pass: %w", err)
	}

	normalized := path + ".norm.mp3"
	if err := n.engine.Normalize(nctx, path, normalized, target, m); err != nil {
		return fmt.Errorf("normalization pass: %w", err)
	}

	if err := replaceFile(normalized, path); err != nil {
		return fmt.Errorf("swap normalized file: %w", err)
	}
	return nil
}
