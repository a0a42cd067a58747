package program

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"storycast/core/audio"
	"storycast/logger"
	"storycast/model"
	"storycast/storage"
)

// 系统资产缺失时的占位静音时长
const (
	placeholderMusicSecs  = 30.0
	placeholderPromptSecs = 5.0
	placeholderJingleSecs = 3.0
)

// Materializer 把逻辑片段逐个落地为本地音频文件。
// 下载可以并行，输出顺序由originalIndex保证。
type Materializer struct {
	store             storage.ObjectStore
	engine            audio.Engine
	defaultSilence    float64
	perSegmentTimeout time.Duration
}

func NewMaterializer(store storage.ObjectStore, engine audio.Engine, defaultSilence float64, perSegmentTimeout time.Duration) *Materializer {
	return &Materializer{
		store:             store,
		engine:            engine,
		defaultSilence:    defaultSilence,
		perSegmentTimeout: perSegmentTimeout,
	}
}

// systemPlaceholderSecs 根据路径约定判断系统资产类型，
// 返回占位时长。用户录音不在 assets/ 下，返回 (0, false)。
func systemPlaceholderSecs(sourceURL string) (float64, bool) {
	switch {
	case strings.Contains(sourceURL, "assets/music/"):
		return placeholderMusicSecs, true
	case strings.Contains(sourceURL, "assets/prompts/"):
		return placeholderPromptSecs, true
	case strings.Contains(sourceURL, "assets/jingles/"):
		return placeholderJingleSecs, true
	default:
		return 0, false
	}
}

// isSystemVoice 播报语音：assets下的语音提示，不含音乐和铃声
func isSystemVoice(sourceURL string) bool {
	return strings.Contains(sourceURL, "assets/prompts/")
}

// Materialize 解析全部片段。返回的切片满足 out[i].OriginalIndex == i。
// 录音缺失是致命错误；系统资产缺失降级为静音占位。
func (m *Materializer) Materialize(ctx context.Context, tempDir string, segments []model.Segment) ([]model.MaterializedSegment, StageOutcome, error) {
	out := make([]model.MaterializedSegment, len(segments))
	errs := make([]error, len(segments))
	outcome := StageOutcome{}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i := range segments {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// 每个片段单独限时，卡死的下载不能拖住整个工作槽
			sctx, cancel := context.WithTimeout(ctx, m.perSegmentTimeout)
			defer cancel()
			seg, note, err := m.materializeOne(sctx, tempDir, i, segments[i])
			if err != nil {
				errs[i] = err
				return
			}
			out[i] = seg
			if note != "" {
				mu.Lock()
				outcome.Degrade(note)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, outcome, fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return out, outcome, nil
}

func (m *Materializer) materializeOne(ctx context.Context, tempDir string, index int, seg model.Segment) (model.MaterializedSegment, string, error) {
	localPath := filepath.Join(tempDir, fmt.Sprintf("seg_%03d.mp3", index))

	switch seg.Kind {
	case model.SegmentSingle, model.SegmentRecording:
		note, err := m.fetchOrSynthesize(ctx, seg, localPath)
		if err != nil {
			return model.MaterializedSegment{}, "", err
		}
		return model.MaterializedSegment{
			LocalPath:     localPath,
			Kind:          model.MaterializedSingle,
			Role:          seg.Role,
			QuestionID:    seg.QuestionID,
			OriginalIndex: index,
			IsRecording:   seg.Kind == model.SegmentRecording,
			IsSystemVoice: seg.Kind == model.SegmentSingle && note == "" && isSystemVoice(seg.SourceURL),
		}, note, nil

	case model.SegmentQuestionIntro, model.SegmentPause, model.SegmentQuestionTransition, model.SegmentSilence:
		secs := seg.DurationSeconds
		if secs == 0 {
			secs = m.defaultSilence
		}
		if err := m.engine.Silence(ctx, localPath, secs); err != nil {
			return model.MaterializedSegment{}, "", fmt.Errorf("synthesize silence: %w", err)
		}
		return model.MaterializedSegment{
			LocalPath:     localPath,
			Kind:          model.MaterializedSingle,
			Role:          seg.Role,
			OriginalIndex: index,
		}, "", nil

	case model.SegmentCombineWithBackground:
		return m.materializeAnswerGroup(ctx, tempDir, index, seg, localPath)

	default:
		return model.MaterializedSegment{}, "", fmt.Errorf("unknown segment kind %q", seg.Kind)
	}
}

// fetchOrSynthesize 下载资源。系统资产404时以静音占位，
// 用户录音缺失直接报错，绝不给用户内容垫占位。
func (m *Materializer) fetchOrSynthesize(ctx context.Context, seg model.Segment, localPath string) (string, error) {
	err := m.store.DownloadToFile(ctx, seg.SourceURL, localPath)
	if err == nil {
		return "", nil
	}

	if seg.Kind == model.SegmentRecording {
		return "", fmt.Errorf("recording %s unavailable: %w", seg.SourceURL, err)
	}

	secs, isSystem := systemPlaceholderSecs(seg.SourceURL)
	if !isSystem {
		return "", fmt.Errorf("source %s unavailable: %w", seg.SourceURL, err)
	}

	logger.Warn("系统资产缺失，使用静音占位",
		logger.String("source", seg.SourceURL),
		logger.Float64("placeholderSecs", secs),
		logger.ErrorField(err))
	if synthErr := m.engine.Silence(ctx, localPath, secs); synthErr != nil {
		return "", fmt.Errorf("placeholder synthesis for %s: %w", seg.SourceURL, synthErr)
	}
	return fmt.Sprintf("placeholder for missing asset %s", seg.SourceURL), nil
}

// materializeAnswerGroup 按answerUrls顺序下载并拼接同一问题的回答，
// 背景音乐不在这里混，统一留给装配阶段全局处理。
func (m *Materializer) materializeAnswerGroup(ctx context.Context, tempDir string, index int, seg model.Segment, localPath string) (model.MaterializedSegment, string, error) {
	parts := make([]string, len(seg.AnswerURLs))
	for j, url := range seg.AnswerURLs {
		partPath := filepath.Join(tempDir, fmt.Sprintf("seg_%03d_ans_%03d.mp3", index, j))
		if err := m.store.DownloadToFile(ctx, url, partPath); err != nil {
			return model.MaterializedSegment{}, "", fmt.Errorf("answer %d (%s) unavailable: %w", j, url, err)
		}
		parts[j] = partPath
	}

	if err := m.engine.Concat(ctx, parts, localPath); err != nil {
		return model.MaterializedSegment{}, "", fmt.Errorf("concat answers for question %s: %w", seg.QuestionID, err)
	}

	return model.MaterializedSegment{
		LocalPath:     localPath,
		Kind:          model.MaterializedAnswers,
		Role:          seg.Role,
		QuestionID:    seg.QuestionID,
		OriginalIndex: index,
		IsRecording:   true,
	}, "", nil
}
