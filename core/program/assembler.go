package program

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"storycast/core/audio"
	"storycast/logger"
	"storycast/model"
	"storycast/storage"
)

// Assembler 把全部素材装配成最终节目：正文拼接、背景音乐
// 循环压低混入、首尾片段保持干净、统一编码。装配失败是致命的，
// 坏的成品不能发布。
type Assembler struct {
	store             storage.ObjectStore
	engine            audio.Engine
	duckVolume        float64
	minSegmentsForBed int
	timeout           time.Duration
	bitrate           string
}

func NewAssembler(store storage.ObjectStore, engine audio.Engine, duckVolume float64, minSegmentsForBed int, timeout time.Duration, bitrate string) *Assembler {
	return &Assembler{
		store:             store,
		engine:            engine,
		duckVolume:        duckVolume,
		minSegmentsForBed: minSegmentsForBed,
		timeout:           timeout,
		bitrate:           bitrate,
	}
}

// boundarySplit 按角色划分开场、正文、结尾。
// 没有任何角色标记时退回位置约定：首段开场，末段结尾。
func boundarySplit(segments []model.MaterializedSegment) (opening, body, closing []model.MaterializedSegment) {
	tagged := false
	for _, s := range segments {
		if s.Role != model.RoleBody {
			tagged = true
			break
		}
	}

	if tagged {
		for _, s := range segments {
			switch s.Role {
			case model.RoleOpening:
				opening = append(opening, s)
			case model.RoleClosing:
				closing = append(closing, s)
			default:
				body = append(body, s)
			}
		}
		return opening, body, closing
	}

	if len(segments) >= 3 {
		return segments[:1], segments[1 : len(segments)-1], segments[len(segments)-1:]
	}
	return nil, segments, nil
}

// Assemble 生成最终节目文件并返回其本地路径。
// backgroundURL为空或片段太少时跳过配乐直接拼接。
func (a *Assembler) Assemble(ctx context.Context, tempDir string, materialized []model.MaterializedSegment, backgroundURL string) (string, StageOutcome, error) {
	outcome := StageOutcome{}

	actx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	finalPath := filepath.Join(tempDir, "program.mp3")

	if len(materialized) < a.minSegmentsForBed || backgroundURL == "" {
		logger.Info("片段过少或无背景音乐，跳过配乐",
			logger.Int("segments", len(materialized)))
		flat := filepath.Join(tempDir, "flat.mp3")
		if err := a.engine.Concat(actx, localPaths(materialized), flat); err != nil {
			return "", outcome, fmt.Errorf("assembly concat: %w", err)
		}
		if err := a.engine.EncodeMP3(actx, flat, finalPath, a.bitrate); err != nil {
			return "", outcome, fmt.Errorf("assembly encode: %w", err)
		}
		return finalPath, outcome, nil
	}

	opening, body, closing := boundarySplit(materialized)

	contentPath := filepath.Join(tempDir, "content.mp3")
	if err := a.engine.Concat(actx, localPaths(body), contentPath); err != nil {
		return "", outcome, fmt.Errorf("content concat: %w", err)
	}

	bgPath, note, err := a.fetchBackground(actx, tempDir, backgroundURL)
	if err != nil {
		return "", outcome, err
	}
	if note != "" {
		outcome.Degrade(note)
	}

	mixedPath := filepath.Join(tempDir, "mixed.mp3")
	if err := a.engine.MixWithBackground(actx, contentPath, bgPath, mixedPath, a.duckVolume); err != nil {
		return "", outcome, fmt.Errorf("background mix: %w", err)
	}

	fullParts := append(localPaths(opening), mixedPath)
	fullParts = append(fullParts, localPaths(closing)...)
	fullPath := filepath.Join(tempDir, "full.mp3")
	if err := a.engine.Concat(actx, fullParts, fullPath); err != nil {
		return "", outcome, fmt.Errorf("final concat: %w", err)
	}

	if err := a.engine.EncodeMP3(actx, fullPath, finalPath, a.bitrate); err != nil {
		return "", outcome, fmt.Errorf("final encode: %w", err)
	}
	return finalPath, outcome, nil
}

// fetchBackground 背景音乐缺失时以静音占位，混入静音等同无配乐
func (a *Assembler) fetchBackground(ctx context.Context, tempDir, backgroundURL string) (string, string, error) {
	bgPath := filepath.Join(tempDir, "background.mp3")
	if err := a.store.DownloadToFile(ctx, backgroundURL, bgPath); err != nil {
		if _, isSystem := systemPlaceholderSecs(backgroundURL); !isSystem {
			return "", "", fmt.Errorf("background %s unavailable: %w", backgroundURL, err)
		}
		logger.Warn("背景音乐缺失，使用静音占位",
			logger.String("source", backgroundURL),
			logger.ErrorField(err))
		if synthErr := a.engine.Silence(ctx, bgPath, placeholderMusicSecs); synthErr != nil {
			return "", "", fmt.Errorf("background placeholder synthesis: %w", synthErr)
		}
		return bgPath, fmt.Sprintf("silent bed substituted for missing background %s", backgroundURL), nil
	}
	return bgPath, "", nil
}

func localPaths(segments []model.MaterializedSegment) []string {
	paths := make([]string, 0, len(segments))
	for _, s := range segments {
		paths = append(paths, s.LocalPath)
	}
	return paths
}
