package program

import (
	"time"

	"storycast/config"
)

// Settings 流水线调优参数的一次性快照。
// 每个任务开始时取一次，任务运行中不再变化，
// 改 .env 后的新值由下一个任务生效。
type Settings struct {
	DefaultTargetLUFS  float64
	DuckVolume         float64
	MinSegmentsForBed  int
	FetchTimeout       time.Duration
	AnalyzeTimeout     time.Duration
	NormalizeTimeout   time.Duration
	AssembleTimeout    time.Duration
	DefaultSilenceSecs float64
	AudioBitrate       string
	PublicBaseURL      string
	FailureCooldown    time.Duration
}

// CurrentSettings 从最新配置取快照，生产环境的默认参数来源
func CurrentSettings() Settings {
	cfg := config.Current()
	return Settings{
		DefaultTargetLUFS:  cfg.DefaultTargetLUFS,
		DuckVolume:         cfg.DuckVolume,
		MinSegmentsForBed:  cfg.MinSegmentsForBed,
		FetchTimeout:       cfg.FetchTimeout,
		AnalyzeTimeout:     cfg.AnalyzeTimeout,
		NormalizeTimeout:   cfg.NormalizeTimeout,
		AssembleTimeout:    cfg.AssembleTimeout,
		DefaultSilenceSecs: cfg.DefaultSilenceSecs,
		AudioBitrate:       cfg.AudioBitrate,
		PublicBaseURL:      cfg.PublicBaseURL,
		FailureCooldown:    cfg.FailureCooldown,
	}
}
