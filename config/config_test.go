package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, -16.0, cfg.DefaultTargetLUFS)
	assert.Equal(t, 0.18, cfg.DuckVolume)
	assert.Equal(t, 3, cfg.MinSegmentsForBed)
	assert.Equal(t, 20*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 15*time.Second, cfg.AnalyzeTimeout)
	assert.Equal(t, 30*time.Second, cfg.NormalizeTimeout)
	assert.Equal(t, 60*time.Second, cfg.AssembleTimeout)
	assert.Equal(t, 1, cfg.MaxConcurrentJobs)
	assert.Equal(t, "128k", cfg.AudioBitrate)
	assert.Equal(t, "8080", cfg.ServerPort)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TARGET_LUFS", "-18.5")
	t.Setenv("DUCK_VOLUME", "0.25")
	t.Setenv("MAX_CONCURRENT_JOBS", "2")
	t.Setenv("ASSEMBLE_TIMEOUT_SECONDS", "90")
	t.Setenv("MINIO_BUCKET", "audio-programs")

	cfg := Load()
	assert.Equal(t, -18.5, cfg.DefaultTargetLUFS)
	assert.Equal(t, 0.25, cfg.DuckVolume)
	assert.Equal(t, 2, cfg.MaxConcurrentJobs)
	assert.Equal(t, 90*time.Second, cfg.AssembleTimeout)
	assert.Equal(t, "audio-programs", cfg.MinioBucket)
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("TARGET_LUFS", "loud")
	t.Setenv("MAX_CONCURRENT_JOBS", "many")

	cfg := Load()
	assert.Equal(t, -16.0, cfg.DefaultTargetLUFS)
	assert.Equal(t, 1, cfg.MaxConcurrentJobs)
}

func TestCurrentReflectsLatestLoad(t *testing.T) {
	Load()
	t.Setenv("DUCK_VOLUME", "0.3")
	Load()

	assert.Equal(t, 0.3, Current().DuckVolume)
}
