package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"storycast/core/fgraph"
	"storycast/logger"
)

// FFmpegEngine 基于外部ffmpeg/ffprobe进程的引擎实现
type FFmpegEngine struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFFmpegEngine 创建ffmpeg引擎
func NewFFmpegEngine(ffmpegPath string) *FFmpegEngine {
	probe := "ffprobe"
	if dir := filepath.Dir(ffmpegPath); dir != "." && dir != "" {
		probe = filepath.Join(dir, "ffprobe")
	}
	return &FFmpegEngine{FFmpegPath: ffmpegPath, FFprobePath: probe}
}

// run 执行ffmpeg并捕获stderr，失败时stderr尾部进错误信息
func (e *FFmpegEngine) run(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, e.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("执行ffmpeg命令", logger.String("args", strings.Join(args, " ")))

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stderr.String(), fmt.Errorf("ffmpeg timed out: %w", ctx.Err())
		}
		return stderr.String(), fmt.Errorf("ffmpeg failed: %w: %s", err, tail(stderr.String(), 512))
	}
	return stderr.String(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func (e *FFmpegEngine) Silence(ctx context.Context, outPath string, seconds float64) error {
	args := []string{
		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-t", formatSeconds(seconds),
		"-q:a", "9",
		"-acodec", "libmp3lame",
		"-y", outPath,
	}
	_, err := e.run(ctx, args)
	return err
}

// Concat 用concat解复用器拼接，各输入需采样率一致
func (e *FFmpegEngine) Concat(ctx context.Context, inputs []string, outPath string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no inputs to concat")
	}
	if len(inputs) == 1 {
		return copyFile(inputs[0], outPath)
	}

	listPath := outPath + ".list.txt"
	var sb strings.Builder
	for _, in := range inputs {
		// concat列表的单引号转义
		escaped := strings.ReplaceAll(in, "'", "'\\''")
		fmt.Fprintf(&sb, "file '%s'\n", escaped)
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-ar", "44100",
		"-ac", "2",
		"-acodec", "libmp3lame",
		"-b:a", "128k",
		"-y", outPath,
	}
	_, err := e.run(ctx, args)
	return err
}

func (e *FFmpegEngine) MeasureLoudness(ctx context.Context, path string, target Target) (*Measurement, error) {
	filter := fgraph.LoudnormMeasure(target.IntegratedLUFS, target.TruePeakDB, target.LoudnessRange)
	args := []string{
		"-i", path,
		"-af", filter.String(),
		"-f", "null", "-",
	}
	stderr, err := e.run(ctx, args)
	if err != nil {
		return nil, err
	}
	return parseLoudnorm(stderr)
}

// parseLoudnorm 从stderr尾部提取loudnorm打印的JSON块
func parseLoudnorm(stderr string) (*Measurement, error) {
	start := strings.LastIndex(stderr, "{")
	end := strings.LastIndex(stderr, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no loudnorm stats in ffmpeg output")
	}

	var m Measurement
	if err := json.Unmarshal([]byte(stderr[start:end+1]), &m); err != nil {
		return nil, fmt.Errorf("failed to parse loudnorm stats: %w", err)
	}
	if m.InputI == "" {
		return nil, fmt.Errorf("loudnorm stats missing input_i")
	}
	return &m, nil
}

func (e *FFmpegEngine) Normalize(ctx context.Context, inPath, outPath string, target Target, m *Measurement) error {
	chain := fgraph.Chain{
		fgraph.HighPass(80),
		fgraph.LowPass(8000),
		fgraph.ACompressor(),
		fgraph.LoudnormApply(
			target.IntegratedLUFS, target.TruePeakDB, target.LoudnessRange,
			m.InputI, m.InputTP, m.InputLRA, m.InputThresh, m.Offset),
	}
	args := []string{
		"-i", inPath,
		"-af", chain.String(),
		"-ar", "44100",
		"-ac", "2",
		"-acodec", "libmp3lame",
		"-b:a", "128k",
		"-y", outPath,
	}
	_, err := e.run(ctx, args)
	return err
}

// MixWithBackground 背景无限循环，amix以第一路（人声）时长为准自动截断
func (e *FFmpegEngine) MixWithBackground(ctx context.Context, voicePath, bgPath, outPath string, bgVolume float64) error {
	graph := fmt.Sprintf("[1:a]%s[bg];[0:a][bg]%s[out]",
		fgraph.Volume(bgVolume).String(),
		fgraph.AMixDurationFirst(2).String())
	args := []string{
		"-i", voicePath,
		"-stream_loop", "-1",
		"-i", bgPath,
		"-filter_complex", graph,
		"-map", "[out]",
		"-ar", "44100",
		"-ac", "2",
		"-acodec", "libmp3lame",
		"-b:a", "128k",
		"-y", outPath,
	}
	_, err := e.run(ctx, args)
	return err
}

func (e *FFmpegEngine) EncodeMP3(ctx context.Context, inPath, outPath, bitrate string) error {
	args := []string{
		"-i", inPath,
		"-ar", "44100",
		"-ac", "2",
		"-acodec", "libmp3lame",
		"-b:a", bitrate,
		"-y", outPath,
	}
	_, err := e.run(ctx, args)
	return err
}

// Duration 调用ffprobe读取容器时长
func (e *FFmpegEngine) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, e.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	dur, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", probe.Format.Duration, err)
	}
	return dur, nil
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}
