package audio

import "context"

// Target 响度归一化目标
type Target struct {
	IntegratedLUFS float64
	TruePeakDB     float64
	LoudnessRange  float64
}

// DefaultTarget 语音内容的常用目标
func DefaultTarget(integratedLUFS float64) Target {
	return Target{
		IntegratedLUFS: integratedLUFS,
		TruePeakDB:     -1.5,
		LoudnessRange:  11,
	}
}

// Measurement loudnorm第一遍的测量结果。
// ffmpeg以字符串输出这些值，原样传回第二遍即可。
type Measurement struct {
	InputI      string `json:"input_i"`
	InputTP     string `json:"input_tp"`
	InputLRA    string `json:"input_lra"`
	InputThresh string `json:"input_thresh"`
	Offset      string `json:"target_offset"`
}

// Engine 音频处理引擎接口，测试用假实现替换ffmpeg
type Engine interface {
	// Silence 生成指定秒数的静音文件
	Silence(ctx context.Context, outPath string, seconds float64) error
	// Concat 按顺序无缝拼接输入文件
	Concat(ctx context.Context, inputs []string, outPath string) error
	// MeasureLoudness 测量文件的综合响度
	MeasureLoudness(ctx context.Context, path string, target Target) (*Measurement, error)
	// Normalize 按测量值做第二遍响度归一化并叠加语音滤镜链
	Normalize(ctx context.Context, inPath, outPath string, target Target, m *Measurement) error
	// MixWithBackground 循环背景音乐压低音量后与人声混合，时长跟随人声
	MixWithBackground(ctx context.Context, voicePath, bgPath, outPath string, bgVolume float64) error
	// EncodeMP3 编码为 44.1kHz 双声道 CBR MP3
	EncodeMP3(ctx context.Context, inPath, outPath, bitrate string) error
	// Duration 探测文件时长（秒）
	Duration(ctx context.Context, path string) (float64, error)
}
