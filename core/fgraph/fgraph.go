// Package fgraph 以类型化的方式构建ffmpeg滤镜串，
// 避免在业务代码里手拼 "k=v:k=v" 字符串。
package fgraph

import (
	"strconv"
	"strings"
)

// Filter 单个滤镜及其有序参数
type Filter struct {
	Name string
	args []arg
}

type arg struct {
	key   string
	value string
}

// New 创建滤镜
func New(name string) Filter {
	return Filter{Name: name}
}

// With 追加一个参数，保持调用顺序
func (f Filter) With(key, value string) Filter {
	f.args = append(f.args[:len(f.args):len(f.args)], arg{key: key, value: value})
	return f
}

// WithFloat 追加浮点参数
func (f Filter) WithFloat(key string, value float64) Filter {
	return f.With(key, trimFloat(value))
}

// WithInt 追加整型参数
func (f Filter) WithInt(key string, value int) Filter {
	return f.With(key, strconv.Itoa(value))
}

// String 输出ffmpeg滤镜语法
func (f Filter) String() string {
	if len(f.args) == 0 {
		return f.Name
	}
	parts := make([]string, 0, len(f.args))
	for _, a := range f.args {
		parts = append(parts, a.key+"="+a.value)
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// Chain 串联滤镜链
type Chain []Filter

func (c Chain) String() string {
	parts := make([]string, 0, len(c))
	for _, f := range c {
		parts = append(parts, f.String())
	}
	return strings.Join(parts, ",")
}

// Append 返回追加后的新链
func (c Chain) Append(filters ...Filter) Chain {
	out := make(Chain, 0, len(c)+len(filters))
	out = append(out, c...)
	return append(out, filters...)
}

// trimFloat 去掉多余的尾零，-16.0 输出为 -16
func trimFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	return s
}

// Volume 音量缩放
func Volume(factor float64) Filter {
	return New("volume").WithFloat("volume", factor)
}

// HighPass 高通滤波
func HighPass(freqHz int) Filter {
	return New("highpass").WithInt("f", freqHz)
}

// LowPass 低通滤波
func LowPass(freqHz int) Filter {
	return New("lowpass").WithInt("f", freqHz)
}

// ACompressor 语音压缩器，默认参数针对人声
func ACompressor() Filter {
	return New("acompressor").
		With("threshold", "0.089").
		WithInt("ratio", 4).
		WithInt("attack", 5).
		WithInt("release", 120)
}

// AMixDurationFirst 按第一路输入的时长混音
func AMixDurationFirst(inputs int) Filter {
	return New("amix").
		WithInt("inputs", inputs).
		With("duration", "first").
		WithInt("dropout_transition", 2)
}

// LoudnormMeasure 响度测量通道，JSON结果打印到stderr
func LoudnormMeasure(targetI, targetTP, targetLRA float64) Filter {
	return New("loudnorm").
		WithFloat("I", targetI).
		WithFloat("TP", targetTP).
		WithFloat("LRA", targetLRA).
		With("print_format", "json")
}

// LoudnormApply 带测量值的第二遍响度归一化，线性模式保留动态
func LoudnormApply(targetI, targetTP, targetLRA float64, measuredI, measuredTP, measuredLRA, measuredThresh, offset string) Filter {
	return New("loudnorm").
		WithFloat("I", targetI).
		WithFloat("TP", targetTP).
		WithFloat("LRA", targetLRA).
		With("measured_I", measuredI).
		With("measured_TP", measuredTP).
		With("measured_LRA", measuredLRA).
		With("measured_thresh", measuredThresh).
		With("offset", offset).
		With("linear", "true")
}
