package fgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterString(t *testing.T) {
	f := New("loudnorm").
		WithFloat("I", -16).
		WithFloat("TP", -1.5).
		WithInt("LRA", 11).
		With("print_format", "json")
	assert.Equal(t, "loudnorm=I=-16:TP=-1.5:LRA=11:print_format=json", f.String())
}

func TestFilterNoArgs(t *testing.T) {
	assert.Equal(t, "anull", New("anull").String())
}

func TestChainString(t *testing.T) {
	c := Chain{HighPass(80), LowPass(8000), ACompressor()}
	assert.Equal(t,
		"highpass=f=80,lowpass=f=8000,acompressor=threshold=0.089:ratio=4:attack=5:release=120",
		c.String())
}

func TestChainAppendDoesNotMutate(t *testing.T) {
	base := Chain{HighPass(80)}
	longer := base.Append(LowPass(8000))
	assert.Len(t, base, 1)
	assert.Len(t, longer, 2)
	assert.Equal(t, "highpass=f=80", base.String())
}

func TestVolume(t *testing.T) {
	assert.Equal(t, "volume=volume=0.18", Volume(0.18).String())
}

func TestAMixDurationFirst(t *testing.T) {
	assert.Equal(t, "amix=inputs=2:duration=first:dropout_transition=2", AMixDurationFirst(2).String())
}

func TestLoudnormApply(t *testing.T) {
	f := LoudnormApply(-16, -1.5, 11, "-23.1", "-4.2", "6.8", "-33.5", "0.3")
	assert.Equal(t,
		"loudnorm=I=-16:TP=-1.5:LRA=11:measured_I=-23.1:measured_TP=-4.2:measured_LRA=6.8:measured_thresh=-33.5:offset=0.3:linear=true",
		f.String())
}
