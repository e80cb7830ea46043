package transcription

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResampler_SameRateClampsAndScales(t *testing.T) {
	r := NewResampler(16000, 16000)
	out := r.Resample([]float32{0, 0.5, 1, 1.7, -1, -3})
	assert.Equal(t, []int16{0, 16383, 32767, 32767, -32767, -32767}, out)
}

func TestResampler_Downsample(t *testing.T) {
	r := NewResampler(48000, 16000)
	in := make([]float32, 4096)
	for i := range in {
		in[i] = float32(i%3) / 2
	}
	out := r.Resample(in)

	// floor(4096 / 3)
	assert.Len(t, out, 1365)
	// Every output sample is the nearest earlier input, i*3
	for _, s := range out {
		assert.Equal(t, int16(0), s)
	}
}

func TestResampler_NonIntegerRatio(t *testing.T) {
	r := NewResampler(44100, 16000)
	in := make([]float32, 442)
	for i := range in {
		in[i] = float32(i) / 1000
	}
	out := r.Resample(in)
	assert.Len(t, out, 160)
	// i=1 -> floor(2.75625) = 2
	assert.Equal(t, int16(65), out[1])
}

func TestEncodePCM(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x00, 0xff, 0xff}, EncodePCM([]int16{1, -1}))
}
