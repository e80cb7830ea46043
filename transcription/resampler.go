package transcription

import (
	"encoding/binary"
	"math"
)

// TargetSampleRate is the rate the speech service expects
const TargetSampleRate = 16000

// Resampler converts float32 samples in [-1, 1] at the capture rate into
// 16-bit PCM at the output rate. Downsampling keeps the nearest earlier
// sample, with no filtering.
type Resampler struct {
	inputRate  int
	outputRate int
	ratio      float64
}

// NewResampler creates a resampler from inputRate to outputRate
func NewResampler(inputRate, outputRate int) *Resampler {
	if inputRate <= 0 {
		inputRate = outputRate
	}
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// Resample converts one chunk. The output has floor(len(data)/ratio) samples.
func (r *Resampler) Resample(data []float32) []int16 {
	if r.inputRate == r.outputRate {
		out := make([]int16, len(data))
		for i, s := range data {
			out[i] = toPCM(s)
		}
		return out
	}

	n := int(math.Floor(float64(len(data)) / r.ratio))
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		before := int(math.Floor(float64(i) * r.ratio))
		out[i] = toPCM(data[before])
	}
	return out
}

func toPCM(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * 0x7FFF)
}

// EncodePCM lays the samples out little-endian, as sent on the wire
func EncodePCM(samples []int16) []byte {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return buf
}
