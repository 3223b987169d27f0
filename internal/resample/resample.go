// Package resample converts linear PCM between the audio device's native
// sample rate (typically 48 kHz) and the 8 kHz rate G.711 RTP carries,
// using linear interpolation.
package resample

import (
	"errors"
	"sync"
)

// Converter converts PCM between the device rate and the RTP rate. The
// pipeline depends only on this contract, so a higher-quality
// implementation can replace the linear one without touching callers.
type Converter interface {
	Downsample(input []int16) []int16
	Upsample(input []int16) []int16
}

var _ Converter = (*Resampler)(nil)

// NewSinc would construct a windowed-sinc Converter. Only the linear
// implementation exists; the constructor is the seam where one would go.
func NewSinc(inputRate, outputRate uint32) (Converter, error) {
	return nil, errors.New("resample: sinc converter not implemented")
}

// Resampler converts audio between two fixed sample rates.
type Resampler struct {
	inputRate  uint32
	outputRate uint32

	mu                 sync.Mutex
	downsamplePosition float64
}

// New creates a resampler between inputRate and outputRate.
func New(inputRate, outputRate uint32) *Resampler {
	return &Resampler{inputRate: inputRate, outputRate: outputRate}
}

// Downsample converts input from r.inputRate to r.outputRate (e.g. 48kHz
// mic capture down to the 8kHz RTP rate). Phase position carries across
// calls so consecutive chunks stay aligned.
func (r *Resampler) Downsample(input []int16) []int16 {
	if len(input) == 0 {
		return nil
	}

	ratio := float64(r.inputRate) / float64(r.outputRate)
	outputLen := int(float64(len(input)) / ratio)
	output := make([]int16, 0, outputLen)

	r.mu.Lock()
	position := r.downsamplePosition

	for i := 0; i < outputLen; i++ {
		srcIdx := int(position)
		frac := position - float64(srcIdx)

		if srcIdx+1 < len(input) {
			s1 := float64(input[srcIdx])
			s2 := float64(input[srcIdx+1])
			output = append(output, clampToInt16(s1+(s2-s1)*frac))
		} else if srcIdx < len(input) {
			output = append(output, input[srcIdx])
		}

		position += ratio
	}

	position -= float64(len(input))
	if position < 0 {
		position = 0
	}
	r.downsamplePosition = position
	r.mu.Unlock()

	return output
}

// Upsample converts input from r.outputRate to r.inputRate (e.g. the 8kHz
// RTP rate up to 48kHz for playback). Stateless: each call starts at phase
// zero, matching the source material's per-call behavior.
func (r *Resampler) Upsample(input []int16) []int16 {
	if len(input) == 0 {
		return nil
	}

	ratio := float64(r.inputRate) / float64(r.outputRate)
	outputLen := int(float64(len(input)) * ratio)
	output := make([]int16, 0, outputLen)

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) / ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx+1 < len(input) {
			s1 := float64(input[srcIdx])
			s2 := float64(input[srcIdx+1])
			output = append(output, clampToInt16(s1+(s2-s1)*frac))
		} else if srcIdx < len(input) {
			output = append(output, input[srcIdx])
		}
	}

	return output
}

func clampToInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
