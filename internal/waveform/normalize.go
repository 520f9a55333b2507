// Package waveform reduces raw amplitude samples to fixed-width bar heights.
package waveform

import "math"

// MaxBars caps BarCount for absurdly wide tracks.
const MaxBars = 1 << 16

// BarCount is how many bars of barWidth separated by spacing fit into trackWidth.
// The result is in [0, MaxBars].
func BarCount(trackWidth, barWidth, spacing float64) int {
	step := barWidth + spacing
	if !(step > 0) || !(trackWidth > 0) || math.IsInf(trackWidth, 0) {
		return 0
	}
	n := math.Floor(trackWidth / step)
	if math.IsNaN(n) || n < 0 {
		return 0
	}
	return int(math.Min(n, MaxBars))
}

// Normalize averages source into BarCount(trackWidth, barWidth, spacing)
// contiguous chunks and scales the result so the loudest bar is 1.
//
// Chunk i covers source[floor(i*n/k) : floor((i+1)*n/k)], so every sample is
// used exactly once. When there are more bars than samples some chunks are
// empty; an empty chunk repeats source[floor(i*n/k)], which stretches the
// recording across the track instead of leaving gaps. Negative samples count
// as silence. The result is relative to the loudest bar in view, not an
// absolute loudness, and is all zeros when the source is silent.
func Normalize(source []float32, trackWidth, barWidth, spacing float64) []float32 {
	k := BarCount(trackWidth, barWidth, spacing)
	n := len(source)
	if n == 0 || k == 0 {
		return []float32{}
	}

	bars := make([]float64, k)
	var peak float64
	for i := 0; i < k; i++ {
		start := i * n / k
		end := (i + 1) * n / k

		var v float64
		if end > start {
			var sum float64
			for _, s := range source[start:end] {
				sum += sample(s)
			}
			v = sum / float64(end-start)
		} else {
			v = sample(source[min(start, n-1)])
		}

		bars[i] = v
		if v > peak {
			peak = v
		}
	}

	out := make([]float32, k)
	if peak == 0 {
		return out
	}
	for i, v := range bars {
		out[i] = float32(v / peak)
	}
	return out
}

func sample(s float32) float64 {
	v := float64(s)
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
