/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package audio

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	vadFrameSize       = 512
	vadMinVoicedFrames = 3
	vadEnergyFloor     = 100.0
	vadFluxEpsilon     = 1e-6
)

// VAD flags clips that contain speech using spectral flux. A frame is voiced
// when it is loud enough and its spectrum moves much more than the clip's
// median, which rejects both silence and steady hum.
type VAD struct {
	Threshold float64
}

// NewVAD creates a detector; threshold is the flux multiple over the median
func NewVAD(threshold float64) *VAD {
	if threshold <= 0 {
		threshold = 1.5
	}
	return &VAD{Threshold: threshold}
}

// HasSpeech reports whether samples contain enough voiced frames
func (v *VAD) HasSpeech(samples []int16) bool {
	frames := len(samples) / vadFrameSize
	if frames < vadMinVoicedFrames {
		return false
	}

	flux := make([]float64, frames)
	loud := make([]bool, frames)
	var prev []float64

	for i := 0; i < frames; i++ {
		frame := samples[i*vadFrameSize : (i+1)*vadFrameSize]

		loud[i] = rms(frame) >= vadEnergyFloor

		mags := spectrum(frame)
		if prev != nil {
			var sum float64
			for k := range mags {
				if d := mags[k] - prev[k]; d > 0 {
					sum += d
				}
			}
			flux[i] = sum
		}
		prev = mags
	}

	baseline := median(flux) + vadFluxEpsilon

	voiced := 0
	for i := range flux {
		if loud[i] && flux[i] > v.Threshold*baseline {
			voiced++
		}
	}
	return voiced >= vadMinVoicedFrames
}

func spectrum(frame []int16) []float64 {
	x := make([]float64, len(frame))
	for i, s := range frame {
		x[i] = float64(s)
	}
	window.Apply(x, window.Hann)

	bins := fft.FFTReal(x)
	half := len(bins)/2 + 1
	mags := make([]float64, half)
	for i := 0; i < half; i++ {
		mags[i] = cmplx.Abs(bins[i])
	}
	return mags
}

func rms(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
