// SPDX-License-Identifier: MIT
/*
Package analysis summarises decoded sources for the probe command: peak and
RMS level, and the dominant frequency from an averaged magnitude spectrum.

It works on whole sources off the real-time path.
*/
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"mixdeck/internal/decode"
	applog "mixdeck/internal/log"
	"mixdeck/pkg/bitint"
)

// WindowFunc selects the FFT window.
type WindowFunc int

const (
	Hann WindowFunc = iota
	Hamming
	Blackman
	Nuttall
)

const DefaultFFTSize = 4096

// ParseWindowFunc converts a name (case-insensitive) to a WindowFunc. It
// returns Hann and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// Summary describes one source. Levels are linear in [0, 1]; the *DBFS
// variants are -Inf for silence.
type Summary struct {
	Peak       float64
	RMS        float64
	PeakDBFS   float64
	RMSDBFS    float64
	DominantHz float64
}

// Analyzer holds the FFT plan and workspace. It is not safe for concurrent use.
type Analyzer struct {
	fft       *fourier.FFT
	size      int
	window    []float64
	input     []float64
	coeffs    []complex128
	magnitude []float64 // accumulated over every analysed window
}

// NewAnalyzer pre-allocates all buffers. size must be a power of two.
func NewAnalyzer(size int, windowType WindowFunc) (*Analyzer, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d (try %d)", size, bitint.NextPowerOfTwo(size))
	}

	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1
	}
	switch windowType {
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		applog.Warnf("Analysis: Unknown window function type %d, defaulting to Hann", windowType)
		window.Hann(coeffs)
	}

	return &Analyzer{
		fft:       fourier.NewFFT(size),
		size:      size,
		window:    coeffs,
		input:     make([]float64, size),
		coeffs:    make([]complex128, size/2+1),
		magnitude: make([]float64, size/2+1),
	}, nil
}

// Size is the number of points per FFT.
func (a *Analyzer) Size() int { return a.size }

// FrequencyForBin returns the centre frequency of bin at sampleRate.
func (a *Analyzer) FrequencyForBin(bin int, sampleRate float64) float64 {
	if bin < 0 || bin >= len(a.magnitude) {
		return 0
	}
	return float64(bin) * sampleRate / float64(a.size)
}

// Summarize analyses src mixed down to mono. The spectrum is averaged over
// consecutive non-overlapping windows; a source shorter than one window is
// zero-padded.
func (a *Analyzer) Summarize(src *decode.Source) Summary {
	clear(a.magnitude)

	frames := src.Frames()
	channels := src.Channels()

	var peak, sumSquare float64
	windows := 0
	for start := 0; start < frames || windows == 0; start += a.size {
		for i := range a.size {
			frame := start + i
			var v float64
			if frame < frames {
				for c := range channels {
					v += float64(src.Sample(frame, c))
				}
				v /= float64(channels)

				peak = max(peak, math.Abs(v))
				sumSquare += v * v
			}
			a.input[i] = v * a.window[i]
		}

		a.fft.Coefficients(a.coeffs, a.input)
		for i, c := range a.coeffs {
			a.magnitude[i] += cmplx.Abs(c)
		}
		windows++
	}

	var rms float64
	if frames > 0 {
		rms = math.Sqrt(sumSquare / float64(frames))
	}

	// Bin 0 is DC.
	dominant := 0
	for i := 1; i < len(a.magnitude); i++ {
		if a.magnitude[i] > a.magnitude[dominant] || dominant == 0 {
			dominant = i
		}
	}
	if a.magnitude[dominant] == 0 {
		dominant = 0
	}

	return Summary{
		Peak:       peak,
		RMS:        rms,
		PeakDBFS:   dbfs(peak),
		RMSDBFS:    dbfs(rms),
		DominantHz: a.FrequencyForBin(dominant, float64(src.SampleRate())),
	}
}

func dbfs(level float64) float64 {
	if level <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(level)
}
