// Package waveform implements the Waveform Builder (spec.md §4.B) as a
// sequence of pure value-to-value stages, and the Sequence Assembler
// (spec.md §4.C) that drives a symbol source through them.
//
// The root-raised-cosine math is grounded on the teacher's `dsp.go`
// (`rrc`/`gen_rrc_lowpass`), which the teacher already uses to shape its
// 9600 baud modem; it is reimplemented here without cgo or package-level
// mutable state.
package waveform

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Stage is a pure transform from one complex sample sequence to the next,
// per spec.md §9's "pipeline of DSP stages" design note.
type Stage func([]complex128) ([]complex128, error)

// Pipeline runs a sequence of Stages in order.
type Pipeline []Stage

// Run applies every stage to x in order, threading errors through.
func (p Pipeline) Run(x []complex128) ([]complex128, error) {
	var err error
	for _, stage := range p {
		x, err = stage(x)
		if err != nil {
			return nil, err
		}
	}
	return x, nil
}

// Upsample inserts L-1 zeros between consecutive samples (spec.md §4.B
// step 1). L must be a positive integer; spec.md §3 requires f_DAC/Rₛ to
// already have been validated as integral at config load time.
func Upsample(x []complex128, l int) ([]complex128, error) {
	if l < 1 {
		return nil, fmt.Errorf("waveform: upsample factor %d is not a positive integer", l)
	}
	out := make([]complex128, len(x)*l)
	for i, s := range x {
		out[i*l] = s
	}
	return out, nil
}

// rrcImpulse evaluates the root-raised-cosine impulse response at t, in
// units of symbol duration, with roll-off a, using the closed form and its
// limits at t = 0 and |4at| = 1. Adapted from the shape of the teacher's
// dsp.go `rrc` function.
func rrcImpulse(t, a float64) float64 {
	switch {
	case math.Abs(t) < 1e-9:
		return 1 - a + 4*a/math.Pi
	case a > 0 && math.Abs(math.Abs(4*a*t)-1) < 1e-9:
		return a / math.Sqrt2 * ((1+2/math.Pi)*math.Sin(math.Pi/(4*a)) + (1-2/math.Pi)*math.Cos(math.Pi/(4*a)))
	default:
		num := math.Sin(math.Pi*t*(1-a)) + 4*a*t*math.Cos(math.Pi*t*(1+a))
		den := math.Pi * t * (1 - math.Pow(4*a*t, 2))
		return num / den
	}
}

// rrcTaps generates filterTaps RRC coefficients for the given roll-off and
// samples-per-symbol, normalized for unity DC gain. Ported from the
// teacher's dsp.go `gen_rrc_lowpass`.
func rrcTaps(filterTaps int, rolloff float64, samplesPerSymbol float64) []float64 {
	taps := make([]float64, filterTaps)
	center := (float64(filterTaps) - 1) / 2
	for k := range taps {
		t := (float64(k) - center) / samplesPerSymbol
		taps[k] = rrcImpulse(t, rolloff)
	}

	var sum float64
	for _, v := range taps {
		sum += v
	}
	for i := range taps {
		taps[i] /= sum
	}
	return taps
}

func convolveReal(x []complex128, taps []float64) []complex128 {
	out := make([]complex128, len(x)+len(taps)-1)
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		for j, h := range taps {
			out[i+j] += xi * complex(h, 0)
		}
	}
	return out
}

// RRCFilter convolves x with a length span*l+1 root-raised-cosine kernel
// and compensates the filter's group delay (span*l/2 samples) so that
// symbol index i lands at sample index i*l in the returned signal
// (spec.md §4.B step 2, invariant 2 of spec.md §8).
func RRCFilter(x []complex128, beta float64, l, span int) ([]complex128, error) {
	if span < 1 {
		return nil, fmt.Errorf("waveform: filter span %d must be positive", span)
	}
	filterLen := span*l + 1
	taps := rrcTaps(filterLen, beta, float64(l))
	delay := filterLen / 2

	full := convolveReal(x, taps)
	return full[delay : delay+len(x)], nil
}

// FrequencyShift multiplies x by a unit-amplitude complex exponential at
// frequency fs relative to fDAC (spec.md §4.B step 3). Callers must ensure
// fs clears half the signal bandwidth at config-load time.
func FrequencyShift(x []complex128, fs, fDAC float64) []complex128 {
	out := make([]complex128, len(x))
	for n, s := range x {
		phase := 2 * math.Pi * fs * float64(n) / fDAC
		out[n] = s * cmplx.Exp(complex(0, phase))
	}
	return out
}

// PilotTone is a single classical pilot tone multiplexed with the quantum
// signal (spec.md §4.B step 4).
type PilotTone struct {
	FrequencyHz float64
	PowerRatio  float64
}

func meanSquare(x []complex128) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, s := range x {
		sum += real(s)*real(s) + imag(s)*imag(s)
	}
	return sum / float64(len(x))
}

// PilotMultiplex adds len(pilots) complex exponentials to x, each scaled
// from x's post-shift mean-square power by the configured power ratio
// (spec.md §4.B step 4).
func PilotMultiplex(x []complex128, pilots []PilotTone, fDAC float64) []complex128 {
	out := make([]complex128, len(x))
	copy(out, x)
	if len(pilots) == 0 {
		return out
	}

	ms := meanSquare(x)
	for _, p := range pilots {
		amplitude := math.Sqrt(p.PowerRatio * ms)
		for n := range out {
			phase := 2 * math.Pi * p.FrequencyHz * float64(n) / fDAC
			out[n] += complex(amplitude*math.Cos(phase), amplitude*math.Sin(phase))
		}
	}
	return out
}

// ZCPreamble generates the length-n Zadoff-Chu sequence with root u
// (spec.md §4.B step 5). Callers must ensure gcd(u, n) = 1 at config-load
// time so the constant-amplitude zero-autocorrelation property holds.
func ZCPreamble(n, u int) []complex128 {
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		theta := -math.Pi * float64(u) * float64(k) * float64(k+1) / float64(n)
		out[k] = cmplx.Exp(complex(0, theta))
	}
	return out
}

// Autocorrelation computes the circular autocorrelation of seq, used only
// by tests to check invariant 3 of spec.md §8 — it is not part of the
// production waveform path.
func Autocorrelation(seq []complex128) []complex128 {
	n := len(seq)
	out := make([]complex128, n)
	for lag := 0; lag < n; lag++ {
		var sum complex128
		for i := 0; i < n; i++ {
			sum += seq[(i+lag)%n] * cmplx.Conj(seq[i])
		}
		out[lag] = sum
	}
	return out
}

// ZeroPad prepends head and appends tail zero samples to x (spec.md §4.B
// step 6).
func ZeroPad(x []complex128, head, tail int) []complex128 {
	out := make([]complex128, head+len(x)+tail)
	copy(out[head:], x)
	return out
}
