// Package symbols implements the Symbol Source (spec.md §4.A): it draws the
// complex baseband symbols whose values are later shaped into a waveform by
// package waveform, and which remain the ground truth used for parameter
// estimation.
package symbols

import (
	"math"
	"math/rand"
	"time"
)

// Source draws n i.i.d. complex symbols from a configured constellation.
type Source interface {
	Draw(n int) []complex128
}

// Option configures a Source's entropy. Production callers can omit it; a
// process-global, time-seeded generator is used by default. Tests pass
// WithRand to get reproducible symbol blocks.
type Option func(*options)

type options struct {
	rng *rand.Rand
}

// WithRand pins the source's random generator, for reproducible tests.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

func resolve(opts []Option) *rand.Rand {
	o := &options{}
	for _, apply := range opts {
		apply(o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return o.rng
}

type gaussianSource struct {
	sigma float64 // per-rail standard deviation, sigma^2 = variance/2
	rng   *rand.Rand
}

// NewGaussianSource returns i.i.d. circularly symmetric complex Gaussian
// symbols with Var(I)+Var(Q) = variance, matching spec.md §4.A.
func NewGaussianSource(variance float64, opts ...Option) Source {
	return &gaussianSource{
		sigma: math.Sqrt(variance / 2),
		rng:   resolve(opts),
	}
}

func (g *gaussianSource) Draw(n int) []complex128 {
	out := make([]complex128, n)
	for i := range out {
		out[i] = complex(g.rng.NormFloat64()*g.sigma, g.rng.NormFloat64()*g.sigma)
	}
	return out
}

type pskSource struct {
	order     int
	amplitude float64
	rng       *rand.Rand
}

// NewPSKSource returns uniform M-PSK symbols of constant amplitude
// sqrt(variance), so the empirical variance equals variance exactly, not
// just within Monte-Carlo tolerance.
func NewPSKSource(order int, variance float64, opts ...Option) Source {
	return &pskSource{
		order:     order,
		amplitude: math.Sqrt(variance),
		rng:       resolve(opts),
	}
}

func (p *pskSource) Draw(n int) []complex128 {
	out := make([]complex128, n)
	for i := range out {
		k := p.rng.Intn(p.order)
		theta := 2 * math.Pi * float64(k) / float64(p.order)
		out[i] = complex(p.amplitude*math.Cos(theta), p.amplitude*math.Sin(theta))
	}
	return out
}

type qamSource struct {
	levels []float64 // unscaled odd-integer PAM levels along one rail
	scale  float64
	rng    *rand.Rand
}

// NewQAMSource returns square M-QAM symbols (order must be an even power of
// 2, e.g. 4, 16, 64, 256) scaled so the empirical variance equals variance.
func NewQAMSource(order int, variance float64, opts ...Option) Source {
	side := int(math.Round(math.Sqrt(float64(order))))
	levels := make([]float64, side)
	for i := range levels {
		levels[i] = float64(2*i - (side - 1))
	}
	// Average power of an independent-rail PAM constellation with these
	// levels, before scaling.
	var sumSq float64
	for _, l := range levels {
		sumSq += l * l
	}
	avgPowerPerRail := sumSq / float64(side)
	return &qamSource{
		levels: levels,
		scale:  math.Sqrt(variance / (2 * avgPowerPerRail)),
		rng:    resolve(opts),
	}
}

func (q *qamSource) Draw(n int) []complex128 {
	out := make([]complex128, n)
	side := len(q.levels)
	for i := range out {
		ii := q.levels[q.rng.Intn(side)]
		qq := q.levels[q.rng.Intn(side)]
		out[i] = complex(ii*q.scale, qq*q.scale)
	}
	return out
}
