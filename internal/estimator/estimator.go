// Package estimator implements the Photon-Number Estimator (spec.md §4.E):
// given the quantum-only waveform of the just-finished frame, it commands
// the hardware facade through a dark baseline and a continuous quantum
// emission to derive ⟨n⟩.
package estimator

import (
	"context"
	"fmt"
	"math"

	"github.com/qosst-go/alice-core/internal/hardware"
)

// Physical constants (SI units) used to convert photodiode power into a
// photon flux, spec.md §4.E step 3.
const (
	planckConstant = 6.62607015e-34 // J*s
	speedOfLight   = 2.99792458e8   // m/s
)

// Config carries the parameters spec.md §4.E's formula needs beyond the
// waveform and the facade.
type Config struct {
	ConversionFactor   float64 // r_conv
	SymbolRate         float64 // Rₛ, Hz
	LaserWavelengthM   float64 // λ, meters
	SensorTolerance    float64 // (P_q - P_0) at or below this is treated as zero
}

// Result is the outcome of one estimation run.
type Result struct {
	NPhoton float64
	Suspect bool // true when (P_q - P_0) <= sensor tolerance
	P0      float64
	Pq      float64
}

// photonEnergy returns E_ph = h*c/λ.
func (c Config) photonEnergy() float64 {
	return planckConstant * speedOfLight / c.LaserWavelengthM
}

// Estimate runs the three numbered steps of spec.md §4.E against mod,
// using quantum as the continuously-looped quantum-only waveform of the
// frame that just finished emission.
func Estimate(ctx context.Context, mod hardware.Modulator, quantum []complex128, cfg Config) (Result, error) {
	dark := make([]complex128, len(quantum))
	if err := mod.LoadWaveform(ctx, dark); err != nil {
		return Result{}, fmt.Errorf("estimator: load dark baseline: %w", err)
	}
	if err := mod.Trigger(ctx); err != nil {
		return Result{}, fmt.Errorf("estimator: trigger dark baseline: %w", err)
	}
	p0, err := mod.MonitoringRead(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("estimator: read dark baseline: %w", err)
	}
	if err := mod.Stop(ctx); err != nil {
		return Result{}, fmt.Errorf("estimator: stop dark baseline: %w", err)
	}

	if err := mod.LoadWaveform(ctx, quantum); err != nil {
		return Result{}, fmt.Errorf("estimator: load quantum-only waveform: %w", err)
	}
	if err := mod.Trigger(ctx); err != nil {
		return Result{}, fmt.Errorf("estimator: trigger quantum-only emission: %w", err)
	}
	pq, err := mod.MonitoringRead(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("estimator: read quantum-only power: %w", err)
	}
	if err := mod.Stop(ctx); err != nil {
		return Result{}, fmt.Errorf("estimator: stop quantum-only emission: %w", err)
	}

	delta := pq - p0
	if delta <= cfg.SensorTolerance {
		return Result{NPhoton: 0, Suspect: true, P0: p0, Pq: pq}, nil
	}

	nPhoton := cfg.ConversionFactor * delta / (cfg.photonEnergy() * cfg.SymbolRate)
	return Result{NPhoton: math.Max(nPhoton, 0), Suspect: false, P0: p0, Pq: pq}, nil
}
