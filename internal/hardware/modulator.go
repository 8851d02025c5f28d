// Package hardware defines the Hardware Facade (spec.md §4.D): an abstract
// capability set standing in for the laser, DAC-driven IQ modulator, VOA,
// and monitoring photodiode. Concrete drivers are out of scope (spec.md
// §1); this package ships only the mock used by the test suite and the
// control-protocol server's own unit tests, grounded on the teacher's
// pattern of a small capability interface behind production code (the
// KISS/AGW transport abstraction in kissnet.go/agwpe.go).
package hardware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

// Capability is a bit in a Modulator's capability mask.
type Capability uint8

const (
	CapModulator Capability = 1 << iota
	CapVOA
	CapLaser
	CapMonitor
)

// ErrUnsupported is returned when a capability is invoked on a facade that
// does not declare it.
var ErrUnsupported = errors.New("hardware: capability not supported")

// Modulator is the capability set of spec.md §4.D. Every method reports a
// success/failure; the control-protocol server treats any failure during a
// phase as a fatal frame error (spec.md §7).
type Modulator interface {
	Capabilities() Capability
	LoadWaveform(ctx context.Context, samples []complex128) error
	Trigger(ctx context.Context) error
	Stop(ctx context.Context) error
	VOASet(ctx context.Context, attenuationDB float64) error
	MonitoringRead(ctx context.Context) (float64, error)
	LaserOn(ctx context.Context) error
	LaserOff(ctx context.Context) error
}

// MockModulator is an in-memory stand-in for the optical source used by
// tests and by the default `[hardware] kind = "mock"` configuration. It
// loops the most recently triggered waveform and reports a synthetic
// monitoring power proportional to that waveform's mean-square power, so
// the photon-number estimator (spec.md §4.E) exercises real arithmetic
// end to end without real hardware.
type MockModulator struct {
	mu sync.Mutex

	caps Capability

	loaded    []complex128
	emitting  bool
	laserOn   bool
	voaDB     float64
	darkPower float64
	gain      float64 // synthetic monitor counts per unit mean-square power
}

// NewMockModulator returns a MockModulator with all capabilities enabled.
// darkPower is the monitor reading with nothing emitted (spec.md §4.E
// step 1's baseline), gain converts mean-square waveform power into
// monitor units for step 2.
func NewMockModulator(darkPower, gain float64) *MockModulator {
	return &MockModulator{
		caps:      CapModulator | CapVOA | CapLaser | CapMonitor,
		darkPower: darkPower,
		gain:      gain,
	}
}

func (m *MockModulator) Capabilities() Capability { return m.caps }

func (m *MockModulator) LoadWaveform(_ context.Context, samples []complex128) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = append([]complex128(nil), samples...)
	return nil
}

func (m *MockModulator) Trigger(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded == nil {
		return fmt.Errorf("hardware: trigger with no waveform loaded")
	}
	m.emitting = true
	return nil
}

func (m *MockModulator) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitting = false
	return nil
}

func (m *MockModulator) VOASet(_ context.Context, attenuationDB float64) error {
	if m.caps&CapVOA == 0 {
		return ErrUnsupported
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voaDB = attenuationDB
	return nil
}

func (m *MockModulator) MonitoringRead(_ context.Context) (float64, error) {
	if m.caps&CapMonitor == 0 {
		return 0, ErrUnsupported
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.laserOn || !m.emitting {
		return m.darkPower, nil
	}

	var sumSq float64
	for _, s := range m.loaded {
		sumSq += real(s)*real(s) + imag(s)*imag(s)
	}
	meanSq := 0.0
	if len(m.loaded) > 0 {
		meanSq = sumSq / float64(len(m.loaded))
	}

	attenuation := dbToLinear(-m.voaDB)
	return m.darkPower + m.gain*meanSq*attenuation, nil
}

func (m *MockModulator) LaserOn(_ context.Context) error {
	if m.caps&CapLaser == 0 {
		return ErrUnsupported
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.laserOn = true
	return nil
}

func (m *MockModulator) LaserOff(_ context.Context) error {
	if m.caps&CapLaser == 0 {
		return ErrUnsupported
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.laserOn = false
	return nil
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/10)
}
