package waveform

import (
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/qosst-go/alice-core/internal/symbols"
)

func testParams() Params {
	return Params{
		UpsampleFactor:    4,
		RolloffBeta:       0.2,
		FilterSpanSymbols: 8,
		FrequencyShiftHz:  2_000_000,
		DACRate:           4_000_000,
		Pilots:            []PilotTone{{FrequencyHz: 500_000, PowerRatio: 0.1}},
		ZCLength:          63,
		ZCRoot:            25,
		ZeroPadHead:       16,
		ZeroPadTail:       16,
	}
}

func TestBuilderProducesLengthMatchingFormula(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := testParams()
		n := rapid.IntRange(1, 64).Draw(t, "n")

		syms := make([]complex128, n)
		for i := range syms {
			syms[i] = complex(1, 0)
		}

		b := NewBuilder(p)
		out, err := b.Build(syms, ModeFull)
		require.NoError(t, err)
		assert.Len(t, out, p.Length(n))
	})
}

func TestBuilderQuantumOnlyOmitsPilotsAndPreamble(t *testing.T) {
	p := testParams()
	syms := make([]complex128, 32)
	for i := range syms {
		syms[i] = complex(1, 0)
	}

	b := NewBuilder(p)
	out, err := b.Build(syms, ModeQuantumOnly)
	require.NoError(t, err)
	assert.Len(t, out, p.Length(len(syms)))

	// The preamble region should be exactly zero in quantum-only mode.
	for i := p.ZeroPadHead; i < p.ZeroPadHead+p.ZCLength; i++ {
		assert.Equal(t, complex128(0), out[i])
	}
}

func TestSymbolSampleIndexLandsOnUpsampledGrid(t *testing.T) {
	p := testParams()
	for i := 0; i < 5; i++ {
		idx := p.SymbolSampleIndex(i)
		assert.Equal(t, p.ZeroPadHead+p.ZCLength+i*p.UpsampleFactor, idx)
	}
}

func TestAssemblerProducesEqualLengthWaveforms(t *testing.T) {
	p := testParams()
	source := symbols.NewGaussianSource(1.0)
	builder := NewBuilder(p)
	a := NewAssembler(source, builder, 128)

	result, err := a.Assemble()
	require.NoError(t, err)
	assert.Equal(t, len(result.Transmit), len(result.Quantum))
	assert.Len(t, result.Symbols, 128)
}

func TestBuildRejectsUnknownMode(t *testing.T) {
	p := testParams()
	b := NewBuilder(p)
	_, err := b.Build([]complex128{1}, Mode(99))
	assert.Error(t, err)
}

func TestFullModeCarriesMorePowerThanQuantumOnly(t *testing.T) {
	p := testParams()
	syms := make([]complex128, 256)
	for i := range syms {
		syms[i] = complex(1, 0)
	}
	b := NewBuilder(p)

	full, err := b.Build(syms, ModeFull)
	require.NoError(t, err)
	quantum, err := b.Build(syms, ModeQuantumOnly)
	require.NoError(t, err)

	var fullPower, quantumPower float64
	for i := range full {
		fullPower += cmplx.Abs(full[i]) * cmplx.Abs(full[i])
		quantumPower += cmplx.Abs(quantum[i]) * cmplx.Abs(quantum[i])
	}
	assert.Greater(t, fullPower, quantumPower)
}
