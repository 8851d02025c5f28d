package waveform

import (
	"fmt"

	"github.com/qosst-go/alice-core/internal/config"
	"github.com/qosst-go/alice-core/internal/symbols"
)

// Mode selects which of the two run modes described in spec.md §4.B the
// Builder executes.
type Mode int

const (
	// ModeFull runs all six stages: the transmit waveform.
	ModeFull Mode = iota
	// ModeQuantumOnly omits the pilot tones and replaces the ZC preamble
	// with N_ZC zero samples: the quantum-only waveform.
	ModeQuantumOnly
)

// Params is the subset of configuration the Builder needs, extracted so
// the DSP package does not import the config package's TOML tags.
type Params struct {
	UpsampleFactor    int
	RolloffBeta       float64
	FilterSpanSymbols int
	FrequencyShiftHz  float64
	DACRate           float64
	Pilots            []PilotTone
	ZCLength          int
	ZCRoot            int
	ZeroPadHead       int
	ZeroPadTail       int
}

// ParamsFromConfig extracts Builder parameters from a loaded configuration.
func ParamsFromConfig(cfg *config.Config) Params {
	pilots := make([]PilotTone, len(cfg.Alice.Pilots))
	for i, p := range cfg.Alice.Pilots {
		pilots[i] = PilotTone{FrequencyHz: p.FrequencyHz, PowerRatio: p.PowerRatio}
	}
	return Params{
		UpsampleFactor:    int(cfg.UpsampleFactor()),
		RolloffBeta:       cfg.Alice.RolloffBeta,
		FilterSpanSymbols: cfg.Alice.FilterSpanSymbols,
		FrequencyShiftHz:  cfg.Alice.FrequencyShiftHz,
		DACRate:           cfg.Alice.DACRate,
		Pilots:            pilots,
		ZCLength:          cfg.Alice.ZCLength,
		ZCRoot:            cfg.Alice.ZCRoot,
		ZeroPadHead:       cfg.Alice.ZeroPadHead,
		ZeroPadTail:       cfg.Alice.ZeroPadTail,
	}
}

// Builder runs the deterministic stage pipeline of spec.md §4.B. Given the
// same Params and symbol block, Build is bit-exact.
type Builder struct {
	params Params
}

// NewBuilder constructs a Builder from Params.
func NewBuilder(params Params) *Builder {
	return &Builder{params: params}
}

// Build runs symbols through the stage pipeline in the requested mode and
// returns the resulting sample sequence.
func (b *Builder) Build(syms []complex128, mode Mode) ([]complex128, error) {
	p := b.params

	upsampled, err := Upsample(syms, p.UpsampleFactor)
	if err != nil {
		return nil, err
	}

	filtered, err := RRCFilter(upsampled, p.RolloffBeta, p.UpsampleFactor, p.FilterSpanSymbols)
	if err != nil {
		return nil, err
	}

	shifted := FrequencyShift(filtered, p.FrequencyShiftHz, p.DACRate)

	var body []complex128
	var preamble []complex128
	switch mode {
	case ModeFull:
		body = PilotMultiplex(shifted, p.Pilots, p.DACRate)
		preamble = ZCPreamble(p.ZCLength, p.ZCRoot)
	case ModeQuantumOnly:
		body = shifted
		preamble = make([]complex128, p.ZCLength)
	default:
		return nil, fmt.Errorf("waveform: unknown mode %v", mode)
	}

	combined := make([]complex128, 0, len(preamble)+len(body))
	combined = append(combined, preamble...)
	combined = append(combined, body...)

	return ZeroPad(combined, p.ZeroPadHead, p.ZeroPadTail), nil
}

// SymbolSampleIndex returns the sample index within a built waveform of
// symbol i, per invariant 2 of spec.md §8.
func (p Params) SymbolSampleIndex(i int) int {
	return p.ZeroPadHead + p.ZCLength + i*p.UpsampleFactor
}

// Length returns the total sample count a waveform built from
// symbolCount symbols will have, per invariant 1 of spec.md §8.
func (p Params) Length(symbolCount int) int {
	return p.ZeroPadHead + p.ZCLength + symbolCount*p.UpsampleFactor + p.ZeroPadTail
}

// Assembler orchestrates the Symbol Source (A) and the Waveform Builder
// (B) to produce the pair of waveforms described by spec.md §4.C.
type Assembler struct {
	source      symbols.Source
	builder     *Builder
	symbolCount int
}

// NewAssembler constructs a Sequence Assembler.
func NewAssembler(source symbols.Source, builder *Builder, symbolCount int) *Assembler {
	return &Assembler{source: source, builder: builder, symbolCount: symbolCount}
}

// Result is the pair of time-aligned waveforms plus the ground-truth
// symbols that produced them.
type Result struct {
	Transmit []complex128
	Quantum  []complex128
	Symbols  []complex128
}

// Assemble draws a fresh symbol block and builds both waveforms from it.
// It enforces the invariant that both waveforms share identical length
// (spec.md §4.C).
func (a *Assembler) Assemble() (Result, error) {
	syms := a.source.Draw(a.symbolCount)

	transmit, err := a.builder.Build(syms, ModeFull)
	if err != nil {
		return Result{}, fmt.Errorf("assembler: build transmit waveform: %w", err)
	}

	quantum, err := a.builder.Build(syms, ModeQuantumOnly)
	if err != nil {
		return Result{}, fmt.Errorf("assembler: build quantum-only waveform: %w", err)
	}

	if len(transmit) != len(quantum) {
		return Result{}, fmt.Errorf("assembler: transmit/quantum waveform length mismatch: %d != %d", len(transmit), len(quantum))
	}

	return Result{Transmit: transmit, Quantum: quantum, Symbols: syms}, nil
}
