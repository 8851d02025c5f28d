package protocol

// Concrete content encodings for the codes this core handles. spec.md
// treats the wire protocol as an inherited black box (§4.H); these
// encodings are this core's own internal representation of "content",
// analogous to how the teacher's kissutil.go decides what bytes go inside
// an already-framed KISS packet.

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeSymbols serializes a slice of complex128 as consecutive
// (real, imag) float64 big-endian pairs, for PE_SYMBOLS_RESPONSE.
func EncodeSymbols(symbols []complex128) []byte {
	out := make([]byte, 0, len(symbols)*16)
	for _, s := range symbols {
		out = binary.BigEndian.AppendUint64(out, math.Float64bits(real(s)))
		out = binary.BigEndian.AppendUint64(out, math.Float64bits(imag(s)))
	}
	return out
}

// DecodeIndices parses PE_SYMBOLS_REQUEST content: consecutive uint32
// big-endian indices.
func DecodeIndices(content []byte) ([]int, error) {
	if len(content)%4 != 0 {
		return nil, fmt.Errorf("%w: indices content length %d not a multiple of 4", ErrFrameError, len(content))
	}
	out := make([]int, len(content)/4)
	for i := range out {
		out[i] = int(binary.BigEndian.Uint32(content[i*4:]))
	}
	return out, nil
}

// EncodeNPhoton serializes a PE_NPHOTON_RESPONSE payload.
func EncodeNPhoton(nPhoton float64, suspect bool) []byte {
	out := make([]byte, 9)
	binary.BigEndian.PutUint64(out[:8], math.Float64bits(nPhoton))
	if suspect {
		out[8] = 1
	}
	return out
}

// PEStats is the payload of a PE_FINISHED frame: the channel parameters
// Bob estimated plus the resulting key rate (spec.md §4.F's table).
type PEStats struct {
	Transmittance float64
	ExcessNoise   float64
	Efficiency    float64
	KeyRate       float64
}

// DecodePEStats parses a PE_FINISHED payload: four big-endian float64s in
// (T, ξ, η, R_key) order.
func DecodePEStats(content []byte) (PEStats, error) {
	if len(content) != 32 {
		return PEStats{}, fmt.Errorf("%w: PE_FINISHED content length %d != 32", ErrFrameError, len(content))
	}
	return PEStats{
		Transmittance: math.Float64frombits(binary.BigEndian.Uint64(content[0:8])),
		ExcessNoise:   math.Float64frombits(binary.BigEndian.Uint64(content[8:16])),
		Efficiency:    math.Float64frombits(binary.BigEndian.Uint64(content[16:24])),
		KeyRate:       math.Float64frombits(binary.BigEndian.Uint64(content[24:32])),
	}, nil
}

// DecodeChangeParameter parses a CHANGE_PARAMETER_REQUEST payload: a NUL
// separated name/value pair.
func DecodeChangeParameter(content []byte) (name, value string, err error) {
	for i, b := range content {
		if b == 0 {
			return string(content[:i]), string(content[i+1:]), nil
		}
	}
	return "", "", fmt.Errorf("%w: change-parameter content missing NUL separator", ErrFrameError)
}
