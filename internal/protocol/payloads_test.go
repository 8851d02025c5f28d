package protocol

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeSymbolsAndDecodeIndicesRoundTripSelection(t *testing.T) {
	symbols := []complex128{1 + 2i, 3 - 4i, 0.5 + 0.5i}
	encoded := EncodeSymbols(symbols)
	assert.Len(t, encoded, len(symbols)*16)

	indices, err := DecodeIndices([]byte{0, 0, 0, 0, 0, 0, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, indices)
}

func TestDecodeIndicesRejectsMisalignedContent(t *testing.T) {
	_, err := DecodeIndices([]byte{0, 0, 0})
	assert.ErrorIs(t, err, ErrFrameError)
}

func TestEncodeNPhotonRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Float64Range(0, 10).Draw(t, "n")
		suspect := rapid.Boolean().Draw(t, "suspect")

		out := EncodeNPhoton(n, suspect)
		require.Len(t, out, 9)
		assert.Equal(t, n, math.Float64frombits(binary.BigEndian.Uint64(out[:8])))
		assert.Equal(t, suspect, out[8] == 1)
	})
}

func TestDecodePEStatsRejectsWrongLength(t *testing.T) {
	_, err := DecodePEStats(make([]byte, 31))
	assert.ErrorIs(t, err, ErrFrameError)
}

func TestDecodeChangeParameterSplitsOnNul(t *testing.T) {
	name, value, err := DecodeChangeParameter([]byte("rolloff_beta\x000.3"))
	require.NoError(t, err)
	assert.Equal(t, "rolloff_beta", name)
	assert.Equal(t, "0.3", value)
}

func TestDecodeChangeParameterRequiresNul(t *testing.T) {
	_, _, err := DecodeChangeParameter([]byte("no-separator"))
	assert.ErrorIs(t, err, ErrFrameError)
}
