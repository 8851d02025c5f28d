package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckCodeUntabledCodesAlwaysPass(t *testing.T) {
	assert.True(t, CheckCode(CodeAbort, StateDisconnected))
	assert.True(t, CheckCode(CodeSocketDisconnection, StatePAEnded))
}

func TestCheckCodeIdentificationRequiresExactConnectedLevel(t *testing.T) {
	assert.True(t, CheckCode(CodeIdentificationRequest, StateConnected))
	assert.False(t, CheckCode(CodeIdentificationRequest, StateAuthenticated))
	assert.False(t, CheckCode(CodeIdentificationRequest, StateDisconnected))
}

func TestCheckCodeInitializationRequiresExactAuthenticatedLevel(t *testing.T) {
	assert.True(t, CheckCode(CodeInitializationRequest, StateAuthenticated))
	assert.False(t, CheckCode(CodeInitializationRequest, StateInitialized))
	assert.False(t, CheckCode(CodeInitializationRequest, StateConnected))
}

func TestCheckCodeMinimumLevelGatesAllowLaterStates(t *testing.T) {
	assert.True(t, CheckCode(CodeQIERequest, StateInitialized))
	assert.True(t, CheckCode(CodeQIERequest, StateFramePrepared))
	assert.False(t, CheckCode(CodeQIERequest, StateConnected))
}

func TestCheckCodeIsTotal(t *testing.T) {
	codes := []Code{
		CodeIdentificationRequest, CodeInitializationRequest, CodeInitializationRequestConfig,
		CodeQIERequest, CodeQIETrigger, CodeQIEAcquisitionEnded, CodePESymbolsRequest,
		CodePENPhotonRequest, CodePEFinished, CodeECInit, CodeECEnded, CodePARequest, CodeFrameEnded,
		CodeAbort, CodeSocketDisconnection,
	}
	levels := []Level{
		StateDisconnected, StateConnected, StateAuthenticated, StateInitialized,
		StateFramePrepared, StateFrameSent, StatePEPartial, StatePEEnded,
		StateECInitialized, StateECEnded, StatePAEnded,
	}
	for _, c := range codes {
		for _, l := range levels {
			assert.NotPanics(t, func() { CheckCode(c, l) })
		}
	}
}

func TestServerStateResetClearsLevelAndFrame(t *testing.T) {
	s := NewServerState()
	s.Level = StatePEEnded
	s.Frame = &FrameContext{UUID: "abc", Prepared: true}

	s.Reset()

	assert.Equal(t, StateDisconnected, s.Level)
	assert.Nil(t, s.Frame)
}

func TestResetIsIdempotent(t *testing.T) {
	s := NewServerState()
	s.Reset()
	s.Reset()
	assert.Equal(t, StateDisconnected, s.Level)
}

func TestLevelStringUnknownFallsBack(t *testing.T) {
	assert.Equal(t, "unknown", Level(999).String())
	assert.Equal(t, "connected", StateConnected.String())
}
