package protocol

// Level is the server's phase, encoded as a single tagged-variant ordinal
// per spec.md §9's design note ("Boolean-soup state ... becomes a single
// enumerated state variant"). The ordinals follow the partial order of
// spec.md §3, with an Authenticated phase inserted between Connected and
// Initialized — the IDENTIFICATION_REQUEST handler's auth negotiation is
// a predecessor INITIALIZATION_REQUEST requires but spec.md §3's flag
// list never names explicitly, and a PEPartial phase inserted between
// FrameSent and PEEnded to hold the QIE_ACQUISITION_ENDED..PE_FINISHED
// window ("pe_ended partial" in spec.md §4.F's table).
type Level int

const (
	StateDisconnected Level = iota
	StateConnected
	StateAuthenticated
	StateInitialized
	StateFramePrepared
	StateFrameSent
	StatePEPartial
	StatePEEnded
	StateECInitialized
	StateECEnded
	StatePAEnded
)

var levelNames = map[Level]string{
	StateDisconnected:  "disconnected",
	StateConnected:     "connected",
	StateAuthenticated: "authenticated",
	StateInitialized:   "initialized",
	StateFramePrepared: "frame_prepared",
	StateFrameSent:     "frame_sent",
	StatePEPartial:     "pe_partial",
	StatePEEnded:       "pe_ended",
	StateECInitialized: "ec_initialized",
	StateECEnded:       "ec_ended",
	StatePAEnded:       "pa_ended",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// requirement is a phase gate's minimum (or exact) predecessor level.
type requirement struct {
	level Level
	exact bool
}

// phaseTable implements spec.md §4.F step 3's check_code as a total
// function over a static table (spec.md §9). IDENTIFICATION_REQUEST and
// INITIALIZATION_REQUEST require an exact predecessor level rather than a
// minimum: both advance the Level itself, so a minimum check alone would
// let a duplicate arrive after the level has moved past it (spec.md
// §4.F's tie-break rule: a second state-advancing code in a state that
// already satisfies it is refused). The other state-advancing codes
// (QIE_REQUEST, QIE_TRIGGER, QIE_ACQUISITION_ENDED, PE_FINISHED) keep a
// minimum-level gate here and instead reject duplicates against the
// active FrameContext's per-phase completion flags, since their
// predecessor level does not uniquely identify "has this already run for
// this frame" the way it does for the two connection-scoped codes.
var phaseTable = map[Code]requirement{
	CodeIdentificationRequest:       {StateConnected, true},
	CodeInitializationRequest:       {StateAuthenticated, true},
	CodeInitializationRequestConfig: {StateAuthenticated, false},
	CodeQIERequest:                  {StateInitialized, false},
	CodeQIETrigger:                  {StateFramePrepared, false},
	CodeQIEAcquisitionEnded:         {StateFrameSent, false},
	CodePESymbolsRequest:            {StateFrameSent, false},
	CodePENPhotonRequest:            {StatePEPartial, false},
	CodePEFinished:                  {StatePEPartial, false},
	CodeECInit:                      {StatePEEnded, false},
	CodeECEnded:                     {StatePEEnded, false},
	CodePARequest:                   {StateECEnded, false},
	CodeFrameEnded:                  {StateInitialized, false},
}

// CheckCode reports whether code may be handled while the server is at
// level. Codes outside the phase-gated table (transport and general
// codes) always pass; the server never calls CheckCode for them because
// spec.md §4.F steps 1-2 dispatch those before the phase gate runs.
func CheckCode(code Code, level Level) bool {
	req, ok := phaseTable[code]
	if !ok {
		return true
	}
	if req.exact {
		return level == req.level
	}
	return level >= req.level
}

// FrameContext is the per-frame mutable record of spec.md §3.
type FrameContext struct {
	UUID    string
	Symbols []complex128
	Quantum []complex128

	NPhoton float64
	Suspect bool

	Prepared bool
	Sent     bool
	AcqEnded bool
	Finished bool
}

// ServerState is the tuple of spec.md §3, represented as the single Level
// ordinal plus the active FrameContext (at most one, per spec.md §3's
// invariant).
type ServerState struct {
	Level Level
	Frame *FrameContext
}

// NewServerState returns the server's state before any peer connects.
func NewServerState() *ServerState {
	return &ServerState{Level: StateDisconnected}
}

// Reset returns the state to its initial value, per spec.md §8 invariant 4
// ("After any sequence of frames, reset() leaves ServerState equal to the
// initial state with client_connected=false"). This does not by itself
// close the underlying TCP connection — callers that need a full
// disconnect (spec.md's SOCKET_DISCONNECTION path) close the socket
// separately and return to accept.
func (s *ServerState) Reset() {
	s.Level = StateDisconnected
	s.Frame = nil
}
