package protocol

// Server implements the control-protocol server state machine of
// spec.md §4.F. Its accept-loop shape is grounded on the teacher's
// kissnet.go `connect_listen_thread`: a net.Listener with SO_REUSEADDR
// set, accepting connections in a loop, generalized here to accept
// exactly one peer at a time per spec.md's "no multi-peer concurrency"
// non-goal.

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/qosst-go/alice-core/internal/config"
	"github.com/qosst-go/alice-core/internal/estimator"
	"github.com/qosst-go/alice-core/internal/hardware"
	"github.com/qosst-go/alice-core/internal/symbols"
	"github.com/qosst-go/alice-core/internal/waveform"
)

// AdminAction is the set of operator actions the Interrupt/Admin Handler
// (spec.md §4.G) may request. The server only ever inspects this between
// frames, never mid-handler, per spec.md §5.
type AdminAction int

const (
	AdminPrintConfig AdminAction = iota
	AdminReloadConfig
	AdminReset
	AdminStop
)

// AdminRequest is sent by the admin package's menu to the server's
// receive loop.
type AdminRequest struct {
	Action AdminAction
	// Reload, filled in by the caller before sending an AdminReloadConfig
	// request, loads the new snapshot; it returns an error on parse
	// failure so the previous snapshot is kept (spec.md §7).
	Reload func() (*config.Config, error)
	Done   chan AdminResult
}

// AdminResult reports the outcome of an AdminRequest back to the menu.
type AdminResult struct {
	Config   *config.Config // current snapshot, for AdminPrintConfig
	Refused  bool           // true if an AdminReloadConfig was refused mid-frame
	Err      error
	Stopped  bool
}

// Deps bundles everything the server needs beyond the wire protocol
// itself: the DSP pipeline, the hardware facade, the estimator's
// constants, and the policies spec.md §9's Open Questions defer to
// configuration.
type Deps struct {
	Config          *config.Config
	Authenticator   Authenticator
	Hardware        hardware.Modulator
	ChangePolicy    config.ChangePolicy
	NewSource       func(cfg *config.Config) symbols.Source
	EstimatorConfig estimator.Config
	Logger          *log.Logger
}

// Server owns the listener, the current configuration snapshot, and the
// single active ServerState.
type Server struct {
	listener net.Listener
	deps     Deps
	state    *ServerState
	admin    chan AdminRequest
	logger   *log.Logger
}

// NewServer binds the listener and constructs a Server. Binding happens
// eagerly so a port-in-use error surfaces before the caller starts
// accepting admin requests.
func NewServer(addr string, deps Deps) (*Server, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("protocol: listen on %s: %w", addr, err)
	}
	if tcpLn, ok := ln.(*net.TCPListener); ok {
		if f, err := tcpLn.File(); err == nil {
			_ = unix.SetsockoptInt(int(f.Fd()), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			f.Close()
		}
	}

	return &Server{
		listener: ln,
		deps:     deps,
		state:    NewServerState(),
		admin:    make(chan AdminRequest),
		logger:   deps.Logger,
	}, nil
}

// AdminChannel returns the channel the admin handler (spec.md §4.G) uses
// to request actions. The server only reads from it between frames.
func (s *Server) AdminChannel() chan<- AdminRequest { return s.admin }

// Addr reports the listener's bound address, useful when NewServer was
// given an ephemeral port ("127.0.0.1:0").
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Close releases the listener.
func (s *Server) Close() error { return s.listener.Close() }

// frameEvent is what the per-connection reader goroutine hands back to
// the main loop: either a decoded Wire or a terminal error.
type frameEvent struct {
	wire Wire
	err  error
}

// Run accepts one peer at a time until the admin handler requests a
// graceful stop or ctx is cancelled. It logs once when entering the wait
// for a connection, per spec.md §4.F.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("waiting for peer connection", "addr", s.listener.Addr())

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	acceptCh := make(chan acceptResult)

	go func() {
		for {
			conn, err := s.listener.Accept()
			acceptCh <- acceptResult{conn, err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case req := <-s.admin:
			if stop := s.handleAdmin(req); stop {
				return nil
			}

		case res := <-acceptCh:
			if res.err != nil {
				return fmt.Errorf("protocol: accept: %w", res.err)
			}
			if err := s.serveConn(ctx, res.conn); err != nil {
				if !errors.Is(err, errFatalHardware) {
					s.logger.Error("connection ended", "err", err)
					continue
				}
				return err
			}
		}
	}
}

var errFatalHardware = errors.New("protocol: fatal hardware failure")

// handleAdmin processes one AdminRequest between frames (spec.md §4.G,
// §5). It returns true if the server should stop entirely.
func (s *Server) handleAdmin(req AdminRequest) (stop bool) {
	result := AdminResult{Config: s.deps.Config}
	switch req.Action {
	case AdminPrintConfig:
		s.logger.Info("current configuration", "config", fmt.Sprintf("%+v", s.deps.Config))

	case AdminReloadConfig:
		if s.state.Level >= StateFramePrepared {
			s.logger.Warn("configuration reload refused: frame in progress", "state", s.state.Level)
			result.Refused = true
			break
		}
		newCfg, err := req.Reload()
		if err != nil {
			s.logger.Error("configuration reload failed, keeping previous snapshot", "err", err)
			result.Err = err
			break
		}
		s.deps.Config = newCfg
		result.Config = newCfg
		s.logger.Info("configuration reloaded")

	case AdminReset:
		s.state.Reset()
		s.logger.Info("server state reset by operator")

	case AdminStop:
		s.logger.Info("graceful stop requested by operator")
		result.Stopped = true
		stop = true
	}

	if req.Done != nil {
		req.Done <- result
	}
	return stop
}

// serveConn runs the per-frame reception pipeline of spec.md §4.F for one
// accepted peer until it disconnects or the server is asked to stop.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	s.state.Reset()
	s.state.Level = StateConnected
	s.logger.Info("peer connected", "addr", conn.RemoteAddr())

	events := make(chan frameEvent)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		reader := bufio.NewReader(conn)
		for {
			w, err := Decode(reader)
			select {
			case events <- frameEvent{w, err}:
			case <-readerDone:
				return
			}
			if err != nil && !errors.Is(err, ErrFrameError) {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case req := <-s.admin:
			if stop := s.handleAdmin(req); stop {
				return nil
			}

		case ev := <-events:
			if errors.Is(ev.err, ErrFrameError) {
				s.logger.Warn("malformed frame", "err", ev.err)
				ev = frameEvent{wire: Wire{Code: CodeFrameError}}
			}
			if ev.err != nil {
				s.logger.Info("peer disconnected", "err", ev.err)
				s.state.Reset()
				return nil
			}

			reply, fatal := s.dispatchRecovering(ctx, ev.wire)
			if reply.Code != codeReserved {
				if err := Encode(conn, reply.Code, reply.Content, nil); err != nil {
					return fmt.Errorf("protocol: write reply: %w", err)
				}
			}
			if fatal != nil {
				s.logger.Error("fatal hardware failure", "err", fatal)
				s.state.Reset()
				if s.deps.Config.Hardware.FatalOnFailure {
					return errFatalHardware
				}
				return nil
			}
			if ev.wire.Code == CodeSocketDisconnection {
				return nil
			}
		}
	}
}

// dispatchRecovering wraps dispatch with a recover so a bug in one
// handler never crashes the whole process: an internal panic becomes a
// FRAME_ERROR-equivalent reply and a state reset, logged at error level,
// matching spec.md §7's "no exception ever crosses the server loop
// boundary."
func (s *Server) dispatchRecovering(ctx context.Context, w Wire) (reply Wire, fatal error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered from panic handling frame", "code", w.Code, "panic", r)
			s.state.Reset()
			reply, fatal = Wire{Code: CodeFrameError}, nil
		}
	}()
	return s.dispatch(ctx, w)
}

// dispatch implements spec.md §4.F's four-step pipeline for a single
// incoming frame and returns the reply to send (Code == codeReserved
// means "send nothing") plus a non-nil error only for a fatal hardware
// failure that should tear down the connection.
func (s *Server) dispatch(ctx context.Context, w Wire) (reply Wire, fatal error) {
	// Step 1: transport-level error codes, terminating.
	switch w.Code {
	case CodeSocketDisconnection:
		s.state.Reset()
		return Wire{Code: codeReserved}, nil
	case CodeUnknownCode:
		return Wire{Code: CodeUnknownCommand}, nil
	case CodeAuthenticationFailure:
		s.state.Level = StateConnected
		return Wire{Code: CodeAuthenticationInvalid}, nil
	case CodeFrameError:
		return Wire{Code: CodeInvalidContent}, nil
	}

	// Every frame past IDENTIFICATION_REQUEST itself carries an auth tag
	// that must check out against its code and content (spec.md §4.H); a
	// forged or stale tag is a transport-level authentication failure,
	// not a phase-gate violation.
	if w.Code != CodeIdentificationRequest && s.state.Level >= StateAuthenticated {
		if !s.deps.Authenticator.Verify(w.Code, w.Content, w.AuthTag) {
			s.state.Level = StateConnected
			return Wire{Code: CodeAuthenticationInvalid}, nil
		}
	}

	// Step 2: general codes, valid in any state past client_connected.
	if s.state.Level >= StateConnected {
		switch w.Code {
		case CodeAbort:
			s.state.Reset()
			s.state.Level = StateConnected
			return Wire{Code: CodeAbortAck}, nil
		case CodeInvalidResponse:
			s.logger.Warn("peer reported invalid response", "reason", string(w.Content))
			return Wire{Code: CodeInvalidResponseAck}, nil
		case CodeDisconnection:
			s.state.Reset()
			s.state.Level = StateConnected
			return Wire{Code: CodeDisconnectionAck}, nil
		case CodeChangeParameterRequest:
			return s.handleChangeParameter(w)
		}
	}

	// Step 3: phase gate.
	if !CheckCode(w.Code, s.state.Level) {
		return Wire{Code: CodeUnexpectedCommand}, nil
	}

	// Step 4: handler dispatch.
	return s.handle(ctx, w)
}

func (s *Server) handleChangeParameter(w Wire) (Wire, error) {
	name, value, err := DecodeChangeParameter(w.Content)
	if err != nil {
		return Wire{Code: CodeInvalidContent}, nil
	}
	if s.deps.ChangePolicy(name, value) {
		return Wire{Code: CodeChangeParameterAccepted}, nil
	}
	return Wire{Code: CodeChangeParameterRefused}, nil
}

func (s *Server) handle(ctx context.Context, w Wire) (Wire, error) {
	switch w.Code {
	case CodeIdentificationRequest:
		return s.handleIdentification(w)
	case CodeInitializationRequest:
		return s.handleInitialization(w)
	case CodeInitializationRequestConfig:
		return Wire{Code: CodeUnexpectedCommand}, nil
	case CodeQIERequest:
		return s.handleQIERequest(ctx, w)
	case CodeQIETrigger:
		return s.handleQIETrigger(ctx)
	case CodeQIEAcquisitionEnded:
		return s.handleQIEAcquisitionEnded(ctx)
	case CodePESymbolsRequest:
		return s.handlePESymbolsRequest(w)
	case CodePENPhotonRequest:
		return s.handlePENPhotonRequest()
	case CodePEFinished:
		return s.handlePEFinished(w)
	case CodeECInit, CodeECEnded, CodePARequest:
		return Wire{Code: CodeUnexpectedCommand}, nil
	case CodeFrameEnded:
		return s.handleFrameEnded()
	default:
		return Wire{Code: CodeUnknownCommand}, nil
	}
}

func (s *Server) handleIdentification(w Wire) (Wire, error) {
	ok, reply, err := s.deps.Authenticator.Init(w.Content)
	if err != nil || !ok {
		return Wire{Code: CodeAuthenticationInvalid}, nil
	}
	s.state.Level = StateAuthenticated
	return Wire{Code: CodeIdentificationResponse, Content: reply}, nil
}

func (s *Server) handleInitialization(w Wire) (Wire, error) {
	s.state.Frame = &FrameContext{UUID: string(w.Content)}
	s.state.Level = StateInitialized
	return Wire{Code: CodeInitializationResponse}, nil
}

func (s *Server) handleQIERequest(ctx context.Context, w Wire) (Wire, error) {
	if s.state.Frame != nil && s.state.Frame.Prepared {
		return Wire{Code: CodeUnexpectedCommand}, nil
	}

	cfg := s.deps.Config
	params := waveform.ParamsFromConfig(cfg)
	builder := waveform.NewBuilder(params)
	source := s.deps.NewSource(cfg)
	assembler := waveform.NewAssembler(source, builder, cfg.Frame.SymbolCount)

	result, err := assembler.Assemble()
	if err != nil {
		return Wire{Code: CodeFrameError}, nil
	}

	if err := s.deps.Hardware.LoadWaveform(ctx, result.Transmit); err != nil {
		return s.endFrameOnHardwareError(err)
	}

	s.state.Frame.Symbols = result.Symbols
	s.state.Frame.Quantum = result.Quantum
	s.state.Frame.Prepared = true
	s.state.Level = StateFramePrepared
	return Wire{Code: CodeQIEReady}, nil
}

func (s *Server) handleQIETrigger(ctx context.Context) (Wire, error) {
	if s.state.Frame != nil && s.state.Frame.Sent {
		return Wire{Code: CodeUnexpectedCommand}, nil
	}
	if err := s.deps.Hardware.Trigger(ctx); err != nil {
		return s.endFrameOnHardwareError(err)
	}
	s.state.Frame.Sent = true
	s.state.Level = StateFrameSent
	return Wire{Code: CodeQIEEmissionStarted}, nil
}

func (s *Server) handleQIEAcquisitionEnded(ctx context.Context) (Wire, error) {
	if s.state.Frame != nil && s.state.Frame.AcqEnded {
		return Wire{Code: CodeUnexpectedCommand}, nil
	}
	if err := s.deps.Hardware.Stop(ctx); err != nil {
		return s.endFrameOnHardwareError(err)
	}

	result, err := estimator.Estimate(ctx, s.deps.Hardware, s.state.Frame.Quantum, s.deps.EstimatorConfig)
	if err != nil {
		return s.endFrameOnHardwareError(err)
	}

	s.state.Frame.NPhoton = result.NPhoton
	s.state.Frame.Suspect = result.Suspect
	s.state.Frame.AcqEnded = true
	s.state.Level = StatePEPartial
	return Wire{Code: CodeQIEEnded}, nil
}

func (s *Server) handlePESymbolsRequest(w Wire) (Wire, error) {
	indices, err := DecodeIndices(w.Content)
	if err != nil {
		return Wire{Code: CodeInvalidContent}, nil
	}
	selected := make([]complex128, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(s.state.Frame.Symbols) {
			return Wire{Code: CodeInvalidContent}, nil
		}
		selected[i] = s.state.Frame.Symbols[idx]
	}
	return Wire{Code: CodePESymbolsResponse, Content: EncodeSymbols(selected)}, nil
}

func (s *Server) handlePENPhotonRequest() (Wire, error) {
	return Wire{Code: CodePENPhotonResponse, Content: EncodeNPhoton(s.state.Frame.NPhoton, s.state.Frame.Suspect)}, nil
}

func (s *Server) handlePEFinished(w Wire) (Wire, error) {
	if s.state.Frame != nil && s.state.Frame.Finished {
		return Wire{Code: CodeUnexpectedCommand}, nil
	}
	stats, err := DecodePEStats(w.Content)
	if err != nil {
		return Wire{Code: CodeInvalidContent}, nil
	}

	s.state.Frame.Finished = true
	s.state.Level = StatePEEnded

	if stats.KeyRate > 0 {
		return Wire{Code: CodePEApproved}, nil
	}
	return Wire{Code: CodePEDenied}, nil
}

func (s *Server) handleFrameEnded() (Wire, error) {
	s.state.Frame = nil
	s.state.Level = StateInitialized
	return Wire{Code: CodeFrameEndedAck}, nil
}

// endFrameOnHardwareError implements spec.md §7's hardware-failure path:
// it logs the failure and chooses the error reply. It returns the error
// unwrapped so serveConn, after sending the reply, resets the state,
// closes the connection, and decides whether the server keeps accepting.
func (s *Server) endFrameOnHardwareError(err error) (Wire, error) {
	s.logger.Error("hardware failure during frame", "err", err)
	return Wire{Code: CodeFrameEndedAck, Content: []byte(err.Error())}, err
}
