package protocol

// Authenticator verifies a peer's identity during IDENTIFICATION_REQUEST
// and every subsequent frame's auth tag. The control protocol already
// defines its own handshake (spec.md §1 non-goals: "no authentication
// cryptography redesign"); this core only calls through the interface.
type Authenticator interface {
	// Init processes the IDENTIFICATION_REQUEST content (serial/version
	// plus whatever handshake material the wire protocol carries) and
	// reports whether the peer may proceed.
	Init(content []byte) (ok bool, reply []byte, err error)
	// Verify checks a frame's auth tag against its code and content.
	Verify(code Code, content, tag []byte) bool
}

// AcceptAllAuthenticator is a no-op Authenticator for tests and for
// deployments where the transport layer already authenticates the peer
// (e.g. a private point-to-point link). It is the only Authenticator this
// core ships, and cmd/alice-server passes it to the server explicitly.
type AcceptAllAuthenticator struct{}

func (AcceptAllAuthenticator) Init(content []byte) (bool, []byte, error) {
	return true, []byte("ok"), nil
}

func (AcceptAllAuthenticator) Verify(Code, []byte, []byte) bool { return true }
