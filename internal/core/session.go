package core

// Frame is a raw signaling payload as it travels over the wire.
type Frame []byte

// SessionID identifies one live signaling connection.
type SessionID string

// SignalConnection abstracts the per-client messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// SessionState tracks where a connection is in the signaling lifecycle.
type SessionState int32

const (
	StateUnjoined SessionState = iota
	StateJoined
	StateNegotiating
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Joined reports whether the session has completed a join.
func (s SessionState) Joined() bool {
	return s == StateJoined || s == StateNegotiating || s == StateActive
}
