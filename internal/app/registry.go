package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/classcast/classcast/internal/core"
	"github.com/classcast/classcast/internal/domain"
)

type sessionEntry struct {
	PeerID domain.PeerID
	RoomID domain.RoomID
	State  core.SessionState
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Registry maps each live connection to its signaling session so
// dispatch and disconnect cleanup resolve in O(1).
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

// Bind registers a fresh connection in the unjoined state.
func (r *Registry) Bind(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{
		State:  core.StateUnjoined,
		Conn:   conn,
		Cancel: cancel,
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound session")
}

// BindRoom attaches the (peer, room) pair after a successful join.
func (r *Registry) BindRoom(sid core.SessionID, peerID domain.PeerID, roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.PeerID = peerID
	e.RoomID = roomID
	e.State = core.StateJoined
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).
		Str("peer", string(peerID)).Str("room", string(roomID)).Msg("session joined room")
	return true
}

// Session resolves the caller's (peer, room) pair. ok is false for
// connections that never joined or already ended.
func (r *Registry) Session(sid core.SessionID) (domain.PeerID, domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || !e.State.Joined() {
		return "", "", false
	}
	return e.PeerID, e.RoomID, true
}

func (r *Registry) State(sid core.SessionID) core.SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return core.StateClosed
	}
	return e.State
}

func (r *Registry) SetState(sid core.SessionID, st core.SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.State = st
	}
}

// ClearRoom detaches the session from its room and returns it to the
// unjoined state. The connection stays usable for a later join.
func (r *Registry) ClearRoom(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.PeerID = ""
		e.RoomID = ""
		e.State = core.StateUnjoined
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("cleared room association")
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbound session")
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	return true
}
