package core

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/classcast/classcast/internal/domain"
)

var ErrRoomClosed = errors.New("room closed")

// PublishResult reports fan-out stats for a room broadcast.
type PublishResult struct {
	SentTo  int
	Dropped int
}

// Room owns a bounded set of peers plus one engine router. Every
// mutation of membership or resource tables is serialized by mu;
// awaited engine calls never run under it. opMu serializes whole
// mutate-then-broadcast operations so room events reach every member
// in the order the state changes were applied.
type Room struct {
	ID domain.RoomID

	router   Router
	maxPeers int

	opMu sync.Mutex

	mu        sync.RWMutex
	peers     map[domain.PeerID]*Peer
	teacherID domain.PeerID
	closed    bool
}

func NewRoom(id domain.RoomID, router Router, maxPeers int) *Room {
	return &Room{
		ID:       id,
		router:   router,
		maxPeers: maxPeers,
		peers:    make(map[domain.PeerID]*Peer),
	}
}

func (r *Room) Router() Router { return r.router }

func (r *Room) RtpCapabilities() json.RawMessage { return r.router.RtpCapabilities() }

// Do runs one signaling operation against the room. Handlers wrap a
// state mutation together with its broadcasts so concurrent operations
// on the same room cannot interleave their events.
func (r *Room) Do(fn func()) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	fn()
}

// AddPeer registers a peer, enforcing the single-teacher slot and the
// capacity ceiling atomically. No events are emitted here; broadcasting
// is the caller's responsibility.
func (r *Room) AddPeer(id domain.PeerID, name string, role domain.Role, sig SignalConnection) (*Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRoomClosed
	}
	if role == domain.RoleTeacher && r.teacherID != "" {
		return nil, domain.ErrRoleConflict
	}
	if len(r.peers) >= r.maxPeers {
		return nil, domain.ErrRoomFull
	}
	p := newPeer(id, name, role, sig)
	r.peers[id] = p
	if role == domain.RoleTeacher {
		r.teacherID = id
	}
	log.Info().Str("module", "core.room").Str("room", string(r.ID)).
		Str("peer", string(id)).Str("role", string(role)).Msg("peer joined")
	return p, nil
}

// RemovePeer is the single total cleanup path for a peer: it closes
// every producer, consumer and transport the peer owns, clears the
// teacher slot if held, and deletes the peer. Idempotent.
func (r *Room) RemovePeer(id domain.PeerID) (wasTeacher, removed bool) {
	r.mu.Lock()
	p, ok := r.peers[id]
	if !ok {
		r.mu.Unlock()
		return false, false
	}
	delete(r.peers, id)
	wasTeacher = p.IsTeacher()
	if r.teacherID == id {
		r.teacherID = ""
	}
	handles := p.detachResources()
	r.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
	log.Info().Str("module", "core.room").Str("room", string(r.ID)).
		Str("peer", string(id)).Bool("was_teacher", wasTeacher).Msg("peer removed")
	return wasTeacher, true
}

// TeacherProducers returns the current teacher's producers in the order
// they were created. The view is recomputed on every call; producers
// churn independently of membership.
func (r *Room) TeacherProducers() []Producer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.peers[r.teacherID]
	if r.teacherID == "" || !ok {
		return nil
	}
	out := make([]Producer, len(t.producers))
	copy(out, t.producers)
	return out
}

// FindTeacherProducer resolves producerID against the current teacher's
// producer set only; stale ids from a departed teacher yield not-found.
func (r *Room) FindTeacherProducer(producerID string) (Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.peers[r.teacherID]
	if r.teacherID == "" || !ok {
		return nil, false
	}
	return t.producerByID(producerID)
}

func (r *Room) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *Room) IsEmpty() bool { return r.PeerCount() == 0 }

func (r *Room) HasTeacher() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.teacherID != ""
}

func (r *Room) PeerRole(id domain.PeerID) (domain.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return "", false
	}
	return p.Role, true
}

// SetTransport stores t as the peer's transport for the direction.
// An already-present transport for that direction is closed and
// replaced, so the displaced engine resource cannot leak.
func (r *Room) SetTransport(id domain.PeerID, dir Direction, t Transport) error {
	r.mu.Lock()
	p, ok := r.peers[id]
	if !ok {
		r.mu.Unlock()
		return domain.ErrNotJoined
	}
	old := p.swapTransport(dir, t)
	r.mu.Unlock()

	if old != nil {
		log.Info().Str("module", "core.room").Str("room", string(r.ID)).
			Str("peer", string(id)).Str("direction", string(dir)).Msg("replacing transport")
		old.Close()
	}
	return nil
}

func (r *Room) Transport(id domain.PeerID, dir Direction) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok || p.transport(dir) == nil {
		return nil, false
	}
	return p.transport(dir), true
}

// StoreProducer commits an engine-created producer to its owner. Fails
// when the peer left while the engine call was in flight; the caller
// must then close the orphan.
func (r *Room) StoreProducer(id domain.PeerID, pr Producer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return domain.ErrNotJoined
	}
	p.addProducer(pr)
	return nil
}

// RemoveProducer detaches the named producer from its owner and reports
// how many producers the owner still holds. The handle is returned
// unclosed; the caller closes it outside the room lock.
func (r *Room) RemoveProducer(id domain.PeerID, producerID string) (Producer, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return nil, 0, false
	}
	pr, ok := p.removeProducer(producerID)
	if !ok {
		return nil, 0, false
	}
	return pr, len(p.producers), true
}

func (r *Room) StoreConsumer(id domain.PeerID, c Consumer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return domain.ErrNotJoined
	}
	p.consumers[c.ID()] = c
	return nil
}

func (r *Room) Consumer(id domain.PeerID, consumerID string) (Consumer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return nil, false
	}
	c, ok := p.consumers[consumerID]
	return c, ok
}

// Broadcast fans a frame out to every member except the given one.
// Runs under the room lock so event order matches mutation order.
func (r *Room) Broadcast(except domain.PeerID, f Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for id, p := range r.peers {
		if id == except || p.Signal == nil {
			continue
		}
		if err := p.Signal.TrySend(f); err != nil {
			res.Dropped++
			continue
		}
		res.SentTo++
	}
	if res.Dropped > 0 {
		log.Warn().Str("module", "core.room").Str("room", string(r.ID)).
			Int("sent_to", res.SentTo).Int("dropped", res.Dropped).Msg("broadcast dropped frames")
	}
	return res
}

// Close removes every peer (cascading resource cleanup) and releases
// the router.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	peers := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.peers = make(map[domain.PeerID]*Peer)
	r.teacherID = ""
	var handles []interface{ Close() }
	for _, p := range peers {
		handles = append(handles, p.detachResources()...)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
	r.router.Close()
	log.Info().Str("module", "core.room").Str("room", string(r.ID)).Msg("room closed")
}
