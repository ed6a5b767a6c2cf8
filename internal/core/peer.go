package core

import "github.com/classcast/classcast/internal/domain"

// Peer is one participant's server-side session state: identity, role,
// the signaling connection and the media resources it owns. All mutable
// fields are guarded by the owning Room's lock.
type Peer struct {
	ID          domain.PeerID
	DisplayName string
	Role        domain.Role
	Signal      SignalConnection

	sendTransport Transport
	recvTransport Transport
	producers     []Producer
	consumers     map[string]Consumer
}

func newPeer(id domain.PeerID, name string, role domain.Role, sig SignalConnection) *Peer {
	return &Peer{
		ID:          id,
		DisplayName: name,
		Role:        role,
		Signal:      sig,
		consumers:   make(map[string]Consumer),
	}
}

func (p *Peer) IsTeacher() bool { return p.Role == domain.RoleTeacher }

func (p *Peer) transport(dir Direction) Transport {
	if dir == DirectionSend {
		return p.sendTransport
	}
	return p.recvTransport
}

// swapTransport stores t for the direction and returns the displaced
// handle, which the caller must close.
func (p *Peer) swapTransport(dir Direction, t Transport) Transport {
	var old Transport
	if dir == DirectionSend {
		old, p.sendTransport = p.sendTransport, t
	} else {
		old, p.recvTransport = p.recvTransport, t
	}
	return old
}

func (p *Peer) addProducer(pr Producer) {
	p.producers = append(p.producers, pr)
}

func (p *Peer) producerByID(id string) (Producer, bool) {
	for _, pr := range p.producers {
		if pr.ID() == id {
			return pr, true
		}
	}
	return nil, false
}

func (p *Peer) removeProducer(id string) (Producer, bool) {
	for i, pr := range p.producers {
		if pr.ID() == id {
			p.producers = append(p.producers[:i], p.producers[i+1:]...)
			return pr, true
		}
	}
	return nil, false
}

// detachResources empties the peer's resource tables and returns every
// handle that must be closed. Called under the Room lock; the close
// calls themselves happen outside it.
func (p *Peer) detachResources() []interface{ Close() } {
	out := make([]interface{ Close() }, 0, len(p.producers)+len(p.consumers)+2)
	for _, pr := range p.producers {
		out = append(out, pr)
	}
	p.producers = nil
	for _, c := range p.consumers {
		out = append(out, c)
	}
	p.consumers = make(map[string]Consumer)
	if p.sendTransport != nil {
		out = append(out, p.sendTransport)
		p.sendTransport = nil
	}
	if p.recvTransport != nil {
		out = append(out, p.recvTransport)
		p.recvTransport = nil
	}
	return out
}
