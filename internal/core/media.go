package core

import (
	"encoding/json"

	"github.com/classcast/classcast/internal/domain"
)

// Media engine ports. The orchestration layer never inspects negotiation
// payloads (ICE, DTLS, RTP parameters/capabilities); it relays them as
// opaque JSON between the client and the engine adapter.

// TransportInfo is the negotiation payload forwarded verbatim to the
// client after a transport is created.
type TransportInfo struct {
	ID             string          `json:"id"`
	IceParameters  json.RawMessage `json:"iceParameters"`
	IceCandidates  json.RawMessage `json:"iceCandidates"`
	DtlsParameters json.RawMessage `json:"dtlsParameters"`
}

// Direction of a transport relative to the client.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

func (d Direction) Valid() bool {
	return d == DirectionSend || d == DirectionRecv
}

type Producer interface {
	ID() string
	Kind() domain.MediaKind
	Close()
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() domain.MediaKind
	RtpParameters() json.RawMessage
	Resume() error
	Close()
}

type Transport interface {
	ID() string
	Info() TransportInfo
	Connect(dtlsParameters json.RawMessage) error
	Produce(kind domain.MediaKind, rtpParameters json.RawMessage) (Producer, error)
	// Consume creates a consumer for producerID in paused state. It
	// returns nil (no error) when the given capabilities cannot consume
	// the producer; that is a normal negotiation outcome.
	Consume(producerID string, rtpCapabilities json.RawMessage) (Consumer, error)
	Close()
}

type Router interface {
	RtpCapabilities() json.RawMessage
	CanConsume(producerID string, rtpCapabilities json.RawMessage) bool
	CreateTransport() (Transport, error)
	Close()
}

// MediaWorker is one slot of the engine's worker pool.
type MediaWorker interface {
	CreateRouter() (Router, error)
	Close()
}
