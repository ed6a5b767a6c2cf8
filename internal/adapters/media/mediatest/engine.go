// Package mediatest provides an in-memory media engine implementing the
// core ports, so rooms and the signaling protocol can be exercised
// without a mediasoup worker process.
package mediatest

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/classcast/classcast/internal/core"
	"github.com/classcast/classcast/internal/domain"
)

var seq atomic.Int64

func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, seq.Add(1))
}

// Worker counts the routers created through it, which is how tests
// observe round-robin assignment.
type Worker struct {
	mu       sync.Mutex
	routers  int
	closed   bool
	FailNext error // returned by the next CreateRouter when set
}

func NewWorker() *Worker { return &Worker{} }

func (w *Worker) CreateRouter() (core.Router, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.FailNext != nil {
		err := w.FailNext
		w.FailNext = nil
		return nil, err
	}
	w.routers++
	return &Router{caps: json.RawMessage(`{"codecs":["opus","VP8"]}`)}, nil
}

func (w *Worker) RouterCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.routers
}

func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

type Router struct {
	mu         sync.Mutex
	caps       json.RawMessage
	closed     bool
	transports []*Transport

	// DenyConsume lists producer ids CanConsume answers false for.
	DenyConsume map[string]bool
}

func (r *Router) RtpCapabilities() json.RawMessage { return r.caps }

func (r *Router) CanConsume(producerID string, _ json.RawMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.DenyConsume[producerID]
}

func (r *Router) CreateTransport() (core.Transport, error) {
	t := &Transport{
		router: r,
		info: core.TransportInfo{
			ID:             nextID("transport"),
			IceParameters:  json.RawMessage(`{"usernameFragment":"uf"}`),
			IceCandidates:  json.RawMessage(`[]`),
			DtlsParameters: json.RawMessage(`{"role":"auto"}`),
		},
	}
	r.mu.Lock()
	r.transports = append(r.transports, t)
	r.mu.Unlock()
	return t, nil
}

// Transports returns every transport this router has created, in order.
func (r *Router) Transports() []*Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Transport(nil), r.transports...)
}

func (r *Router) Deny(producerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DenyConsume == nil {
		r.DenyConsume = make(map[string]bool)
	}
	r.DenyConsume[producerID] = true
}

func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *Router) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type Transport struct {
	router *Router
	info   core.TransportInfo

	mu        sync.Mutex
	connected bool
	closed    bool
}

func (t *Transport) ID() string               { return t.info.ID }
func (t *Transport) Info() core.TransportInfo { return t.info }

func (t *Transport) Connect(dtlsParameters json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("transport %s closed", t.info.ID)
	}
	if !json.Valid(dtlsParameters) || len(dtlsParameters) == 0 {
		return fmt.Errorf("malformed dtls parameters")
	}
	t.connected = true
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Produce(kind domain.MediaKind, _ json.RawMessage) (core.Producer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport %s closed", t.info.ID)
	}
	return &Producer{id: nextID("producer"), kind: kind}, nil
}

func (t *Transport) Consume(producerID string, rtpCapabilities json.RawMessage) (core.Consumer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport %s closed", t.info.ID)
	}
	if !t.router.CanConsume(producerID, rtpCapabilities) {
		return nil, nil
	}
	return &Consumer{
		id:         nextID("consumer"),
		producerID: producerID,
		kind:       domain.KindVideo,
		rtp:        json.RawMessage(`{"codecs":[]}`),
		paused:     true,
	}, nil
}

func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type Producer struct {
	id   string
	kind domain.MediaKind

	mu     sync.Mutex
	closed bool
}

func (p *Producer) ID() string             { return p.id }
func (p *Producer) Kind() domain.MediaKind { return p.kind }

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type Consumer struct {
	id         string
	producerID string
	kind       domain.MediaKind
	rtp        json.RawMessage

	mu     sync.Mutex
	paused bool
	closed bool
}

func (c *Consumer) ID() string                     { return c.id }
func (c *Consumer) ProducerID() string             { return c.producerID }
func (c *Consumer) Kind() domain.MediaKind         { return c.kind }
func (c *Consumer) RtpParameters() json.RawMessage { return c.rtp }

func (c *Consumer) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("consumer %s closed", c.id)
	}
	c.paused = false
	return nil
}

func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Consumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
