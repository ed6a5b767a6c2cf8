// Package media binds the orchestration core to mediasoup. Everything
// here is a pass-through: negotiation payloads cross as opaque JSON and
// engine-originated close events are logged, never acted on.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/classcast/classcast/internal/config"
	"github.com/classcast/classcast/internal/core"
	"github.com/classcast/classcast/internal/domain"
)

// Engine owns the mediasoup worker pool.
type Engine struct {
	cfg     *config.Config
	workers []*mediasoup.Worker
}

func NewEngine(cfg *config.Config) (*Engine, error) {
	e := &Engine{cfg: cfg}
	for i := 0; i < cfg.NumWorkers; i++ {
		w, err := mediasoup.NewWorker(
			os.Getenv("MEDIASOUP_WORKER_BIN"),
			func(s *mediasoup.WorkerSettings) {
				s.LogLevel = mediasoup.WorkerLogLevelWarn
			},
		)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("spawn worker %d: %w", i, err)
		}
		log.Info().Str("module", "media").Int("worker", i).Msg("worker spawned")
		e.workers = append(e.workers, w)
	}
	return e, nil
}

func (e *Engine) Workers() []core.MediaWorker {
	out := make([]core.MediaWorker, len(e.workers))
	for i, w := range e.workers {
		out[i] = &worker{w: w, cfg: e.cfg}
	}
	return out
}

func (e *Engine) Close() {
	for _, w := range e.workers {
		w.Close()
	}
	log.Info().Str("module", "media").Msg("engine closed")
}

type worker struct {
	w   *mediasoup.Worker
	cfg *config.Config
}

func (w *worker) CreateRouter() (core.Router, error) {
	r, err := w.w.CreateRouter(routerOptions(w.cfg))
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	caps, err := json.Marshal(r.RtpCapabilities())
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("marshal router capabilities: %w", err)
	}
	return &router{r: r, cfg: w.cfg, caps: caps}, nil
}

func (w *worker) Close() { w.w.Close() }

type router struct {
	r    *mediasoup.Router
	cfg  *config.Config
	caps json.RawMessage
}

func (r *router) RtpCapabilities() json.RawMessage { return r.caps }

func (r *router) CanConsume(producerID string, rtpCapabilities json.RawMessage) bool {
	var caps mediasoup.RtpCapabilities
	if err := json.Unmarshal(rtpCapabilities, &caps); err != nil {
		log.Warn().Err(err).Str("module", "media").Msg("unparseable rtp capabilities")
		return false
	}
	return r.r.CanConsume(producerID, &caps)
}

func (r *router) CreateTransport() (core.Transport, error) {
	t, err := r.r.CreateWebRtcTransport(transportOptions(r.cfg))
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	if r.cfg.MaxIncomingBitrate > 0 {
		if err := t.SetMaxIncomingBitrate(uint32(r.cfg.MaxIncomingBitrate)); err != nil {
			log.Warn().Err(err).Str("module", "media").Str("transport", t.Id()).Msg("set max incoming bitrate")
		}
	}

	data := t.Data().WebRtcTransportData
	info := core.TransportInfo{ID: t.Id()}
	if info.IceParameters, err = json.Marshal(data.IceParameters); err == nil {
		if info.IceCandidates, err = json.Marshal(data.IceCandidates); err == nil {
			info.DtlsParameters, err = json.Marshal(data.DtlsParameters)
		}
	}
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("marshal transport parameters: %w", err)
	}
	return &transport{t: t, router: r, info: info}, nil
}

func (r *router) Close() { r.r.Close() }

type transport struct {
	t      *mediasoup.Transport
	router *router
	info   core.TransportInfo
}

func (t *transport) ID() string               { return t.info.ID }
func (t *transport) Info() core.TransportInfo { return t.info }

func (t *transport) Connect(dtlsParameters json.RawMessage) error {
	var dtls mediasoup.DtlsParameters
	if err := json.Unmarshal(dtlsParameters, &dtls); err != nil {
		return fmt.Errorf("unparseable dtls parameters: %w", err)
	}
	if err := t.t.Connect(&mediasoup.TransportConnectOptions{DtlsParameters: &dtls}); err != nil {
		return fmt.Errorf("connect transport: %w", err)
	}
	return nil
}

func (t *transport) Produce(kind domain.MediaKind, rtpParameters json.RawMessage) (core.Producer, error) {
	var rtp mediasoup.RtpParameters
	if err := json.Unmarshal(rtpParameters, &rtp); err != nil {
		return nil, fmt.Errorf("unparseable rtp parameters: %w", err)
	}
	p, err := t.t.Produce(&mediasoup.ProducerOptions{
		Kind:          mediasoup.MediaKind(kind),
		RtpParameters: &rtp,
	})
	if err != nil {
		return nil, fmt.Errorf("produce: %w", err)
	}
	p.OnTransportClosed(func(ctx context.Context) {
		log.Debug().Str("module", "media").Str("producer", p.Id()).Msg("producer transport closed")
	})
	return &producer{p: p}, nil
}

func (t *transport) Consume(producerID string, rtpCapabilities json.RawMessage) (core.Consumer, error) {
	if !t.router.CanConsume(producerID, rtpCapabilities) {
		return nil, nil
	}
	var caps mediasoup.RtpCapabilities
	if err := json.Unmarshal(rtpCapabilities, &caps); err != nil {
		return nil, fmt.Errorf("unparseable rtp capabilities: %w", err)
	}
	// Created paused; the signaling layer resumes once the client's
	// receive pipeline is armed.
	c, err := t.t.Consume(&mediasoup.ConsumerOptions{
		ProducerId:      producerID,
		RtpCapabilities: &caps,
		Paused:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	rtp, err := json.Marshal(c.RtpParameters())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("marshal consumer rtp parameters: %w", err)
	}
	c.OnProducerClose(func(ctx context.Context) {
		log.Debug().Str("module", "media").Str("consumer", c.Id()).Msg("consumer producer closed")
	})
	return &consumer{c: c, producerID: producerID, rtp: rtp}, nil
}

func (t *transport) Close() { t.t.Close() }

type producer struct {
	p *mediasoup.Producer
}

func (p *producer) ID() string             { return p.p.Id() }
func (p *producer) Kind() domain.MediaKind { return domain.MediaKind(p.p.Kind()) }
func (p *producer) Close()                 { p.p.Close() }

type consumer struct {
	c          *mediasoup.Consumer
	producerID string
	rtp        json.RawMessage
}

func (c *consumer) ID() string                     { return c.c.Id() }
func (c *consumer) ProducerID() string             { return c.producerID }
func (c *consumer) Kind() domain.MediaKind         { return domain.MediaKind(c.c.Kind()) }
func (c *consumer) RtpParameters() json.RawMessage { return c.rtp }
func (c *consumer) Resume() error                  { return c.c.Resume() }
func (c *consumer) Close()                         { c.c.Close() }
