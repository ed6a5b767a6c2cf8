package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/classcast/classcast/internal/core"
	"github.com/classcast/classcast/internal/domain"
)

// envelope is the wire shape of every signaling message, both ways.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (ctl *Controller) writePump(ctx context.Context, c *WsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Disconnect(sid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.HandleMessage(sid, c, data)
		}
	}
}

// HandleMessage dispatches one inbound frame. Unknown types are logged
// and dropped; malformed JSON earns the sender an error frame.
func (ctl *Controller) HandleMessage(sid core.SessionID, c core.SignalConnection, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		ctl.sendError(c, domain.ErrBadPayload)
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(sid, c, env.Data)
	case "leave":
		ctl.handleLeave(sid, c)
	case "ping":
		ctl.handlePing(c)
	case "getRouterRtpCapabilities":
		ctl.handleGetRouterRtpCapabilities(sid, c)
	case "createTransport":
		ctl.handleCreateTransport(sid, c, env.Data)
	case "connectTransport":
		ctl.handleConnectTransport(sid, c, env.Data)
	case "produce":
		ctl.handleProduce(sid, c, env.Data)
	case "consume":
		ctl.handleConsume(sid, c, env.Data)
	case "resumeConsumer":
		ctl.handleResumeConsumer(sid, c, env.Data)
	case "getProducers":
		ctl.handleGetProducers(sid, c)
	case "closeProducer":
		ctl.handleCloseProducer(sid, c, env.Data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func marshalEnvelope(typ string, data any) (core.Frame, error) {
	var (
		raw json.RawMessage
		err error
	)
	if data != nil {
		if raw, err = json.Marshal(data); err != nil {
			return nil, err
		}
	}
	return json.Marshal(envelope{Type: typ, Data: raw})
}

func (ctl *Controller) send(c core.SignalConnection, typ string, data any) {
	f, err := marshalEnvelope(typ, data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", typ).Msg("marshal response")
		return
	}
	_ = c.TrySend(f)
}

// sendError delivers a failure to the requester only; errors are never
// broadcast.
func (ctl *Controller) sendError(c core.SignalConnection, err error) {
	ctl.send(c, "error", map[string]string{"message": err.Error()})
}

// broadcast fans an event out to every room member except one.
func (ctl *Controller) broadcast(room *core.Room, except domain.PeerID, typ string, data any) {
	f, err := marshalEnvelope(typ, data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", typ).Msg("marshal broadcast")
		return
	}
	room.Broadcast(except, f)
}

// awaitCall runs one engine operation with a bounded wait. On timeout
// the caller gets ErrEngineTimeout immediately; if the engine answers
// later, the late result is handed to abandon so it can be released.
func awaitCall[T any](timeout time.Duration, op func() (T, error), abandon func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := op()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-time.After(timeout):
		go func() {
			if r := <-ch; r.err == nil && abandon != nil {
				abandon(r.v)
			}
		}()
		var zero T
		return zero, domain.ErrEngineTimeout
	}
}
