package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/classcast/classcast/internal/core"
	"github.com/classcast/classcast/internal/domain"
)

func (ctl *Controller) handleGetRouterRtpCapabilities(sid core.SessionID, c core.SignalConnection) {
	room, _, ok := ctl.resolve(sid)
	if !ok {
		return
	}
	ctl.send(c, "routerRtpCapabilities", room.RtpCapabilities())
}

func (ctl *Controller) handleCreateTransport(sid core.SessionID, c core.SignalConnection, data []byte) {
	room, peerID, ok := ctl.resolve(sid)
	if !ok {
		return
	}
	var p struct {
		Direction core.Direction `json:"direction"`
	}
	if err := json.Unmarshal(data, &p); err != nil || !p.Direction.Valid() {
		ctl.sendError(c, domain.ErrBadPayload)
		return
	}

	t, err := awaitCall(ctl.timeout,
		func() (core.Transport, error) { return room.Router().CreateTransport() },
		func(t core.Transport) { t.Close() },
	)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(peerID)).Msg("create transport")
		ctl.sendError(c, err)
		return
	}

	// Close-and-replace: a prior transport for this direction is shut
	// down inside SetTransport before the new handle takes its slot.
	if err := room.SetTransport(peerID, p.Direction, t); err != nil {
		// Peer vanished while the engine call was in flight.
		t.Close()
		return
	}

	info := t.Info()
	ctl.send(c, "transportCreated", map[string]any{
		"direction":      p.Direction,
		"id":             info.ID,
		"iceParameters":  info.IceParameters,
		"iceCandidates":  info.IceCandidates,
		"dtlsParameters": info.DtlsParameters,
	})
	ctl.Sessions.SetState(sid, core.StateNegotiating)
}

func (ctl *Controller) handleConnectTransport(sid core.SessionID, c core.SignalConnection, data []byte) {
	room, peerID, ok := ctl.resolve(sid)
	if !ok {
		return
	}
	var p struct {
		Direction      core.Direction  `json:"direction"`
		DtlsParameters json.RawMessage `json:"dtlsParameters"`
	}
	if err := json.Unmarshal(data, &p); err != nil || !p.Direction.Valid() {
		ctl.sendError(c, domain.ErrBadPayload)
		return
	}

	t, ok := room.Transport(peerID, p.Direction)
	if !ok {
		ctl.sendError(c, domain.ErrNoTransport)
		return
	}

	_, err := awaitCall(ctl.timeout,
		func() (struct{}, error) { return struct{}{}, t.Connect(p.DtlsParameters) },
		nil,
	)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(peerID)).Msg("connect transport")
		ctl.sendError(c, err)
		return
	}

	ctl.send(c, "transportConnected", map[string]any{"direction": p.Direction})
}

func (ctl *Controller) handleProduce(sid core.SessionID, c core.SignalConnection, data []byte) {
	room, peerID, ok := ctl.resolve(sid)
	if !ok {
		return
	}
	var p struct {
		Kind          domain.MediaKind `json:"kind"`
		RtpParameters json.RawMessage  `json:"rtpParameters"`
	}
	if err := json.Unmarshal(data, &p); err != nil || !p.Kind.Valid() {
		ctl.sendError(c, domain.ErrBadPayload)
		return
	}

	// Check-then-act without touching state: a rejected produce must
	// leave the room exactly as it was.
	role, ok := room.PeerRole(peerID)
	if !ok {
		return
	}
	if role != domain.RoleTeacher {
		ctl.sendError(c, domain.ErrForbidden)
		return
	}
	t, ok := room.Transport(peerID, core.DirectionSend)
	if !ok {
		ctl.sendError(c, domain.ErrNoTransport)
		return
	}

	producer, err := awaitCall(ctl.timeout,
		func() (core.Producer, error) { return t.Produce(p.Kind, p.RtpParameters) },
		func(pr core.Producer) { pr.Close() },
	)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(peerID)).Msg("produce")
		ctl.sendError(c, err)
		return
	}

	room.Do(func() {
		if err := room.StoreProducer(peerID, producer); err != nil {
			// Teacher left mid-negotiation; don't orphan the producer.
			producer.Close()
			return
		}
		log.Info().Str("module", "signal").Str("peer", string(peerID)).
			Str("producer", producer.ID()).Str("kind", string(p.Kind)).Msg("teacher produced")

		ctl.send(c, "produced", map[string]any{
			"producerId": producer.ID(),
			"kind":       producer.Kind(),
		})
		ctl.broadcast(room, peerID, "newProducer", map[string]any{
			"producerId": producer.ID(),
			"kind":       producer.Kind(),
			"peerId":     peerID,
		})
	})
	ctl.Sessions.SetState(sid, core.StateActive)
}

func (ctl *Controller) handleConsume(sid core.SessionID, c core.SignalConnection, data []byte) {
	room, peerID, ok := ctl.resolve(sid)
	if !ok {
		return
	}
	var p struct {
		ProducerID      string          `json:"producerId"`
		RtpCapabilities json.RawMessage `json:"rtpCapabilities"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, domain.ErrBadPayload)
		return
	}

	t, ok := room.Transport(peerID, core.DirectionRecv)
	if !ok {
		ctl.sendError(c, domain.ErrNoTransport)
		return
	}
	// Only the current teacher's producers are consumable; a stale id
	// from a departed teacher resolves to not-found.
	producer, ok := room.FindTeacherProducer(p.ProducerID)
	if !ok {
		ctl.sendError(c, domain.ErrProducerNotFound)
		return
	}

	consumer, err := awaitCall(ctl.timeout,
		func() (core.Consumer, error) { return t.Consume(producer.ID(), p.RtpCapabilities) },
		func(cons core.Consumer) {
			if cons != nil {
				cons.Close()
			}
		},
	)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(peerID)).Msg("consume")
		ctl.sendError(c, err)
		return
	}
	if consumer == nil {
		ctl.sendError(c, domain.ErrCannotConsume)
		return
	}

	if err := room.StoreConsumer(peerID, consumer); err != nil {
		consumer.Close()
		return
	}

	ctl.send(c, "consumed", map[string]any{
		"consumerId":    consumer.ID(),
		"producerId":    consumer.ProducerID(),
		"kind":          consumer.Kind(),
		"rtpParameters": consumer.RtpParameters(),
	})
}

func (ctl *Controller) handleResumeConsumer(sid core.SessionID, c core.SignalConnection, data []byte) {
	room, peerID, ok := ctl.resolve(sid)
	if !ok {
		return
	}
	var p struct {
		ConsumerID string `json:"consumerId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, domain.ErrBadPayload)
		return
	}

	consumer, ok := room.Consumer(peerID, p.ConsumerID)
	if !ok {
		ctl.sendError(c, domain.ErrConsumerNotFound)
		return
	}

	_, err := awaitCall(ctl.timeout,
		func() (struct{}, error) { return struct{}{}, consumer.Resume() },
		nil,
	)
	if err != nil {
		ctl.sendError(c, err)
		return
	}

	ctl.send(c, "consumerResumed", map[string]any{"consumerId": consumer.ID()})
}

func (ctl *Controller) handleGetProducers(sid core.SessionID, c core.SignalConnection) {
	room, _, ok := ctl.resolve(sid)
	if !ok {
		return
	}
	type producerInfo struct {
		ProducerID string           `json:"producerId"`
		Kind       domain.MediaKind `json:"kind"`
	}
	producers := room.TeacherProducers()
	out := make([]producerInfo, 0, len(producers))
	for _, pr := range producers {
		out = append(out, producerInfo{ProducerID: pr.ID(), Kind: pr.Kind()})
	}
	ctl.send(c, "producers", out)
}

func (ctl *Controller) handleCloseProducer(sid core.SessionID, c core.SignalConnection, data []byte) {
	room, peerID, ok := ctl.resolve(sid)
	if !ok {
		return
	}
	var p struct {
		ProducerID string `json:"producerId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, domain.ErrBadPayload)
		return
	}

	role, ok := room.PeerRole(peerID)
	if !ok {
		return
	}
	if role != domain.RoleTeacher {
		ctl.sendError(c, domain.ErrForbidden)
		return
	}

	room.Do(func() {
		producer, remaining, ok := room.RemoveProducer(peerID, p.ProducerID)
		if !ok {
			ctl.sendError(c, domain.ErrProducerNotFound)
			return
		}
		producer.Close()
		log.Info().Str("module", "signal").Str("peer", string(peerID)).
			Str("producer", p.ProducerID).Msg("producer closed by teacher")

		closed := map[string]any{"producerId": p.ProducerID}
		ctl.send(c, "producerClosed", closed)
		ctl.broadcast(room, peerID, "producerClosed", closed)

		if remaining == 0 {
			ctl.broadcast(room, peerID, "teacherStoppedSharing", nil)
		}
	})
}
