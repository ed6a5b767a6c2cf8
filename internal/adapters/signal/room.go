package signal

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/classcast/classcast/internal/core"
	"github.com/classcast/classcast/internal/domain"
)

func (ctl *Controller) handleJoin(sid core.SessionID, c core.SignalConnection, data []byte) {
	var p struct {
		RoomID    string `json:"roomId"`
		PeerID    string `json:"peerId"`
		Name      string `json:"name"`
		IsTeacher bool   `json:"isTeacher"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, domain.ErrBadPayload)
		return
	}

	if !ctl.Joins.Allow(sid) {
		ctl.sendError(c, domain.ErrTooManyJoins)
		return
	}
	if ctl.Sessions.State(sid) != core.StateUnjoined {
		ctl.sendError(c, domain.ErrAlreadyJoined)
		return
	}

	if p.PeerID == "" {
		p.PeerID = uuid.NewString()
	}
	if len(p.Name) > domain.MaxDisplayNameLen {
		p.Name = p.Name[:domain.MaxDisplayNameLen]
	}
	role := domain.RoleFor(p.IsTeacher)

	room, err := ctl.Rooms.GetOrCreate(domain.RoomID(p.RoomID))
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", p.RoomID).Msg("room creation failed")
		ctl.sendError(c, err)
		return
	}

	joined := false
	room.Do(func() {
		peer, err := room.AddPeer(domain.PeerID(p.PeerID), p.Name, role, c)
		if err != nil {
			ctl.sendError(c, err)
			return
		}
		ctl.Sessions.BindRoom(sid, peer.ID, room.ID)
		joined = true

		ctl.send(c, "joined", map[string]any{
			"roomId":          room.ID,
			"peerId":          peer.ID,
			"isTeacher":       peer.IsTeacher(),
			"rtpCapabilities": room.RtpCapabilities(),
		})
		ctl.broadcast(room, peer.ID, "peerJoined", map[string]any{
			"peerId":    peer.ID,
			"name":      peer.DisplayName,
			"isTeacher": peer.IsTeacher(),
		})
	})

	// A rejected join may have created the room; don't leak it.
	if !joined && room.IsEmpty() {
		ctl.Rooms.Remove(room.ID)
	}
}

// handleLeave runs the disconnect cascade but keeps the socket open;
// the session drops back to the unjoined state and may join again.
func (ctl *Controller) handleLeave(sid core.SessionID, c core.SignalConnection) {
	ctl.removeFromRoom(sid)
	ctl.Sessions.ClearRoom(sid)
	ctl.send(c, "left", nil)
}

func (ctl *Controller) handlePing(c core.SignalConnection) {
	ctl.send(c, "pong", nil)
}

// Disconnect is the connection-close path. It must be reachable from
// any negotiation phase: removeFromRoom cascades the peer's resource
// cleanup no matter what was in flight.
func (ctl *Controller) Disconnect(sid core.SessionID) {
	ctl.removeFromRoom(sid)
	ctl.Sessions.SetState(sid, core.StateClosed)
	ctl.Sessions.Unbind(sid)
	ctl.Joins.Forget(sid)
}

func (ctl *Controller) removeFromRoom(sid core.SessionID) {
	room, peerID, ok := ctl.resolve(sid)
	if !ok {
		return
	}
	room.Do(func() {
		wasTeacher, removed := room.RemovePeer(peerID)
		if !removed {
			return
		}
		ctl.broadcast(room, peerID, "peerLeft", map[string]any{
			"peerId":     peerID,
			"wasTeacher": wasTeacher,
		})
	})
	if room.IsEmpty() {
		ctl.Rooms.Remove(room.ID)
	}
}
