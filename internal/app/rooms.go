package app

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/classcast/classcast/internal/core"
	"github.com/classcast/classcast/internal/domain"
)

// RoomRegistry creates, looks up and destroys rooms. New rooms are
// spread over a fixed pool of engine workers round-robin; creation of a
// given id happens at most once no matter how many joins race for it.
type RoomRegistry struct {
	workers  []core.MediaWorker
	maxPeers int

	mu     sync.Mutex
	rooms  map[domain.RoomID]*roomEntry
	cursor int
}

type roomEntry struct {
	once sync.Once
	room *core.Room
	err  error
}

func NewRoomRegistry(workers []core.MediaWorker, maxPeers int) *RoomRegistry {
	return &RoomRegistry{
		workers:  workers,
		maxPeers: maxPeers,
		rooms:    make(map[domain.RoomID]*roomEntry),
	}
}

// GetOrCreate returns the room for id, creating it on first reference.
// An empty id gets a generated one. Concurrent callers for the same
// unknown id share a single in-flight creation.
func (g *RoomRegistry) GetOrCreate(id domain.RoomID) (*core.Room, error) {
	if id == "" {
		id = domain.RoomID(uuid.NewString())
	}

	g.mu.Lock()
	e, ok := g.rooms[id]
	if !ok {
		e = &roomEntry{}
		g.rooms[id] = e
	}
	g.mu.Unlock()

	e.once.Do(func() {
		router, err := g.nextWorker().CreateRouter()
		if err != nil {
			e.err = err
			g.mu.Lock()
			delete(g.rooms, id)
			g.mu.Unlock()
			log.Error().Err(err).Str("module", "app.rooms").Str("room", string(id)).Msg("router creation failed")
			return
		}
		e.room = core.NewRoom(id, router, g.maxPeers)
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	})
	return e.room, e.err
}

func (g *RoomRegistry) nextWorker() core.MediaWorker {
	g.mu.Lock()
	defer g.mu.Unlock()
	w := g.workers[g.cursor]
	g.cursor = (g.cursor + 1) % len(g.workers)
	return w
}

func (g *RoomRegistry) Get(id domain.RoomID) (*core.Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.rooms[id]
	if !ok || e.room == nil {
		return nil, false
	}
	return e.room, true
}

// Remove closes and evicts the room. No-op for unknown ids and for
// rooms that picked up a new peer since the caller saw them empty.
func (g *RoomRegistry) Remove(id domain.RoomID) {
	g.mu.Lock()
	e, ok := g.rooms[id]
	if !ok || e.room == nil || !e.room.IsEmpty() {
		g.mu.Unlock()
		return
	}
	delete(g.rooms, id)
	g.mu.Unlock()

	e.room.Close()
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room evicted")
}

type RoomInfo struct {
	ID         domain.RoomID `json:"id"`
	Peers      int           `json:"peers"`
	HasTeacher bool          `json:"hasTeacher"`
}

func (g *RoomRegistry) List() []RoomInfo {
	g.mu.Lock()
	rooms := make([]*core.Room, 0, len(g.rooms))
	for _, e := range g.rooms {
		if e.room != nil {
			rooms = append(rooms, e.room)
		}
	}
	g.mu.Unlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomInfo{ID: r.ID, Peers: r.PeerCount(), HasTeacher: r.HasTeacher()})
	}
	return out
}

// CloseAll tears down every room on shutdown.
func (g *RoomRegistry) CloseAll() {
	g.mu.Lock()
	rooms := make([]*core.Room, 0, len(g.rooms))
	for _, e := range g.rooms {
		if e.room != nil {
			rooms = append(rooms, e.room)
		}
	}
	g.rooms = make(map[domain.RoomID]*roomEntry)
	g.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
}
