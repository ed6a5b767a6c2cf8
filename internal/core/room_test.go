package core_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classcast/classcast/internal/adapters/media/mediatest"
	"github.com/classcast/classcast/internal/core"
	"github.com/classcast/classcast/internal/domain"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {}

func (f *fakeSignal) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func newTestRoom(t *testing.T, maxPeers int) (*core.Room, *mediatest.Router) {
	t.Helper()
	w := mediatest.NewWorker()
	router, err := w.CreateRouter()
	require.NoError(t, err)
	return core.NewRoom("math-101", router, maxPeers), router.(*mediatest.Router)
}

func TestAddPeerSingleTeacher(t *testing.T) {
	room, _ := newTestRoom(t, 10)

	_, err := room.AddPeer("t1", "Ms. Frizzle", domain.RoleTeacher, &fakeSignal{})
	require.NoError(t, err)
	assert.True(t, room.HasTeacher())

	_, err = room.AddPeer("t2", "Impostor", domain.RoleTeacher, &fakeSignal{})
	assert.ErrorIs(t, err, domain.ErrRoleConflict)

	// A second teacher may take the slot once the first is gone.
	wasTeacher, removed := room.RemovePeer("t1")
	assert.True(t, wasTeacher)
	assert.True(t, removed)
	assert.False(t, room.HasTeacher())

	_, err = room.AddPeer("t2", "Substitute", domain.RoleTeacher, &fakeSignal{})
	assert.NoError(t, err)
}

func TestAddPeerCapacity(t *testing.T) {
	room, _ := newTestRoom(t, 2)

	_, err := room.AddPeer("s1", "a", domain.RoleStudent, &fakeSignal{})
	require.NoError(t, err)
	_, err = room.AddPeer("s2", "b", domain.RoleStudent, &fakeSignal{})
	require.NoError(t, err)

	_, err = room.AddPeer("s3", "c", domain.RoleStudent, &fakeSignal{})
	assert.ErrorIs(t, err, domain.ErrRoomFull)

	_, removed := room.RemovePeer("s1")
	require.True(t, removed)

	_, err = room.AddPeer("s3", "c", domain.RoleStudent, &fakeSignal{})
	assert.NoError(t, err)
}

func TestRemovePeerClosesResources(t *testing.T) {
	room, router := newTestRoom(t, 10)

	_, err := room.AddPeer("t1", "teacher", domain.RoleTeacher, &fakeSignal{})
	require.NoError(t, err)

	sendT, err := router.CreateTransport()
	require.NoError(t, err)
	recvT, err := router.CreateTransport()
	require.NoError(t, err)
	require.NoError(t, room.SetTransport("t1", core.DirectionSend, sendT))
	require.NoError(t, room.SetTransport("t1", core.DirectionRecv, recvT))

	producer, err := sendT.Produce(domain.KindVideo, json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, room.StoreProducer("t1", producer))

	consumer, err := recvT.Consume(producer.ID(), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, room.StoreConsumer("t1", consumer))

	wasTeacher, removed := room.RemovePeer("t1")
	assert.True(t, wasTeacher)
	assert.True(t, removed)

	assert.True(t, producer.(*mediatest.Producer).Closed())
	assert.True(t, consumer.(*mediatest.Consumer).Closed())
	assert.True(t, sendT.(*mediatest.Transport).Closed())
	assert.True(t, recvT.(*mediatest.Transport).Closed())

	// Second removal is a no-op.
	wasTeacher, removed = room.RemovePeer("t1")
	assert.False(t, wasTeacher)
	assert.False(t, removed)
}

func TestTeacherProducersView(t *testing.T) {
	room, router := newTestRoom(t, 10)

	_, err := room.AddPeer("t1", "teacher", domain.RoleTeacher, &fakeSignal{})
	require.NoError(t, err)
	assert.Empty(t, room.TeacherProducers())

	sendT, err := router.CreateTransport()
	require.NoError(t, err)
	require.NoError(t, room.SetTransport("t1", core.DirectionSend, sendT))

	video, err := sendT.Produce(domain.KindVideo, nil)
	require.NoError(t, err)
	require.NoError(t, room.StoreProducer("t1", video))
	audio, err := sendT.Produce(domain.KindAudio, nil)
	require.NoError(t, err)
	require.NoError(t, room.StoreProducer("t1", audio))

	producers := room.TeacherProducers()
	require.Len(t, producers, 2)
	assert.Equal(t, video.ID(), producers[0].ID())
	assert.Equal(t, audio.ID(), producers[1].ID())

	got, ok := room.FindTeacherProducer(video.ID())
	require.True(t, ok)
	assert.Equal(t, video.ID(), got.ID())

	// A departed teacher's ids become unresolvable.
	room.RemovePeer("t1")
	assert.Empty(t, room.TeacherProducers())
	_, ok = room.FindTeacherProducer(video.ID())
	assert.False(t, ok)
}

func TestRemoveProducerReportsRemaining(t *testing.T) {
	room, router := newTestRoom(t, 10)

	_, err := room.AddPeer("t1", "teacher", domain.RoleTeacher, &fakeSignal{})
	require.NoError(t, err)
	sendT, err := router.CreateTransport()
	require.NoError(t, err)
	require.NoError(t, room.SetTransport("t1", core.DirectionSend, sendT))

	video, err := sendT.Produce(domain.KindVideo, nil)
	require.NoError(t, err)
	require.NoError(t, room.StoreProducer("t1", video))
	audio, err := sendT.Produce(domain.KindAudio, nil)
	require.NoError(t, err)
	require.NoError(t, room.StoreProducer("t1", audio))

	got, remaining, ok := room.RemoveProducer("t1", video.ID())
	require.True(t, ok)
	assert.Equal(t, video.ID(), got.ID())
	assert.Equal(t, 1, remaining)

	_, _, ok = room.RemoveProducer("t1", video.ID())
	assert.False(t, ok)

	_, remaining, ok = room.RemoveProducer("t1", audio.ID())
	require.True(t, ok)
	assert.Equal(t, 0, remaining)
}

func TestSetTransportClosesReplaced(t *testing.T) {
	room, router := newTestRoom(t, 10)

	_, err := room.AddPeer("t1", "teacher", domain.RoleTeacher, &fakeSignal{})
	require.NoError(t, err)

	first, err := router.CreateTransport()
	require.NoError(t, err)
	require.NoError(t, room.SetTransport("t1", core.DirectionSend, first))

	second, err := router.CreateTransport()
	require.NoError(t, err)
	require.NoError(t, room.SetTransport("t1", core.DirectionSend, second))

	assert.True(t, first.(*mediatest.Transport).Closed())
	assert.False(t, second.(*mediatest.Transport).Closed())

	got, ok := room.Transport("t1", core.DirectionSend)
	require.True(t, ok)
	assert.Equal(t, second.ID(), got.ID())
}

func TestStoreAfterLeave(t *testing.T) {
	room, router := newTestRoom(t, 10)

	_, err := room.AddPeer("t1", "teacher", domain.RoleTeacher, &fakeSignal{})
	require.NoError(t, err)
	sendT, err := router.CreateTransport()
	require.NoError(t, err)
	producer, err := sendT.Produce(domain.KindVideo, nil)
	require.NoError(t, err)

	room.RemovePeer("t1")

	assert.ErrorIs(t, room.StoreProducer("t1", producer), domain.ErrNotJoined)
	assert.ErrorIs(t, room.SetTransport("t1", core.DirectionSend, sendT), domain.ErrNotJoined)
}

func TestBroadcast(t *testing.T) {
	room, _ := newTestRoom(t, 10)

	teacher := &fakeSignal{}
	healthy := &fakeSignal{}
	stuck := &fakeSignal{fail: true}

	_, err := room.AddPeer("t1", "teacher", domain.RoleTeacher, teacher)
	require.NoError(t, err)
	_, err = room.AddPeer("s1", "a", domain.RoleStudent, healthy)
	require.NoError(t, err)
	_, err = room.AddPeer("s2", "b", domain.RoleStudent, stuck)
	require.NoError(t, err)

	res := room.Broadcast("t1", core.Frame(`{"type":"newProducer"}`))
	assert.Equal(t, 1, res.SentTo)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 0, teacher.count())
	assert.Equal(t, 1, healthy.count())
}

func TestCloseReleasesEverything(t *testing.T) {
	room, router := newTestRoom(t, 10)

	_, err := room.AddPeer("t1", "teacher", domain.RoleTeacher, &fakeSignal{})
	require.NoError(t, err)
	sendT, err := router.CreateTransport()
	require.NoError(t, err)
	require.NoError(t, room.SetTransport("t1", core.DirectionSend, sendT))

	room.Close()

	assert.True(t, sendT.(*mediatest.Transport).Closed())
	assert.True(t, router.Closed())
	assert.Equal(t, 0, room.PeerCount())

	_, err = room.AddPeer("s1", "late", domain.RoleStudent, &fakeSignal{})
	assert.ErrorIs(t, err, core.ErrRoomClosed)

	// Close twice is fine.
	room.Close()
}
