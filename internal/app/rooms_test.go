package app_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classcast/classcast/internal/adapters/media/mediatest"
	"github.com/classcast/classcast/internal/app"
	"github.com/classcast/classcast/internal/core"
	"github.com/classcast/classcast/internal/domain"
)

func TestGetOrCreateRoundRobin(t *testing.T) {
	w1 := mediatest.NewWorker()
	w2 := mediatest.NewWorker()
	reg := app.NewRoomRegistry([]core.MediaWorker{w1, w2}, 50)

	for _, id := range []domain.RoomID{"a", "b", "c", "d"} {
		_, err := reg.GetOrCreate(id)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, w1.RouterCount())
	assert.Equal(t, 2, w2.RouterCount())
}

func TestGetOrCreateSingleFlight(t *testing.T) {
	w := mediatest.NewWorker()
	reg := app.NewRoomRegistry([]core.MediaWorker{w}, 50)

	const callers = 16
	rooms := make([]*core.Room, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := reg.GetOrCreate("shared")
			assert.NoError(t, err)
			rooms[i] = r
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, w.RouterCount())
	for _, r := range rooms {
		assert.Same(t, rooms[0], r)
	}
}

func TestGetOrCreateGeneratesID(t *testing.T) {
	reg := app.NewRoomRegistry([]core.MediaWorker{mediatest.NewWorker()}, 50)

	r, err := reg.GetOrCreate("")
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)

	got, ok := reg.Get(r.ID)
	require.True(t, ok)
	assert.Same(t, r, got)
}

func TestGetOrCreateRetriesAfterFailure(t *testing.T) {
	w := mediatest.NewWorker()
	w.FailNext = errors.New("worker died")
	reg := app.NewRoomRegistry([]core.MediaWorker{w}, 50)

	_, err := reg.GetOrCreate("flaky")
	require.Error(t, err)
	_, ok := reg.Get("flaky")
	assert.False(t, ok)

	// The failed entry must not poison later attempts.
	r, err := reg.GetOrCreate("flaky")
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestRemoveOnlyEvictsEmptyRooms(t *testing.T) {
	reg := app.NewRoomRegistry([]core.MediaWorker{mediatest.NewWorker()}, 50)

	r, err := reg.GetOrCreate("busy")
	require.NoError(t, err)
	_, err = r.AddPeer("s1", "a", domain.RoleStudent, nil)
	require.NoError(t, err)

	reg.Remove("busy")
	_, ok := reg.Get("busy")
	assert.True(t, ok, "occupied room must survive eviction attempts")

	r.RemovePeer("s1")
	reg.Remove("busy")
	_, ok = reg.Get("busy")
	assert.False(t, ok)
	assert.True(t, r.Router().(*mediatest.Router).Closed())

	// Unknown ids are a no-op.
	reg.Remove("never-existed")
}

func TestList(t *testing.T) {
	reg := app.NewRoomRegistry([]core.MediaWorker{mediatest.NewWorker()}, 50)
	assert.Empty(t, reg.List())

	r, err := reg.GetOrCreate("math")
	require.NoError(t, err)
	_, err = r.AddPeer("t1", "teacher", domain.RoleTeacher, nil)
	require.NoError(t, err)
	_, err = r.AddPeer("s1", "student", domain.RoleStudent, nil)
	require.NoError(t, err)

	infos := reg.List()
	require.Len(t, infos, 1)
	assert.Equal(t, domain.RoomID("math"), infos[0].ID)
	assert.Equal(t, 2, infos[0].Peers)
	assert.True(t, infos[0].HasTeacher)
}

func TestCloseAll(t *testing.T) {
	reg := app.NewRoomRegistry([]core.MediaWorker{mediatest.NewWorker()}, 50)

	r, err := reg.GetOrCreate("math")
	require.NoError(t, err)

	reg.CloseAll()
	assert.True(t, r.Router().(*mediatest.Router).Closed())
	_, ok := reg.Get("math")
	assert.False(t, ok)
}
