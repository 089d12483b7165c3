package app

import (
	"testing"
	"time"

	"github.com/gatherly/office/internal/presence"
	"github.com/gatherly/office/internal/protocol"
)

func newTestManager() *RoomManager {
	return NewRoomManager(func() RoomOptions {
		return RoomOptions{Presence: presence.DefaultConfig()}
	})
}

// waitFor polls until cond holds; disposal runs on the room actor goroutine.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestRoomDisposedWhenLastPlayerLeaves(t *testing.T) {
	m := newTestManager()
	room := m.GetOrCreate("lobby")

	room.Join("s1", &fakeConn{}, protocol.JoinRoom{Username: "alice", Character: "adam"})
	room.Join("s2", &fakeConn{}, protocol.JoinRoom{Username: "bob", Character: "adam"})
	drain(t, room)

	room.Leave("s1")
	drain(t, room)
	if m.Count() != 1 {
		t.Fatal("room retired while a player was still in it")
	}

	room.Leave("s2")
	waitFor(t, func() bool { return m.Count() == 0 })
	waitFor(t, func() bool { return !room.Post(func() {}) })
}

func TestRejoinAfterDisposalGetsFreshRoom(t *testing.T) {
	m := newTestManager()
	room := m.GetOrCreate("lobby")
	room.Join("s1", &fakeConn{}, protocol.JoinRoom{Username: "alice", Character: "adam"})
	drain(t, room)
	room.Leave("s1")
	waitFor(t, func() bool { return m.Count() == 0 })

	fresh := m.GetOrCreate("lobby")
	if fresh == room {
		t.Fatal("stopped instance handed out again")
	}
	t.Cleanup(fresh.Stop)
	if !fresh.Join("s1", &fakeConn{}, protocol.JoinRoom{Username: "alice", Character: "adam"}) {
		t.Fatal("fresh room rejected the join")
	}
	drain(t, fresh)
	if fresh.PlayerCount() != 1 {
		t.Fatalf("player count = %d", fresh.PlayerCount())
	}
}

func TestStopRoomRemovesOnlyTheNamedRoom(t *testing.T) {
	m := newTestManager()
	a := m.GetOrCreate("a")
	b := m.GetOrCreate("b")
	t.Cleanup(b.Stop)

	m.StopRoom("a")
	if _, ok := m.Get("a"); ok {
		t.Fatal("stopped room still listed")
	}
	if a.Post(func() {}) {
		t.Fatal("stopped room still accepts commands")
	}
	if _, ok := m.Get("b"); !ok {
		t.Fatal("unrelated room removed")
	}
}
