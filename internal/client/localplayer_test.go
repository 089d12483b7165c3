package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gatherly/office/internal/client/media"
	"github.com/gatherly/office/internal/domain"
	"github.com/gatherly/office/internal/zone"
)

type fakeChannel struct {
	updates          []*domain.StatusPatch
	moves            int
	joins            []domain.ZoneName
	leaves           []domain.ZoneName
	officeCalls      []domain.ZoneName
	proximityCalls   [][]domain.SessionID
	removals         []domain.SessionID
	stoppedOffice    []domain.ZoneName
	stoppedProximity [][]domain.SessionID
	stoppedScreen    []domain.ZoneName
}

func (c *fakeChannel) SendPlayerUpdate(_, _ float64, _ string, status *domain.StatusPatch) error {
	if status == nil {
		c.moves++
	} else {
		c.updates = append(c.updates, status)
	}
	return nil
}

func (c *fakeChannel) JoinOffice(_ string, office domain.ZoneName) error {
	c.joins = append(c.joins, office)
	return nil
}

func (c *fakeChannel) LeaveOffice(_ string, office domain.ZoneName) error {
	c.leaves = append(c.leaves, office)
	return nil
}

func (c *fakeChannel) PushOfficeMessage(_, _ string, _ domain.ZoneName) error { return nil }

func (c *fakeChannel) PushGlobalChatMessage(_, _ string) error { return nil }

func (c *fakeChannel) ConnectToOfficeVideoCall(office domain.ZoneName) error {
	c.officeCalls = append(c.officeCalls, office)
	return nil
}

func (c *fakeChannel) ConnectToProximityVideoCall(targets []domain.SessionID) error {
	c.proximityCalls = append(c.proximityCalls, targets)
	return nil
}

func (c *fakeChannel) RemoveFromProximityCall(target domain.SessionID) error {
	c.removals = append(c.removals, target)
	return nil
}

func (c *fakeChannel) StoppedOfficeWebcam(office domain.ZoneName) error {
	c.stoppedOffice = append(c.stoppedOffice, office)
	return nil
}

func (c *fakeChannel) StoppedProximityWebcam(targets []domain.SessionID) error {
	c.stoppedProximity = append(c.stoppedProximity, targets)
	return nil
}

func (c *fakeChannel) StoppedScreenSharing(office domain.ZoneName) error {
	c.stoppedScreen = append(c.stoppedScreen, office)
	return nil
}

func (c *fakeChannel) SendMediaSignal(_ domain.SessionID, _ string, _ json.RawMessage) error {
	return nil
}

type fakeStream struct{ stopped int }

func (s *fakeStream) StopTracks()    { s.stopped++ }
func (s *fakeStream) OnEnded(func()) {}

type fakeCall struct {
	remoteID string
	closed   int
}

func (c *fakeCall) Close() { c.closed++ }

type fakePeer struct {
	onCall func(media.IncomingCall)
	calls  []*fakeCall
}

func (p *fakePeer) Open(context.Context, string) error { return nil }
func (p *fakePeer) OnCall(f func(media.IncomingCall))  { p.onCall = f }
func (p *fakePeer) Close() error                       { return nil }

func (p *fakePeer) Call(remoteID string, _ media.Stream) (media.Call, error) {
	call := &fakeCall{remoteID: remoteID}
	p.calls = append(p.calls, call)
	return call, nil
}

func (p *fakePeer) callTargets() []string {
	out := make([]string, 0, len(p.calls))
	for _, c := range p.calls {
		out = append(out, c.remoteID)
	}
	return out
}

type fixture struct {
	player  *LocalPlayer
	channel *fakeChannel
	replica *Replica
	webcam  *fakePeer
	screen  *fakePeer
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		channel: &fakeChannel{},
		replica: NewReplica(),
		webcam:  &fakePeer{},
		screen:  &fakePeer{},
		now:     time.Unix(1000, 0),
	}
	webcamMgr := media.NewLinkManager(media.Webcam, f.webcam, f.replica.DisplayName)
	screenMgr := media.NewLinkManager(media.Screen, f.screen, f.replica.DisplayName)
	f.player = NewLocalPlayer(LocalPlayerConfig{
		Channel:  f.channel,
		Replica:  f.replica,
		Zones:    zone.DefaultOffices(),
		Webcam:   webcamMgr,
		Screen:   screenMgr,
		Username: "mia",
		Now:      func() time.Time { return f.now },
	})
	if err := webcamMgr.Initialize(context.Background(), "me"); err != nil {
		t.Fatal(err)
	}
	if err := screenMgr.Initialize(context.Background(), "me"); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) withCamera(t *testing.T) *fixture {
	t.Helper()
	capture := func(context.Context) (media.Stream, error) { return &fakeStream{}, nil }
	if err := f.player.webcam.Acquire(context.Background(), capture); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) tick(t *testing.T) {
	t.Helper()
	if err := f.player.Tick(); err != nil {
		t.Fatal(err)
	}
}

// Inside mainOffice (799.85,608.02 sized 799.85x512.02).
const insideX, insideY = 900, 700

// Far from every office.
const outsideX, outsideY = 550, 150

func TestTickReportsMovementOnce(t *testing.T) {
	f := newFixture(t)
	f.player.Move(outsideX, outsideY, "adam_right_walk")
	f.tick(t)
	f.tick(t)
	if f.channel.moves != 1 {
		t.Fatalf("sent %d movement updates, want 1", f.channel.moves)
	}
}

func TestOfficeEntrySharesToEachMemberOnce(t *testing.T) {
	f := newFixture(t).withCamera(t)
	f.replica.applyRoomState("me", []domain.Player{
		{SessionID: "me", Username: "mia"},
		{SessionID: "a", Username: "alice"},
		{SessionID: "b", Username: "bob"},
	}, map[domain.ZoneName]map[domain.SessionID]string{
		"mainOffice": {"a": "alice", "b": "bob"},
	})

	f.player.Move(insideX, insideY, "adam_down_idle")
	f.tick(t)

	if len(f.channel.joins) != 1 || f.channel.joins[0] != "mainOffice" {
		t.Fatalf("joins = %v", f.channel.joins)
	}
	targets := f.webcam.callTargets()
	if len(targets) != 2 {
		t.Fatalf("placed %d webcam calls, want 2 (one per member): %v", len(targets), targets)
	}
	for _, id := range targets {
		if id == "me" {
			t.Fatal("shared the stream with self")
		}
	}
}

func TestOfficeEntryWithoutCameraPlacesNoCalls(t *testing.T) {
	f := newFixture(t)
	f.replica.applyRoomState("me", []domain.Player{{SessionID: "me", Username: "mia"}},
		map[domain.ZoneName]map[domain.SessionID]string{"mainOffice": {"a": "alice"}})

	f.player.Move(insideX, insideY, "adam_down_idle")
	f.tick(t)

	if len(f.webcam.calls) != 0 {
		t.Fatalf("placed %d calls without a camera", len(f.webcam.calls))
	}
	if len(f.channel.officeCalls) != 0 {
		t.Fatalf("asked for call-backs without a prior explicit stop: %v", f.channel.officeCalls)
	}
}

func TestOfficeReentryAfterStopAsksForCallBack(t *testing.T) {
	f := newFixture(t).withCamera(t)
	f.replica.applyRoomState("me", []domain.Player{{SessionID: "me", Username: "mia"}}, nil)

	f.player.Move(insideX, insideY, "adam_down_idle")
	f.tick(t)
	if err := f.player.StopWebcam(); err != nil {
		t.Fatal(err)
	}
	f.player.Move(outsideX, outsideY, "adam_left_walk")
	f.tick(t)
	f.player.Move(insideX, insideY, "adam_down_idle")
	f.tick(t)

	if len(f.channel.officeCalls) != 1 || f.channel.officeCalls[0] != "mainOffice" {
		t.Fatalf("officeCalls = %v, want one call-back request", f.channel.officeCalls)
	}
}

func TestOfficeExitDropsLinksKeepsCamera(t *testing.T) {
	f := newFixture(t).withCamera(t)
	f.replica.applyRoomState("me", []domain.Player{
		{SessionID: "me", Username: "mia"},
		{SessionID: "a", Username: "alice"},
	}, map[domain.ZoneName]map[domain.SessionID]string{"mainOffice": {"a": "alice"}})

	f.player.Move(insideX, insideY, "adam_down_idle")
	f.tick(t)
	f.player.Move(outsideX, outsideY, "adam_left_walk")
	f.tick(t)

	if len(f.channel.leaves) != 1 || f.channel.leaves[0] != "mainOffice" {
		t.Fatalf("leaves = %v", f.channel.leaves)
	}
	if f.webcam.calls[0].closed != 1 {
		t.Fatal("office webcam call survived the exit")
	}
	if !f.player.webcam.HasLocalStream() {
		t.Fatal("camera stopped by a zone exit")
	}
}

func TestProximityPromotionSharesWebcam(t *testing.T) {
	f := newFixture(t).withCamera(t)
	f.replica.applyRoomState("me", []domain.Player{
		{SessionID: "me", Username: "mia", X: outsideX, Y: outsideY},
		{SessionID: "a", Username: "alice", X: outsideX + 20, Y: outsideY},
	}, nil)

	f.player.Move(outsideX, outsideY, "adam_down_idle")
	f.tick(t)
	if len(f.webcam.calls) != 0 {
		t.Fatal("shared before the dwell delay elapsed")
	}

	f.now = f.now.Add(600 * time.Millisecond)
	f.tick(t)
	if got := f.webcam.callTargets(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("webcam calls = %v, want exactly one to a", got)
	}
}

func TestProximityDriftSignalsRemoval(t *testing.T) {
	f := newFixture(t).withCamera(t)
	f.replica.applyRoomState("me", []domain.Player{
		{SessionID: "me", Username: "mia"},
		{SessionID: "a", Username: "alice", X: outsideX + 20, Y: outsideY},
	}, nil)

	f.player.Move(outsideX, outsideY, "adam_down_idle")
	f.tick(t)
	f.now = f.now.Add(600 * time.Millisecond)
	f.tick(t)

	f.replica.applyPlayerUpdated(domain.Player{SessionID: "a", Username: "alice", X: outsideX + 200, Y: outsideY})
	f.tick(t)

	if len(f.channel.removals) != 1 || f.channel.removals[0] != "a" {
		t.Fatalf("removals = %v, want one for a", f.channel.removals)
	}
	if f.webcam.calls[0].closed != 1 {
		t.Fatal("call survived the drift")
	}
}

func TestStopWebcamInOffice(t *testing.T) {
	f := newFixture(t).withCamera(t)
	f.replica.applyRoomState("me", []domain.Player{{SessionID: "me", Username: "mia"}}, nil)
	f.player.Move(insideX, insideY, "adam_down_idle")
	f.tick(t)

	if err := f.player.StopWebcam(); err != nil {
		t.Fatal(err)
	}
	if len(f.channel.stoppedOffice) != 1 || f.channel.stoppedOffice[0] != "mainOffice" {
		t.Fatalf("stoppedOffice = %v", f.channel.stoppedOffice)
	}
	if f.player.webcam.HasLocalStream() {
		t.Fatal("local stream survived StopWebcam")
	}
	last := f.channel.updates[len(f.channel.updates)-1]
	if last.IsWebcamOn == nil || *last.IsWebcamOn || last.IsDisconnected == nil || !*last.IsDisconnected {
		t.Fatalf("status patch = %+v, want webcam off and disconnected", last)
	}
}

func TestStopWebcamInProximity(t *testing.T) {
	f := newFixture(t).withCamera(t)
	f.replica.applyRoomState("me", []domain.Player{
		{SessionID: "me", Username: "mia"},
		{SessionID: "a", Username: "alice", X: outsideX + 20, Y: outsideY},
	}, nil)
	f.player.Move(outsideX, outsideY, "adam_down_idle")
	f.tick(t)
	f.now = f.now.Add(600 * time.Millisecond)
	f.tick(t)

	if err := f.player.StopWebcam(); err != nil {
		t.Fatal(err)
	}
	if len(f.channel.stoppedProximity) != 1 {
		t.Fatalf("stoppedProximity = %v", f.channel.stoppedProximity)
	}
	if got := f.channel.stoppedProximity[0]; len(got) != 1 || got[0] != "a" {
		t.Fatalf("stopped-proximity targets = %v", got)
	}
}

func TestScreenShareRequiresOffice(t *testing.T) {
	f := newFixture(t)
	capture := func(context.Context) (media.Stream, error) { return &fakeStream{}, nil }
	if err := f.player.StartScreenShare(context.Background(), capture); err != ErrNotInOffice {
		t.Fatalf("StartScreenShare outside: got %v, want ErrNotInOffice", err)
	}
}

func TestScreenShareFansOutToMembers(t *testing.T) {
	f := newFixture(t)
	f.replica.applyRoomState("me", []domain.Player{
		{SessionID: "me", Username: "mia"},
		{SessionID: "a", Username: "alice"},
	}, map[domain.ZoneName]map[domain.SessionID]string{"mainOffice": {"a": "alice", "me": "mia"}})
	f.player.Move(insideX, insideY, "adam_down_idle")
	f.tick(t)

	capture := func(context.Context) (media.Stream, error) { return &fakeStream{}, nil }
	if err := f.player.StartScreenShare(context.Background(), capture); err != nil {
		t.Fatal(err)
	}
	if got := f.screen.callTargets(); len(got) != 1 || got[0] != "a-ss" {
		t.Fatalf("screen calls = %v, want one to a-ss", got)
	}

	if err := f.player.StopScreenShare(); err != nil {
		t.Fatal(err)
	}
	if len(f.channel.stoppedScreen) != 1 {
		t.Fatalf("stoppedScreen = %v", f.channel.stoppedScreen)
	}
}

// The channel's read loop delivers call events on its own goroutine while the
// game loop keeps ticking; both must be able to touch the proximity links at
// the same time.
func TestCallEventsSafeDuringTicks(t *testing.T) {
	f := newFixture(t).withCamera(t)
	f.replica.applyRoomState("me", []domain.Player{
		{SessionID: "me", Username: "mia"},
		{SessionID: "a", Username: "alice", X: outsideX + 20, Y: outsideY},
	}, nil)
	f.player.Move(outsideX, outsideY, "adam_down_idle")
	f.tick(t)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			f.player.HandleEndVideoCall("a")
			f.player.HandlePlayerRemoved("b")
		}
	}()
	for i := 0; i < 200; i++ {
		f.now = f.now.Add(600 * time.Millisecond)
		f.player.Move(outsideX+float64(i%3), outsideY, "adam_down_idle")
		f.tick(t)
	}
	wg.Wait()
}

func TestHandleEndVideoCallDropsSilently(t *testing.T) {
	f := newFixture(t).withCamera(t)
	f.replica.applyRoomState("me", []domain.Player{
		{SessionID: "me", Username: "mia"},
		{SessionID: "a", Username: "alice", X: outsideX + 20, Y: outsideY},
	}, nil)
	f.player.Move(outsideX, outsideY, "adam_down_idle")
	f.tick(t)
	f.now = f.now.Add(600 * time.Millisecond)
	f.tick(t)

	f.player.HandleEndVideoCall("a")
	if len(f.channel.removals) != 0 {
		t.Fatalf("removal signaled back: %v", f.channel.removals)
	}
	if f.player.engine.HasLink("a") {
		t.Fatal("engine link survived the remote end")
	}
	if f.webcam.calls[0].closed != 1 {
		t.Fatal("call survived the remote end")
	}
}
