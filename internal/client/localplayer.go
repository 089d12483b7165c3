package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatherly/office/internal/client/media"
	"github.com/gatherly/office/internal/client/proximity"
	"github.com/gatherly/office/internal/domain"
	"github.com/gatherly/office/internal/zone"
)

var ErrNotInOffice = errors.New("client: not inside an office")

// LocalPlayerConfig wires a LocalPlayer together. Both media managers are
// passed in explicitly; the player never reaches for ambient state.
type LocalPlayerConfig struct {
	Channel  Channel
	Replica  *Replica
	Zones    *zone.Map
	Webcam   *media.LinkManager
	Screen   *media.LinkManager
	Username string
	Now      func() time.Time
}

// LocalPlayer owns the per-tick loop of the locally controlled player:
// movement reporting, office enter/leave, proximity evaluation and the
// webcam/screen actions. The tick loop, the action methods and the room
// event handlers all serialize on one mutex, so the channel's read loop may
// invoke the handlers while another goroutine drives Tick.
type LocalPlayer struct {
	channel  Channel
	replica  *Replica
	zones    *zone.Map
	tracker  *zone.Tracker
	engine   *proximity.Engine
	webcam   *media.LinkManager
	screen   *media.LinkManager
	username string
	now      func() time.Time

	x, y  float64
	anim  string
	dirty bool

	office domain.ZoneName

	// webcamStopped marks an explicit webcam disconnect; the next office
	// entry then asks the members to call back instead of sharing.
	webcamStopped bool

	// actMu serializes Tick, the action methods and the event handlers;
	// mu guards office alone so locked paths can still read it.
	actMu sync.Mutex
	mu    sync.Mutex
}

func NewLocalPlayer(cfg LocalPlayerConfig) *LocalPlayer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	p := &LocalPlayer{
		channel:  cfg.Channel,
		replica:  cfg.Replica,
		zones:    cfg.Zones,
		tracker:  zone.NewTracker(cfg.Zones),
		webcam:   cfg.Webcam,
		screen:   cfg.Screen,
		username: cfg.Username,
		now:      cfg.Now,
	}
	p.engine = proximity.NewEngine(proximity.DefaultRadius, proximity.DefaultDelay, proximityActions{p})
	if p.screen != nil {
		p.screen.SetOnLocalEnded(func() {
			if err := p.StopScreenShare(); err != nil {
				log.Warn().Err(err).Str("module", "client").Msg("screen end teardown")
			}
		})
	}
	return p
}

// proximityActions routes engine decisions to the webcam manager and the
// room channel.
type proximityActions struct{ p *LocalPlayer }

func (a proximityActions) ShareMedia(sid domain.SessionID) {
	if err := a.p.webcam.Share(sid); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("sid", string(sid)).Msg("proximity share failed")
	}
}

func (a proximityActions) EndCall(sid domain.SessionID) {
	a.p.webcam.DisconnectUser(sid)
}

func (a proximityActions) SignalRemoval(sid domain.SessionID) {
	if err := a.p.channel.RemoveFromProximityCall(sid); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("sid", string(sid)).Msg("removal signal failed")
	}
}

// Move records the player's position for the next tick.
func (p *LocalPlayer) Move(x, y float64, anim string) {
	p.actMu.Lock()
	defer p.actMu.Unlock()
	if x == p.x && y == p.y && anim == p.anim {
		return
	}
	p.x, p.y, p.anim = x, y, anim
	p.dirty = true
}

func (p *LocalPlayer) Office() domain.ZoneName {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.office
}

// Tick runs one frame: report movement, handle office transitions, evaluate
// proximity against every replicated player.
func (p *LocalPlayer) Tick() error {
	p.actMu.Lock()
	defer p.actMu.Unlock()
	if p.dirty {
		p.dirty = false
		if err := p.channel.SendPlayerUpdate(p.x, p.y, p.anim, nil); err != nil {
			return err
		}
	}

	current := p.tracker.Update(p.x, p.y)
	if current != p.Office() {
		if prev := p.Office(); prev != "" {
			if err := p.exitOffice(prev); err != nil {
				return err
			}
		}
		if current != "" {
			if err := p.enterOffice(current); err != nil {
				return err
			}
		}
		p.setOffice(current)
	}

	p.evaluateProximity()
	return nil
}

func (p *LocalPlayer) setOffice(office domain.ZoneName) {
	p.mu.Lock()
	p.office = office
	p.mu.Unlock()
}

// enterOffice clears every proximity link first: office calls supersede
// proximity calls, and a stale pending timer must never promote inside.
func (p *LocalPlayer) enterOffice(office domain.ZoneName) error {
	p.engine.Clear()
	members := p.replica.OfficeMembers(office)
	if err := p.channel.JoinOffice(p.username, office); err != nil {
		return err
	}
	you := p.replica.You()
	// With a live camera the stream is pushed straight to each member; the
	// call-back request below is reserved for returning after an explicit
	// stop, where there is no stream to push yet.
	if p.webcam.HasLocalStream() {
		for _, sid := range members {
			if sid == you {
				continue
			}
			if err := p.webcam.Share(sid); err != nil {
				log.Warn().Err(err).Str("module", "client").Str("sid", string(sid)).Msg("office share failed")
			}
		}
	} else if p.webcamStopped {
		// Camera was explicitly stopped earlier; ask the members with
		// live streams to call once it is back.
		if err := p.channel.ConnectToOfficeVideoCall(office); err != nil {
			return err
		}
	}
	log.Info().Str("module", "client").Str("office", string(office)).Msg("entered office")
	return nil
}

func (p *LocalPlayer) exitOffice(office domain.ZoneName) error {
	if err := p.channel.LeaveOffice(p.username, office); err != nil {
		return err
	}
	p.replica.clearOfficeChat()
	p.webcam.DisconnectPeers()
	p.screen.Teardown()
	log.Info().Str("module", "client").Str("office", string(office)).Msg("left office")
	return nil
}

func (p *LocalPlayer) evaluateProximity() {
	now := p.now()
	selfInZone := p.Office() != ""
	live := make(map[domain.SessionID]bool)
	for _, other := range p.replica.Others() {
		live[other.SessionID] = true
		p.engine.Evaluate(now, p.x, p.y, selfInZone, proximity.Candidate{
			SessionID: other.SessionID,
			X:         other.X,
			Y:         other.Y,
			InZone:    p.zones.InsideAny(other.X, other.Y),
		})
	}
	for _, sid := range p.engine.LinkedIDs() {
		if !live[sid] {
			p.engine.Drop(sid)
		}
	}
}

// StartWebcam acquires the camera and reconnects the player's calls: office
// members are asked to call back, proximity partners get the fresh stream
// directly plus a call-back request.
func (p *LocalPlayer) StartWebcam(ctx context.Context, capture media.CaptureFunc) error {
	p.actMu.Lock()
	defer p.actMu.Unlock()
	if err := p.webcam.Acquire(ctx, capture); err != nil {
		return err
	}
	p.webcamStopped = false
	on, off := true, false
	if err := p.channel.SendPlayerUpdate(p.x, p.y, p.anim, &domain.StatusPatch{IsWebcamOn: &on, IsDisconnected: &off}); err != nil {
		return err
	}
	if office := p.Office(); office != "" {
		you := p.replica.You()
		for _, sid := range p.replica.OfficeMembers(office) {
			if sid == you {
				continue
			}
			if err := p.webcam.Share(sid); err != nil {
				return err
			}
		}
		return p.channel.ConnectToOfficeVideoCall(office)
	}
	if connected := p.engine.ConnectedIDs(); len(connected) > 0 {
		for _, sid := range connected {
			if err := p.webcam.Share(sid); err != nil {
				return err
			}
		}
		return p.channel.ConnectToProximityVideoCall(connected)
	}
	return nil
}

// StopWebcam tears the webcam manager down and tells the affected parties.
func (p *LocalPlayer) StopWebcam() error {
	p.actMu.Lock()
	defer p.actMu.Unlock()
	connected := p.engine.ConnectedIDs()
	p.webcam.Teardown()
	p.webcamStopped = true

	var err error
	if office := p.Office(); office != "" {
		err = p.channel.StoppedOfficeWebcam(office)
	} else if len(connected) > 0 {
		err = p.channel.StoppedProximityWebcam(connected)
	}
	if err != nil {
		return err
	}
	off, on := false, true
	return p.channel.SendPlayerUpdate(p.x, p.y, p.anim, &domain.StatusPatch{IsWebcamOn: &off, IsDisconnected: &on})
}

// StartScreenShare captures the display and shares it to the current office.
// Screen sharing outside an office is rejected.
func (p *LocalPlayer) StartScreenShare(ctx context.Context, capture media.CaptureFunc) error {
	p.actMu.Lock()
	defer p.actMu.Unlock()
	office := p.Office()
	if office == "" {
		return ErrNotInOffice
	}
	if err := p.screen.Acquire(ctx, capture); err != nil {
		return err
	}
	you := p.replica.You()
	for _, sid := range p.replica.OfficeMembers(office) {
		if sid == you {
			continue
		}
		if err := p.screen.Share(sid); err != nil {
			return fmt.Errorf("share screen with %s: %w", sid, err)
		}
	}
	return nil
}

func (p *LocalPlayer) StopScreenShare() error {
	p.actMu.Lock()
	defer p.actMu.Unlock()
	p.screen.Teardown()
	if office := p.Office(); office != "" {
		return p.channel.StoppedScreenSharing(office)
	}
	return nil
}

// HandleConnectToVideoCall reacts to a remote player asking for the local
// stream, either from an office call-back or a proximity reconnect.
func (p *LocalPlayer) HandleConnectToVideoCall(sid domain.SessionID) {
	p.actMu.Lock()
	defer p.actMu.Unlock()
	if err := p.webcam.Share(sid); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("sid", string(sid)).Msg("call-back share failed")
	}
}

// HandleEndVideoCall reacts to the remote side ending the call: drop the
// engine link without signaling back and close the feed.
func (p *LocalPlayer) HandleEndVideoCall(sid domain.SessionID) {
	p.actMu.Lock()
	defer p.actMu.Unlock()
	if p.engine.HasLink(sid) {
		p.engine.Drop(sid)
		return
	}
	p.webcam.DisconnectUser(sid)
}

func (p *LocalPlayer) HandleStoppedScreenSharing(sid domain.SessionID) {
	p.actMu.Lock()
	defer p.actMu.Unlock()
	p.screen.DisconnectUser(sid)
}

// HandlePlayerRemoved keeps the engine and managers consistent when a player
// leaves the room entirely.
func (p *LocalPlayer) HandlePlayerRemoved(sid domain.SessionID) {
	p.actMu.Lock()
	defer p.actMu.Unlock()
	if p.engine.HasLink(sid) {
		p.engine.Drop(sid)
	}
	p.webcam.DisconnectUser(sid)
	p.screen.DisconnectUser(sid)
}

// Handlers returns the event wiring for Dial. Replication events are handled
// by the replica itself; these cover the call lifecycle.
func (p *LocalPlayer) Handlers() Handlers {
	return Handlers{
		OnConnectToVideoCall:   p.HandleConnectToVideoCall,
		OnEndVideoCallWithUser: p.HandleEndVideoCall,
		OnStoppedScreenSharing: p.HandleStoppedScreenSharing,
	}
}
