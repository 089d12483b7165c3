// Package rtcpeer implements the media.Peer endpoint over pion/webrtc. Each
// call is one PeerConnection; offers, answers and trickle ICE travel as
// opaque signal bodies relayed through the room channel, addressed by
// sanitized peer id.
package rtcpeer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/gatherly/office/internal/client/media"
)

// Transport relays a signal body to the peer endpoint registered under the
// given sanitized id. One transport serves one capability.
type Transport interface {
	Send(toPeerID string, body []byte) error
}

// TrackSource is satisfied by local streams that carry pion tracks.
type TrackSource interface {
	Tracks() []webrtc.TrackLocal
}

var (
	ErrNotOpen  = errors.New("rtcpeer: endpoint not open")
	errNoTracks = errors.New("rtcpeer: stream carries no tracks")
)

const (
	kindOffer  = "offer"
	kindAnswer = "answer"
	kindICE    = "ice"
	kindBye    = "bye"
)

type signal struct {
	Kind      string                     `json:"kind"`
	CallID    string                     `json:"callId"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Peer is a signaling endpoint addressed by sanitized id. It multiplexes
// any number of concurrent calls over one relay transport.
type Peer struct {
	transport Transport
	cfg       webrtc.Configuration

	mu     sync.Mutex
	id     string
	open   bool
	onCall func(media.IncomingCall)
	calls  map[string]*callState
}

type callState struct {
	peerID  string
	pc      *webrtc.PeerConnection
	inbound *inboundCall // nil for outbound calls
}

func New(transport Transport, cfg webrtc.Configuration) *Peer {
	return &Peer{
		transport: transport,
		cfg:       cfg,
		calls:     make(map[string]*callState),
	}
}

// Open registers the local id. The relay transport is already connected, so
// the endpoint is ready as soon as the id is recorded.
func (p *Peer) Open(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		return fmt.Errorf("rtcpeer: already open as %q", p.id)
	}
	p.id = id
	p.open = true
	log.Info().Str("module", "rtcpeer").Str("peer_id", id).Msg("endpoint open")
	return nil
}

func (p *Peer) OnCall(f func(media.IncomingCall)) {
	p.mu.Lock()
	p.onCall = f
	p.mu.Unlock()
}

// Call offers the local stream to a remote endpoint. The returned handle is
// live immediately; media flows once ICE completes.
func (p *Peer) Call(remoteID string, local media.Stream) (media.Call, error) {
	p.mu.Lock()
	open := p.open
	p.mu.Unlock()
	if !open {
		return nil, ErrNotOpen
	}

	source, ok := local.(TrackSource)
	if !ok {
		return nil, errNoTracks
	}
	tracks := source.Tracks()
	if len(tracks) == 0 {
		return nil, errNoTracks
	}

	pc, err := webrtc.NewPeerConnection(p.cfg)
	if err != nil {
		return nil, err
	}
	callID := uuid.NewString()
	for _, track := range tracks {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return nil, err
		}
	}
	p.watchICE(pc, callID, remoteID)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, err
	}

	p.mu.Lock()
	p.calls[callID] = &callState{peerID: remoteID, pc: pc}
	p.mu.Unlock()

	if err := p.sendSignal(remoteID, signal{Kind: kindOffer, CallID: callID, SDP: pc.LocalDescription()}); err != nil {
		p.dropCall(callID, false)
		return nil, err
	}
	return &outboundCall{peer: p, callID: callID}, nil
}

// HandleSignal feeds one inbound relay body into the endpoint. The caller
// (the room channel dispatcher) supplies the sender's sanitized id.
func (p *Peer) HandleSignal(fromPeerID string, body []byte) {
	var s signal
	if err := json.Unmarshal(body, &s); err != nil {
		log.Warn().Err(err).Str("module", "rtcpeer").Str("peer_id", fromPeerID).Msg("bad signal body")
		return
	}
	switch s.Kind {
	case kindOffer:
		p.handleOffer(fromPeerID, s)
	case kindAnswer:
		p.handleAnswer(s)
	case kindICE:
		p.handleCandidate(s)
	case kindBye:
		p.dropCall(s.CallID, false)
	default:
		log.Warn().Str("module", "rtcpeer").Str("kind", s.Kind).Msg("unknown signal kind")
	}
}

func (p *Peer) handleOffer(fromPeerID string, s signal) {
	p.mu.Lock()
	handler := p.onCall
	p.mu.Unlock()
	if handler == nil || s.SDP == nil {
		return
	}
	in := &inboundCall{peer: p, peerID: fromPeerID, callID: s.CallID, offer: *s.SDP}
	p.mu.Lock()
	p.calls[s.CallID] = &callState{peerID: fromPeerID, inbound: in}
	p.mu.Unlock()
	handler(in)
}

func (p *Peer) handleAnswer(s signal) {
	p.mu.Lock()
	state := p.calls[s.CallID]
	p.mu.Unlock()
	if state == nil || state.pc == nil || s.SDP == nil {
		return
	}
	if err := state.pc.SetRemoteDescription(*s.SDP); err != nil {
		log.Error().Err(err).Str("module", "rtcpeer").Str("call_id", s.CallID).Msg("set remote answer failed")
	}
}

func (p *Peer) handleCandidate(s signal) {
	p.mu.Lock()
	state := p.calls[s.CallID]
	p.mu.Unlock()
	if state == nil || s.Candidate == nil {
		return
	}
	pc := state.pc
	if pc == nil && state.inbound != nil {
		pc = state.inbound.connection()
	}
	if pc == nil {
		return
	}
	if err := pc.AddICECandidate(*s.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "rtcpeer").Str("call_id", s.CallID).Msg("add candidate failed")
	}
}

func (p *Peer) watchICE(pc *webrtc.PeerConnection, callID, remoteID string) {
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		if err := p.sendSignal(remoteID, signal{Kind: kindICE, CallID: callID, Candidate: &init}); err != nil {
			log.Warn().Err(err).Str("module", "rtcpeer").Str("call_id", callID).Msg("candidate relay failed")
		}
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "rtcpeer").Str("call_id", callID).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed {
			p.dropCall(callID, false)
		}
	})
}

func (p *Peer) sendSignal(toPeerID string, s signal) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return p.transport.Send(toPeerID, body)
}

// dropCall closes one call's connection and forgets it. With notify set, a
// bye is relayed so the remote side tears down too.
func (p *Peer) dropCall(callID string, notify bool) {
	p.mu.Lock()
	state := p.calls[callID]
	delete(p.calls, callID)
	p.mu.Unlock()
	if state == nil {
		return
	}
	if notify {
		if err := p.sendSignal(state.peerID, signal{Kind: kindBye, CallID: callID}); err != nil {
			log.Debug().Err(err).Str("module", "rtcpeer").Str("call_id", callID).Msg("bye relay failed")
		}
	}
	pc := state.pc
	if pc == nil && state.inbound != nil {
		pc = state.inbound.connection()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtcpeer").Str("call_id", callID).Msg("close error")
		}
	}
}

// Close tears down every call and shuts the endpoint.
func (p *Peer) Close() error {
	p.mu.Lock()
	ids := make([]string, 0, len(p.calls))
	for id := range p.calls {
		ids = append(ids, id)
	}
	p.open = false
	p.mu.Unlock()
	for _, id := range ids {
		p.dropCall(id, true)
	}
	return nil
}

func (p *Peer) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type outboundCall struct {
	peer   *Peer
	callID string
}

func (c *outboundCall) Close() { c.peer.dropCall(c.callID, true) }

type inboundCall struct {
	peer   *Peer
	peerID string
	callID string
	offer  webrtc.SessionDescription

	mu       sync.Mutex
	pc       *webrtc.PeerConnection
	onStream func(media.Stream)
	pending  media.Stream
}

func (c *inboundCall) PeerID() string { return c.peerID }

// Answer builds the connection, applies the offer and relays the answer.
// The remote stream surfaces via OnStream once the first track arrives.
func (c *inboundCall) Answer() error {
	pc, err := webrtc.NewPeerConnection(c.peer.cfg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.pc = pc
	c.mu.Unlock()

	remote := newRemoteStream(pc)
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Debug().
			Str("module", "rtcpeer").
			Str("call_id", c.callID).
			Str("kind", track.Kind().String()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		if remote.addTrack(track) {
			c.deliver(remote)
		}
	})
	c.peer.watchICE(pc, c.callID, c.peerID)

	if err := pc.SetRemoteDescription(c.offer); err != nil {
		pc.Close()
		return err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return err
	}
	return c.peer.sendSignal(c.peerID, signal{Kind: kindAnswer, CallID: c.callID, SDP: pc.LocalDescription()})
}

func (c *inboundCall) OnStream(f func(media.Stream)) {
	c.mu.Lock()
	c.onStream = f
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	if pending != nil {
		f(pending)
	}
}

// deliver hands the stream to the registered callback, or parks it until one
// is registered. Fires at most once per call.
func (c *inboundCall) deliver(s media.Stream) {
	c.mu.Lock()
	f := c.onStream
	if f == nil {
		c.pending = s
	}
	c.mu.Unlock()
	if f != nil {
		f(s)
	}
}

func (c *inboundCall) connection() *webrtc.PeerConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pc
}

func (c *inboundCall) Close() { c.peer.dropCall(c.callID, true) }
