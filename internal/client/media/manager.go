package media

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gatherly/office/internal/domain"
)

var ErrNotInitialized = errors.New("media: peer not initialized")

// LinkManager owns every link of one capability for the local player. It is
// constructed explicitly and handed to whatever owns the player's lifecycle;
// there is no package-level instance.
type LinkManager struct {
	capability Capability
	peer       Peer
	names      NameResolver

	mu          sync.Mutex
	initDone    chan struct{} // non-nil once Initialize started
	initErr     error
	initialized bool
	localID     string

	local    Stream
	outbound map[string]Call // sanitized remote id → outbound call
	feeds    map[string]Feed // sanitized remote id → inbound feed

	onLocalEnded func()
}

func NewLinkManager(capability Capability, peer Peer, names NameResolver) *LinkManager {
	if names == nil {
		names = func(string) string { return "" }
	}
	return &LinkManager{
		capability: capability,
		peer:       peer,
		names:      names,
		outbound:   make(map[string]Call),
		feeds:      make(map[string]Feed),
	}
}

func (m *LinkManager) Capability() Capability { return m.capability }

// Initialize opens the peer endpoint under the sanitized local id. It is
// single-flight: concurrent and repeated calls all observe the result of the
// first one, so a client never ends up with two endpoints per capability.
func (m *LinkManager) Initialize(ctx context.Context, local domain.SessionID) error {
	m.mu.Lock()
	if m.initDone != nil {
		done := m.initDone
		m.mu.Unlock()
		<-done
		return m.initErr
	}
	done := make(chan struct{})
	m.initDone = done
	m.localID = Sanitize(local, m.capability)
	m.mu.Unlock()

	m.peer.OnCall(m.handleIncoming)
	err := m.peer.Open(ctx, m.localID)

	m.mu.Lock()
	m.initErr = err
	m.initialized = err == nil
	m.mu.Unlock()
	close(done)

	if err != nil {
		log.Error().Err(err).Str("module", "media").Str("capability", string(m.capability)).Msg("peer initialization failed")
		return err
	}
	log.Info().Str("module", "media").Str("capability", string(m.capability)).Str("peer_id", m.localID).Msg("peer initialized")
	return nil
}

// handleIncoming auto-answers and records the remote feed once its stream
// arrives. Registration is a keyed upsert: a duplicate call from the same
// peer replaces the previous feed instead of corrupting the map.
func (m *LinkManager) handleIncoming(call IncomingCall) {
	if err := call.Answer(); err != nil {
		log.Error().Err(err).Str("module", "media").Str("peer_id", call.PeerID()).Msg("answer failed")
		return
	}
	call.OnStream(func(stream Stream) {
		peerID := call.PeerID()
		m.mu.Lock()
		if old, ok := m.feeds[peerID]; ok {
			old.Call.Close()
		}
		m.feeds[peerID] = Feed{Call: call, Stream: stream, Username: m.names(peerID)}
		m.mu.Unlock()
		log.Debug().Str("module", "media").Str("capability", string(m.capability)).Str("peer_id", peerID).Msg("remote stream added")
	})
}

// Share places an outbound call carrying the local stream. Calling before
// Initialize is an ordering bug and fails hard; sharing with no local stream
// is an expected race and silently does nothing.
func (m *LinkManager) Share(remote domain.SessionID) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	local := m.local
	m.mu.Unlock()

	if local == nil {
		return nil
	}

	remoteID := Sanitize(remote, m.capability)
	call, err := m.peer.Call(remoteID, local)
	if err != nil {
		log.Error().Err(err).Str("module", "media").Str("capability", string(m.capability)).Str("peer_id", remoteID).Msg("outbound call failed")
		return err
	}

	m.mu.Lock()
	if old, ok := m.outbound[remoteID]; ok {
		old.Close()
	}
	m.outbound[remoteID] = call
	m.mu.Unlock()
	return nil
}

// Acquire obtains the local stream if none is held yet. Repeated acquisition
// with a live stream is a no-op, so double "turn on camera" never grabs the
// device twice. The stream's own end-of-life (e.g. the browser's stop-share
// button) funnels into the registered onLocalEnded handler.
func (m *LinkManager) Acquire(ctx context.Context, capture CaptureFunc) error {
	m.mu.Lock()
	if m.local != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	stream, err := capture(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.local != nil {
		// Lost the race to another Acquire; keep the first stream.
		m.mu.Unlock()
		stream.StopTracks()
		return nil
	}
	m.local = stream
	onEnded := m.onLocalEnded
	m.mu.Unlock()

	if onEnded != nil {
		stream.OnEnded(onEnded)
	}
	return nil
}

// SetOnLocalEnded registers the teardown hook fired when the local stream
// ends on its own. Must be set before Acquire.
func (m *LinkManager) SetOnLocalEnded(f func()) {
	m.mu.Lock()
	m.onLocalEnded = f
	m.mu.Unlock()
}

func (m *LinkManager) HasLocalStream() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local != nil
}

// DisconnectUser closes and forgets every link with one peer. Unknown peers
// are a no-op.
func (m *LinkManager) DisconnectUser(remote domain.SessionID) {
	remoteID := Sanitize(remote, m.capability)
	m.mu.Lock()
	defer m.mu.Unlock()
	if feed, ok := m.feeds[remoteID]; ok {
		feed.Call.Close()
		delete(m.feeds, remoteID)
	}
	if call, ok := m.outbound[remoteID]; ok {
		call.Close()
		delete(m.outbound, remoteID)
	}
}

// Teardown stops the local tracks, closes every held call and clears the
// feed map in one mutex section, so callers never observe a half-torn-down
// manager.
func (m *LinkManager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.local != nil {
		m.local.StopTracks()
		m.local = nil
	}
	for id, feed := range m.feeds {
		feed.Call.Close()
		delete(m.feeds, id)
	}
	for id, call := range m.outbound {
		call.Close()
		delete(m.outbound, id)
	}
}

// DisconnectPeers closes every remote link but keeps the local stream.
// Leaving an office drops its calls without turning the camera off.
func (m *LinkManager) DisconnectPeers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, feed := range m.feeds {
		feed.Call.Close()
		delete(m.feeds, id)
	}
	for id, call := range m.outbound {
		call.Close()
		delete(m.outbound, id)
	}
}

// Feeds snapshots the held remote streams for the render layer.
func (m *LinkManager) Feeds() map[string]Feed {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Feed, len(m.feeds))
	for id, feed := range m.feeds {
		out[id] = feed
	}
	return out
}

func (m *LinkManager) FeedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.feeds)
}
