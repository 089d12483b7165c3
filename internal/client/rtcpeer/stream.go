package rtcpeer

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// LocalStream bundles locally captured tracks with their device stop hook.
// Satisfies media.Stream and TrackSource.
type LocalStream struct {
	mu      sync.Mutex
	tracks  []webrtc.TrackLocal
	stop    func()
	stopped bool
	onEnded []func()
}

// NewLocalStream wraps capture-side tracks. stop releases the underlying
// device and may be nil.
func NewLocalStream(stop func(), tracks ...webrtc.TrackLocal) *LocalStream {
	return &LocalStream{tracks: tracks, stop: stop}
}

func (s *LocalStream) Tracks() []webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks
}

func (s *LocalStream) StopTracks() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	stop := s.stop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (s *LocalStream) OnEnded(f func()) {
	s.mu.Lock()
	s.onEnded = append(s.onEnded, f)
	s.mu.Unlock()
}

// End reports a device-initiated stop, e.g. the platform's own stop-capture
// affordance, and fires the registered hooks.
func (s *LocalStream) End() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	stop := s.stop
	hooks := append([]func(){}, s.onEnded...)
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	for _, f := range hooks {
		f()
	}
}

// remoteStream collects the tracks of one inbound call. Receivers do not own
// remote tracks, so StopTracks is a no-op; the call handle owns teardown.
type remoteStream struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	tracks  []*webrtc.TrackRemote
	onEnded []func()
}

func newRemoteStream(pc *webrtc.PeerConnection) *remoteStream {
	return &remoteStream{pc: pc}
}

// addTrack records a track and reports whether it was the first one.
func (s *remoteStream) addTrack(track *webrtc.TrackRemote) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, track)
	return len(s.tracks) == 1
}

func (s *remoteStream) Tracks() []*webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*webrtc.TrackRemote{}, s.tracks...)
}

func (s *remoteStream) StopTracks() {}

func (s *remoteStream) OnEnded(f func()) {
	s.mu.Lock()
	s.onEnded = append(s.onEnded, f)
	s.mu.Unlock()
}
