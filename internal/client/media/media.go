// Package media manages the point-to-point links of one capability (webcam
// or screen) for the local player: the peer endpoint, the local stream and
// every remote feed currently held.
package media

import (
	"context"

	"github.com/gatherly/office/internal/domain"
)

// Capability names one media channel. Both capabilities share one peer
// addressing namespace, so screen ids carry a suffix (see Sanitize).
type Capability string

const (
	Webcam Capability = "webcam"
	Screen Capability = "screen"
)

// Stream is a live local or remote media stream.
type Stream interface {
	// StopTracks stops every track. Safe to call more than once.
	StopTracks()
	// OnEnded registers a callback for the stream ending on its own, e.g.
	// the browser-native "stop sharing" affordance.
	OnEnded(func())
}

// Call is a handle to one established point-to-point link.
type Call interface {
	Close()
}

// IncomingCall is an inbound link offer delivered by the peer endpoint.
type IncomingCall interface {
	// PeerID is the sanitized id of the caller.
	PeerID() string
	// Answer accepts the call; the remote stream arrives asynchronously via
	// OnStream.
	Answer() error
	OnStream(func(Stream))
	Close()
}

// Peer is the signaling endpoint of one capability, addressed by sanitized
// ids. Implemented over WebRTC in rtcpeer; faked in tests.
type Peer interface {
	// Open registers the local id and blocks until the endpoint is ready or
	// reports an error.
	Open(ctx context.Context, id string) error
	OnCall(func(IncomingCall))
	Call(remoteID string, local Stream) (Call, error)
	Close() error
}

// CaptureFunc acquires a local stream, e.g. a camera or display grab.
type CaptureFunc func(ctx context.Context) (Stream, error)

// NameResolver maps a sanitized peer id to a display name. Backed by the
// room-lifetime player table, so names survive zone exits.
type NameResolver func(peerID string) string

// Feed is one remote stream currently held, keyed by sanitized peer id.
type Feed struct {
	Call     Call
	Stream   Stream
	Username string
}

// Sanitize converts a session id into a peer-addressable id: the addressing
// scheme only allows alphanumerics, and screen ids get a "-ss" suffix so the
// two capabilities of one client never collide.
func Sanitize(sid domain.SessionID, capability Capability) string {
	raw := []byte(string(sid))
	out := make([]byte, len(raw))
	for i, b := range raw {
		switch {
		case b >= '0' && b <= '9', b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z':
			out[i] = b
		default:
			out[i] = 'X'
		}
	}
	if capability == Screen {
		return string(out) + "-ss"
	}
	return string(out)
}
