package client

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gatherly/office/internal/client/media"
	"github.com/gatherly/office/internal/client/rtcpeer"
	"github.com/gatherly/office/internal/domain"
)

// capabilityTransport relays one capability's signaling bodies through the
// room channel, translating sanitized peer ids back to session ids.
type capabilityTransport struct {
	channel    Channel
	replica    *Replica
	capability media.Capability
}

// NewSignalTransport adapts the room channel to an rtcpeer endpoint.
func NewSignalTransport(ch Channel, r *Replica, capability media.Capability) rtcpeer.Transport {
	return capabilityTransport{channel: ch, replica: r, capability: capability}
}

func (t capabilityTransport) Send(toPeerID string, body []byte) error {
	sid, ok := t.replica.SessionForPeerID(toPeerID)
	if !ok {
		return fmt.Errorf("client: no session for peer %q", toPeerID)
	}
	return t.channel.SendMediaSignal(sid, string(t.capability), body)
}

// RouteMediaSignals builds the OnMediaSignal handler that hands relayed
// bodies to the endpoint of the named capability.
func RouteMediaSignals(webcam, screen *rtcpeer.Peer) func(domain.SessionID, string, json.RawMessage) {
	return func(from domain.SessionID, capability string, body json.RawMessage) {
		switch media.Capability(capability) {
		case media.Webcam:
			webcam.HandleSignal(media.Sanitize(from, media.Webcam), body)
		case media.Screen:
			screen.HandleSignal(media.Sanitize(from, media.Screen), body)
		default:
			log.Warn().Str("module", "client").Str("capability", capability).Msg("unknown signal capability")
		}
	}
}
