// Package app runs the room instances. Each room drains a command mailbox on
// its own goroutine, so every inbound message is handled run-to-completion
// and the presence store needs no locking.
package app

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/gatherly/office/internal/core"
	"github.com/gatherly/office/internal/domain"
	"github.com/gatherly/office/internal/metrics"
	"github.com/gatherly/office/internal/presence"
	"github.com/gatherly/office/internal/zone"
)

const inboxSize = 256

type session struct {
	conn     core.SignalConnection
	username string
}

type Room struct {
	meta  domain.Room
	store *presence.Store
	chat  *ChatRateLimiter

	sessions map[domain.SessionID]*session
	inbox    chan func()
	done     chan struct{}
	stopOnce sync.Once

	playerCount atomic.Int64
	metrics     *metrics.Metrics

	// onEmpty fires on the actor goroutine when the last player leaves.
	onEmpty func()
}

type RoomOptions struct {
	HasPassword bool
	Zones       *zone.Map
	Presence    presence.Config
	ChatLimiter *ChatRateLimiter
	Metrics     *metrics.Metrics
	OnEmpty     func()
}

func NewRoom(name domain.RoomName, opts RoomOptions) *Room {
	if opts.Zones == nil {
		opts.Zones = zone.DefaultOffices()
	}
	r := &Room{
		meta:     domain.Room{Name: name, HasPassword: opts.HasPassword},
		store:    presence.NewStore(opts.Zones, opts.Presence),
		chat:     opts.ChatLimiter,
		sessions: make(map[domain.SessionID]*session),
		inbox:    make(chan func(), inboxSize),
		done:     make(chan struct{}),
		metrics:  opts.Metrics,
		onEmpty:  opts.OnEmpty,
	}
	go r.run()
	return r
}

func (r *Room) Meta() domain.Room { return r.meta }

// PlayerCount is safe to read from outside the actor; the lobby listing uses it.
func (r *Room) PlayerCount() int { return int(r.playerCount.Load()) }

func (r *Room) run() {
	for {
		select {
		case <-r.done:
			return
		case cmd := <-r.inbox:
			cmd()
		}
	}
}

// Post enqueues a command for the room actor. Returns false once the room is
// stopped.
func (r *Room) Post(cmd func()) bool {
	select {
	case <-r.done:
		return false
	case r.inbox <- cmd:
		return true
	}
}

func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// send relays a payload to one session. A target that already disconnected is
// a recoverable no-op: the relay is dropped, never fatal to the room.
func (r *Room) send(sid domain.SessionID, v any) {
	sess, ok := r.sessions[sid]
	if !ok {
		log.Debug().Str("module", "app.room").Str("room", string(r.meta.Name)).Str("sid", string(sid)).Msg("relay target gone, dropping")
		if r.metrics != nil {
			r.metrics.DroppedRelays.Inc()
		}
		return
	}
	r.sendTo(sid, sess, v)
}

func (r *Room) broadcast(v any, except domain.SessionID) {
	for sid, sess := range r.sessions {
		if sid == except {
			continue
		}
		r.sendTo(sid, sess, v)
	}
}

func (r *Room) sendTo(sid domain.SessionID, sess *session, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.room").Msg("encode payload")
		return
	}
	if err := sess.conn.TrySend(core.Frame(data)); err != nil {
		// Slow or dead consumer: closing the connection makes its read pump
		// post the LEAVE that cleans everything up.
		log.Warn().Err(err).Str("module", "app.room").Str("sid", string(sid)).Msg("send failed, closing connection")
		sess.conn.Close()
	}
}

func (r *Room) countMessage(msgType string) {
	if r.metrics != nil {
		r.metrics.MessagesTotal.WithLabelValues(msgType).Inc()
	}
}
