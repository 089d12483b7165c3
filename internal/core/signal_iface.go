// Package core defines the transport contracts shared by the room engine and
// its adapters.
package core

// Frame is a raw encoded payload.
type Frame []byte

// SignalConnection abstracts the persistent ordered message channel to one
// client. Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
