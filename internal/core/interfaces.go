package core

// Frame is a raw encoded payload delivered to a peer.
type Frame []byte

// ConnectionID identifies one transport connection.
type ConnectionID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
