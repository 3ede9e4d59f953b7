package core

// Frame is a raw serialized message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	// CloseWith flushes frames already queued, then closes with the given code and reason.
	CloseWith(code int, reason string)
	Close()
}
