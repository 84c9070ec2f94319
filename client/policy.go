package client

import "errors"

// ErrNotConnected is returned by ErrWhenOffline when an operation is
// attempted without a live connection.
var ErrNotConnected = errors.New("not connected")

// SendPolicy decides what happens to sends attempted while disconnected.
type SendPolicy int

const (
	// DropWhenOffline silently discards the operation. Default; keeps UI
	// code free of error surfaces at the cost of silent loss.
	DropWhenOffline SendPolicy = iota
	// QueueWhenOffline buffers operations FIFO and flushes them after the
	// next successful connect, once room memberships are re-issued.
	QueueWhenOffline
	// ErrWhenOffline returns ErrNotConnected to the caller.
	ErrWhenOffline
)
