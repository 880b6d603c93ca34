package network

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send once the connection ended, and by Err after
// a local Close.
var ErrClosed = errors.New("connection closed")

// Conn is a bidirectional frame connection.
type Conn interface {
	// Send queues one frame. It blocks until the frame is queued, ctx is
	// done or the connection ends.
	Send(ctx context.Context, frame []byte) error
	// Frames delivers inbound frames in arrival order. It is closed when
	// the connection ends.
	Frames() <-chan []byte
	// Err reports why the connection ended, nil while it is alive.
	Err() error
	Close() error
}
