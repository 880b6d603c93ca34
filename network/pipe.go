package network

import (
	"bytes"
	"context"
	"sync"
)

// PipeEnd is one side of an in-memory connection created by Pipe.
type PipeEnd struct {
	queue   chan []byte
	frames  chan []byte
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	peer    *PipeEnd
}

var _ Conn = (*PipeEnd)(nil)

// Pipe returns two connected endpoints. Closing either end ends both.
func Pipe() (*PipeEnd, *PipeEnd) {
	a, b := newPipeEnd(), newPipeEnd()
	a.peer, b.peer = b, a
	go a.pump()
	go b.pump()
	return a, b
}

func newPipeEnd() *PipeEnd {
	return &PipeEnd{
		queue:   make(chan []byte, 64),
		frames:  make(chan []byte),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (p *PipeEnd) pump() {
	defer close(p.stopped)
	defer close(p.frames)
	for {
		select {
		case f := <-p.queue:
			select {
			case p.frames <- f:
			case <-p.done:
				return
			case <-p.peer.done:
				return
			}
		case <-p.done:
			return
		case <-p.peer.done:
			return
		}
	}
}

// Send delivers a copy of frame to the other end.
func (p *PipeEnd) Send(ctx context.Context, frame []byte) error {
	select {
	case <-p.done:
		return ErrClosed
	case <-p.peer.done:
		return ErrClosed
	default:
	}
	select {
	case p.peer.queue <- bytes.Clone(frame):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	case <-p.peer.done:
		return ErrClosed
	}
}

func (p *PipeEnd) Frames() <-chan []byte { return p.frames }

func (p *PipeEnd) Err() error {
	select {
	case <-p.stopped:
		return ErrClosed
	default:
		return nil
	}
}

func (p *PipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	<-p.stopped
	return nil
}
