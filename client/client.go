package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luca-patrignani/popcore/protocol"
)

// DefaultTimeout bounds a request when no WithTimeout option is given.
const DefaultTimeout = 10 * time.Second

var (
	ErrCancelled = errors.New("request cancelled")
	ErrTimeout   = errors.New("request timed out")
)

// Transport is the frame connection the client drives. network.Conn
// implementations satisfy it.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Frames() <-chan []byte
	Close() error
}

type Client struct {
	transport  Transport
	timeout    time.Duration
	logger     *slog.Logger
	mu         sync.Mutex
	nextID     int
	pending    map[int]chan protocol.Answer
	closed     bool
	broadcasts chan protocol.Request
	done       chan struct{}
	stopped    chan struct{}
	once       sync.Once
}

type Option func(*Client)

// WithTimeout bounds every request. Zero disables the bound, leaving only
// the caller's context.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New starts reading frames from t. The client owns t and closes it.
func New(t Transport, opts ...Option) *Client {
	c := &Client{
		transport:  t,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
		pending:    map[int]chan protocol.Answer{},
		broadcasts: make(chan protocol.Request, 64),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// Broadcasts delivers the server pushes. It is closed when the transport
// ends or the client is closed.
func (c *Client) Broadcasts() <-chan protocol.Request { return c.broadcasts }

// Done is closed once the read loop stopped.
func (c *Client) Done() <-chan struct{} { return c.stopped }

func (c *Client) Subscribe(ctx context.Context, channel string) error {
	_, err := c.call(ctx, func(id int) protocol.Request { return protocol.NewSubscribe(id, channel) })
	return err
}

func (c *Client) Unsubscribe(ctx context.Context, channel string) error {
	_, err := c.call(ctx, func(id int) protocol.Request { return protocol.NewUnsubscribe(id, channel) })
	return err
}

// Catchup returns the messages the server holds for channel.
func (c *Client) Catchup(ctx context.Context, channel string) ([]protocol.MessageGeneral, error) {
	res, err := c.call(ctx, func(id int) protocol.Request { return protocol.NewCatchup(id, channel) })
	if err != nil {
		return nil, err
	}
	if !res.IsList() {
		return nil, fmt.Errorf("%w: catchup answered without a message list", protocol.ErrMalformed)
	}
	return res.Messages, nil
}

func (c *Client) Publish(ctx context.Context, channel string, msg protocol.MessageGeneral) error {
	_, err := c.call(ctx, func(id int) protocol.Request { return protocol.NewPublish(id, channel, msg) })
	return err
}

// call sends the request built for a fresh id and waits for its answer. An
// error answer is returned as *protocol.Error.
func (c *Client) call(ctx context.Context, build func(id int) protocol.Request) (protocol.Result, error) {
	id, answer, err := c.register()
	if err != nil {
		return protocol.Result{}, err
	}
	req := build(id)
	frame, err := json.Marshal(req)
	if err != nil {
		c.forget(id)
		return protocol.Result{}, fmt.Errorf("failed to encode %s request: %w", req.Method, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.transport.Send(ctx, frame); err != nil {
		c.forget(id)
		return protocol.Result{}, fmt.Errorf("failed to send %s request %d: %w", req.Method, id, err)
	}
	c.logger.Debug("request sent", "id", id, "method", req.Method, "channel", req.Params.Channel)

	select {
	case ans, ok := <-answer:
		if !ok {
			return protocol.Result{}, fmt.Errorf("%w: %s request %d", ErrCancelled, req.Method, id)
		}
		if ans.Error != nil {
			return protocol.Result{}, ans.Error
		}
		if ans.Result == nil {
			return protocol.Result{}, fmt.Errorf("%w: %s request %d answered without result", protocol.ErrMalformed, req.Method, id)
		}
		return *ans.Result, nil
	case <-ctx.Done():
		c.forget(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return protocol.Result{}, fmt.Errorf("%w: %s request %d", ErrTimeout, req.Method, id)
		}
		return protocol.Result{}, ctx.Err()
	}
}

func (c *Client) register() (int, chan protocol.Answer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, ErrCancelled
	}
	c.nextID++
	ch := make(chan protocol.Answer, 1)
	c.pending[c.nextID] = ch
	return c.nextID, ch, nil
}

func (c *Client) forget(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *Client) deliver(ans protocol.Answer) {
	c.mu.Lock()
	ch, ok := c.pending[ans.ID]
	delete(c.pending, ans.ID)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("dropping answer without a pending request", "id", ans.ID)
		return
	}
	ch <- ans
}

// cancelAll fails every outstanding request and refuses new ones.
func (c *Client) cancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) readLoop() {
	defer close(c.stopped)
	defer close(c.broadcasts)
	defer c.cancelAll()
	for {
		var raw []byte
		select {
		case frame, ok := <-c.transport.Frames():
			if !ok {
				return
			}
			raw = frame
		case <-c.done:
			return
		}
		frame, err := protocol.ParseFrame(raw)
		if err != nil {
			c.logger.Warn("dropping malformed frame", "err", err)
			continue
		}
		switch frame.Kind {
		case protocol.KindAnswer:
			c.deliver(frame.Answer)
		case protocol.KindBroadcast:
			select {
			case c.broadcasts <- frame.Request:
			case <-c.done:
				return
			}
		default:
			c.logger.Warn("dropping unexpected frame", "kind", frame.Kind, "method", frame.Request.Method)
		}
	}
}

// Close cancels every outstanding request, closes the transport and waits
// for the read loop to stop.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.cancelAll()
		err = c.transport.Close()
	})
	<-c.stopped
	return err
}
