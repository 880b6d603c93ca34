package network

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const writeWait = 10 * time.Second

// WebSocket is a Conn over a gorilla websocket connection.
type WebSocket struct {
	conn   *websocket.Conn
	out    chan []byte
	in     chan []byte
	done   chan struct{}
	dead   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
	logger *slog.Logger
}

var _ Conn = (*WebSocket)(nil)

// Dial opens a websocket connection to url.
func Dial(ctx context.Context, url string, opts ...Option) (*WebSocket, error) {
	cfg := newConfig(opts)
	conn, resp, err := cfg.newDialer().DialContext(ctx, url, cfg.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return newWebSocket(conn, cfg), nil
}

// Accept upgrades an HTTP request to a websocket connection.
func Accept(w http.ResponseWriter, r *http.Request, opts ...Option) (*WebSocket, error) {
	cfg := newConfig(opts)
	upgrader := websocket.Upgrader{
		HandshakeTimeout: cfg.handshakeTimeout,
		CheckOrigin:      func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	return newWebSocket(conn, cfg), nil
}

func newWebSocket(conn *websocket.Conn, cfg config) *WebSocket {
	ws := &WebSocket{
		conn:   conn,
		out:    make(chan []byte, cfg.bufferSize),
		in:     make(chan []byte, cfg.bufferSize),
		done:   make(chan struct{}),
		dead:   make(chan struct{}),
		logger: cfg.logger,
	}
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return ws.readPump(ctx) })
	g.Go(func() error { return ws.writePump(ctx) })
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-ws.done:
		}
		return ws.conn.Close()
	})
	go func() {
		err := g.Wait()
		select {
		case <-ws.done:
			err = ErrClosed
		default:
		}
		if err == nil {
			err = ErrClosed
		}
		ws.mu.Lock()
		ws.err = err
		ws.mu.Unlock()
		ws.logger.Debug("websocket closed", "remote", conn.RemoteAddr().String(), "err", err)
		close(ws.in)
		close(ws.dead)
	}()
	return ws
}

func (ws *WebSocket) readPump(ctx context.Context) error {
	for {
		kind, frame, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrClosed
			}
			return fmt.Errorf("read failed: %w", err)
		}
		if kind != websocket.TextMessage {
			ws.logger.Warn("ignoring non text frame", "kind", kind)
			continue
		}
		select {
		case ws.in <- frame:
		case <-ctx.Done():
			return nil
		case <-ws.done:
			return nil
		}
	}
}

func (ws *WebSocket) writePump(ctx context.Context) error {
	for {
		select {
		case frame := <-ws.out:
			if err := ws.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return err
			}
			if err := ws.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("write failed: %w", err)
			}
		case <-ctx.Done():
			return nil
		case <-ws.done:
			// best effort goodbye, the closer goroutine drops the socket
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return nil
		}
	}
}

func (ws *WebSocket) Send(ctx context.Context, frame []byte) error {
	select {
	case <-ws.done:
		return ErrClosed
	case <-ws.dead:
		return ErrClosed
	default:
	}
	select {
	case ws.out <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-ws.done:
		return ErrClosed
	case <-ws.dead:
		return ErrClosed
	}
}

func (ws *WebSocket) Frames() <-chan []byte { return ws.in }

func (ws *WebSocket) Err() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.err
}

// Close tears the connection down and waits for the pumps to stop.
func (ws *WebSocket) Close() error {
	ws.once.Do(func() { close(ws.done) })
	<-ws.dead
	return nil
}
