package network

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultHandshakeTimeout bounds the websocket opening handshake.
const DefaultHandshakeTimeout = 10 * time.Second

type config struct {
	handshakeTimeout time.Duration
	header           http.Header
	dialer           *websocket.Dialer
	rootCAs          *x509.CertPool
	bufferSize       int
	logger           *slog.Logger
}

type Option func(*config)

func newConfig(opts []Option) config {
	cfg := config{
		handshakeTimeout: DefaultHandshakeTimeout,
		header:           http.Header{},
		bufferSize:       64,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.handshakeTimeout = timeout
	}
}

// WithHeader adds a header to the handshake request.
func WithHeader(key, value string) Option {
	return func(c *config) {
		c.header.Add(key, value)
	}
}

// WithDialer replaces the default dialer. The handshake timeout and root
// CAs options still apply to it.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *config) {
		c.dialer = d
	}
}

// WithRootCAs restricts the server certificates accepted for wss:// urls.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(c *config) {
		c.rootCAs = pool
	}
}

// WithBufferSize sets how many frames may queue in each direction.
func WithBufferSize(n int) Option {
	return func(c *config) {
		c.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func (c config) newDialer() *websocket.Dialer {
	d := *websocket.DefaultDialer
	if c.dialer != nil {
		d = *c.dialer
	}
	d.HandshakeTimeout = c.handshakeTimeout
	if c.rootCAs != nil {
		if d.TLSClientConfig == nil {
			d.TLSClientConfig = &tls.Config{}
		} else {
			d.TLSClientConfig = d.TLSClientConfig.Clone()
		}
		d.TLSClientConfig.RootCAs = c.rootCAs
	}
	return &d
}
