package session

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luca-patrignani/popcore/client"
	"github.com/luca-patrignani/popcore/domain"
	"github.com/luca-patrignani/popcore/pending"
	"github.com/luca-patrignani/popcore/storage"
)

// DefaultDedupSize is how many message ids each LAO remembers to drop
// duplicates.
const DefaultDedupSize = 4096

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithStore enables snapshots: loaded on Join, saved on Leave and shutdown.
func WithStore(s storage.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithRegisterer registers the engine metrics. Without it they are kept in
// a private registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = r
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.requestTimeout = timeout
	}
}

// WithPendingWarnThreshold sets the per-id queue length past which the
// resolver warns about a missed catchup.
func WithPendingWarnThreshold(n int) Option {
	return func(e *Engine) {
		e.pendingWarn = n
	}
}

func WithDedupSize(n int) Option {
	return func(e *Engine) {
		e.dedupSize = n
	}
}

// WithElectionKeys gives the state machines the election private keys held
// by this device, to tally secret ballots.
func WithElectionKeys(keys domain.ElectionKeys) Option {
	return func(e *Engine) {
		e.electionKeys = keys
	}
}

func defaults() *Engine {
	return &Engine{
		logger:         slog.Default(),
		requestTimeout: client.DefaultTimeout,
		pendingWarn:    pending.DefaultWarnThreshold,
		dedupSize:      DefaultDedupSize,
	}
}
