package pending

import (
	"log/slog"
	"sync"

	"github.com/luca-patrignani/popcore/domain"
	"github.com/luca-patrignani/popcore/identity"
)

// DefaultWarnThreshold is the queue length past which a missed catchup is
// suspected.
const DefaultWarnThreshold = 16

// ApplyFunc commits a replayed envelope and returns the ids it produced. It
// must not call back into the Resolver.
type ApplyFunc func(env domain.Envelope) ([]identity.Base64URLData, error)

type entry struct {
	env     domain.Envelope
	arrival uint64
}

// Resolver buffers messages that reference ids not produced yet and replays
// them, in arrival order, once the id shows up.
type Resolver struct {
	mu      sync.Mutex
	queues  map[string][]entry
	parked  map[string]bool
	arrival uint64
	warnAt  int
	logger  *slog.Logger
}

type Option func(*Resolver)

func WithWarnThreshold(n int) Option {
	return func(r *Resolver) { r.warnAt = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func New(opts ...Option) *Resolver {
	r := &Resolver{
		queues: map[string][]entry{},
		parked: map[string]bool{},
		warnAt: DefaultWarnThreshold,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Park buffers env until awaiting is produced. Parking the same message
// twice is a no-op; it reports whether env was added.
func (r *Resolver) Park(awaiting identity.Base64URLData, env domain.Envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.park(awaiting, env, 0)
}

func (r *Resolver) park(awaiting identity.Base64URLData, env domain.Envelope, arrival uint64) bool {
	id := env.MessageID().String()
	if r.parked[id] {
		return false
	}
	if arrival == 0 {
		r.arrival++
		arrival = r.arrival
	}
	key := awaiting.String()
	q := append(r.queues[key], entry{env: env, arrival: arrival})
	// replays re-park with their original arrival, keep the queue in order
	for i := len(q) - 1; i > 0 && q[i].arrival < q[i-1].arrival; i-- {
		q[i], q[i-1] = q[i-1], q[i]
	}
	r.queues[key] = q
	r.parked[id] = true

	r.logger.Debug("message parked",
		"awaiting", key,
		"object", env.Data.Object(),
		"action", env.Data.Action(),
		"message_id", id)
	if len(q) == r.warnAt+1 {
		r.logger.Warn("pending queue exceeds threshold, a catchup may have been missed",
			"awaiting", key,
			"len", len(q))
	}
	return true
}

func (r *Resolver) take(id identity.Base64URLData) []entry {
	key := id.String()
	q := r.queues[key]
	delete(r.queues, key)
	for _, e := range q {
		delete(r.parked, e.env.MessageID().String())
	}
	return q
}

// Resolve replays everything unblocked by produced, transitively, through
// apply. It returns the number of messages committed. A replay that waits
// for yet another id is parked again under that id; a replay failing for
// any other reason is dropped.
func (r *Resolver) Resolve(produced []identity.Base64URLData, apply ApplyFunc) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	committed := 0
	work := append([]identity.Base64URLData{}, produced...)
	for len(work) > 0 {
		id := work[0]
		work = work[1:]
		for _, e := range r.take(id) {
			ids, err := apply(e.env)
			if err != nil {
				if awaiting, ok := domain.IsUnknownEntity(err); ok {
					r.park(awaiting, e.env, e.arrival)
					continue
				}
				r.logger.Warn("dropping replayed message",
					"object", e.env.Data.Object(),
					"action", e.env.Data.Action(),
					"message_id", e.env.MessageID().String(),
					"err", err)
				continue
			}
			committed++
			work = append(work, ids...)
		}
	}
	return committed
}

// Len is the number of parked messages.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.parked)
}

// Waiting returns the number of messages parked under id.
func (r *Resolver) Waiting(id identity.Base64URLData) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues[id.String()])
}

// Clear drops every parked message.
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues = map[string][]entry{}
	r.parked = map[string]bool{}
}
