package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/luca-patrignani/popcore/domain"
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/ledger"
	"github.com/luca-patrignani/popcore/messagedata"
	"github.com/luca-patrignani/popcore/pending"
	"github.com/luca-patrignani/popcore/protocol"
)

// ErrNotJoined is returned for operations on a LAO the engine does not
// follow.
var ErrNotJoined = errors.New("lao not joined")

type origin string

const (
	fromBroadcast origin = "broadcast"
	fromCatchup   origin = "catchup"
	fromSnapshot  origin = "snapshot"
	fromLocal     origin = "local"
)

type job struct {
	channel string
	msg     protocol.MessageGeneral
	origin  origin
	reply   chan error
}

// worker owns the state of one LAO. Only its run goroutine touches sm,
// resolver and seen.
type worker struct {
	engine   *Engine
	laoID    identity.Base64URLData
	sm       *domain.StateMachine
	ledger   *ledger.Ledger
	resolver *pending.Resolver
	seen     *lru.Cache
	logger   *slog.Logger

	inbox   chan job
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	state    domain.Snapshot
	watchers map[int]chan domain.Snapshot
	nextW    int
	channels map[string]bool
}

func newWorker(e *Engine, laoID identity.Base64URLData) (*worker, error) {
	seen, err := lru.New(e.dedupSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create duplicate filter: %w", err)
	}
	logger := e.logger.With("lao", laoID.String())
	l := ledger.New()
	opts := []domain.Option{
		domain.WithLogger(e.logger),
		domain.WithLocalKey(e.keys.PublicKey()),
		domain.WithLedger(l),
		domain.WithClock(e.now),
	}
	if e.electionKeys != nil {
		opts = append(opts, domain.WithElectionKeys(e.electionKeys))
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		engine: e,
		laoID:  laoID,
		sm:     domain.NewStateMachine(laoID, opts...),
		ledger: l,
		resolver: pending.New(
			pending.WithWarnThreshold(e.pendingWarn),
			pending.WithLogger(logger),
		),
		seen:     seen,
		logger:   logger,
		inbox:    make(chan job, 64),
		ctx:      ctx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
		watchers: map[int]chan domain.Snapshot{},
		channels: map[string]bool{},
	}
	w.state = w.sm.Snapshot()
	go w.run()
	return w, nil
}

func (w *worker) run() {
	defer close(w.stopped)
	for {
		select {
		case j := <-w.inbox:
			err := w.handle(j)
			w.publishState()
			if j.reply != nil {
				j.reply <- err
			}
		case <-w.ctx.Done():
			return
		}
	}
}

// submit queues j and, when wait is set, returns the outcome of handling it.
func (w *worker) submit(ctx context.Context, j job, wait bool) error {
	if wait {
		j.reply = make(chan error, 1)
	}
	select {
	case w.inbox <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return fmt.Errorf("%w: %s", ErrNotJoined, w.laoID)
	}
	if !wait {
		return nil
	}
	select {
	case err := <-j.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return fmt.Errorf("%w: %s", ErrNotJoined, w.laoID)
	}
}

// handle runs one message through the pipeline. Only rejections of local
// messages are returned; inbound ones are logged.
func (w *worker) handle(j job) error {
	id := j.msg.MessageID.String()
	if w.seen.Contains(id) {
		w.logger.Debug("duplicate message", "message_id", id, "origin", j.origin)
		return nil
	}
	env, err := domain.Open(j.channel, j.msg)
	if err != nil {
		return w.reject(j, err)
	}
	out, err := w.sm.Apply(env)
	if awaiting, ok := domain.IsUnknownEntity(err); ok {
		w.seen.Add(id, struct{}{})
		w.resolver.Park(awaiting, env)
		return nil
	}
	if err != nil {
		return w.reject(j, err)
	}
	w.commit(env, out)
	w.resolver.Resolve(out.Produced, w.replay)
	return nil
}

func (w *worker) replay(env domain.Envelope) ([]identity.Base64URLData, error) {
	out, err := w.sm.Apply(env)
	if err != nil {
		return nil, err
	}
	w.commit(env, out)
	return out.Produced, nil
}

// commit records an applied message and runs its follow-ups.
func (w *worker) commit(env domain.Envelope, out domain.Outcome) {
	id := env.MessageID().String()
	w.seen.Add(id, struct{}{})
	meta := ledger.Metadata{Object: env.Data.Object(), Action: env.Data.Action()}
	if _, err := w.ledger.Append(env.Channel.String(), env.Message, meta); err != nil {
		w.logger.Error("failed to record message", "message_id", id, "err", err)
	}
	w.engine.metrics.processed.WithLabelValues(env.Data.Object(), env.Data.Action()).Inc()

	switch d := env.Data.(type) {
	case *messagedata.SetupElection:
		w.follow(protocol.SubChannel(w.laoID.String(), d.ID.String()))
	}
	if out.Learn != nil {
		w.publishLearn(out.Learn)
	}
}

func (w *worker) reject(j job, err error) error {
	w.engine.metrics.rejected.WithLabelValues(reason(err)).Inc()
	if j.origin == fromLocal {
		return err
	}
	w.logger.Warn("rejecting message",
		"channel", j.channel,
		"origin", j.origin,
		"message_id", j.msg.MessageID.String(),
		"err", err)
	return nil
}

// follow subscribes to channel and feeds its catchup, once per channel.
func (w *worker) follow(channel string) {
	w.mu.Lock()
	if w.channels[channel] {
		w.mu.Unlock()
		return
	}
	w.channels[channel] = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.engine.catchup(w.ctx, w, channel); err != nil && w.ctx.Err() == nil {
			w.logger.Warn("failed to follow channel", "channel", channel, "err", err)
		}
	}()
}

// markFollowed records a channel subscribed outside follow.
func (w *worker) markFollowed(channel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.channels[channel] = true
}

func (w *worker) followed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.channels))
	for ch := range w.channels {
		out = append(out, ch)
	}
	return out
}

func (w *worker) publishLearn(learn *messagedata.Learn) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		channel := protocol.SubChannel(w.laoID.String(), protocol.ConsensusSegment)
		if err := w.engine.Publish(w.ctx, channel, learn); err != nil && w.ctx.Err() == nil {
			w.logger.Warn("failed to publish learn", "instance_id", learn.InstanceID.String(), "err", err)
		}
	}()
}

func (w *worker) publishState() {
	s := w.sm.Snapshot()
	s.Pending = w.resolver.Len()
	w.engine.metrics.pending.WithLabelValues(w.laoID.String()).Set(float64(s.Pending))

	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
	for _, ch := range w.watchers {
		// keep only the latest snapshot for slow readers
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (w *worker) snapshot() domain.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *worker) watch() (<-chan domain.Snapshot, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan domain.Snapshot, 1)
	ch <- w.state
	id := w.nextW
	w.nextW++
	w.watchers[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if _, ok := w.watchers[id]; ok {
				delete(w.watchers, id)
				close(ch)
			}
		})
	}
}

// stop ends the worker and its helpers, then closes the watch streams.
func (w *worker) stop() {
	w.cancel()
	<-w.stopped
	w.wg.Wait()
	w.resolver.Clear()
	w.engine.metrics.pending.DeleteLabelValues(w.laoID.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	for id, ch := range w.watchers {
		close(ch)
		delete(w.watchers, id)
	}
}
