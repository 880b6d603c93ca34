package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luca-patrignani/popcore/client"
	"github.com/luca-patrignani/popcore/domain"
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/keystore"
	"github.com/luca-patrignani/popcore/messagedata"
	"github.com/luca-patrignani/popcore/protocol"
	"github.com/luca-patrignani/popcore/storage"
)

// ErrDisconnected is returned by Run when the server connection ends.
var ErrDisconnected = errors.New("server connection ended")

// Engine drives the LAOs joined by the local device over one connection.
type Engine struct {
	keys           keystore.KeyHolder
	client         *client.Client
	store          storage.Store
	registerer     prometheus.Registerer
	metrics        *metrics
	electionKeys   domain.ElectionKeys
	logger         *slog.Logger
	requestTimeout time.Duration
	pendingWarn    int
	dedupSize      int
	now            func() time.Time

	// opMu serializes Join, Leave and CreateLAO.
	opMu      sync.Mutex
	mu        sync.RWMutex
	workers   map[string]*worker
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// New builds an engine signing with keys and talking over transport. The
// engine owns transport. Run must be running for requests to complete.
func New(keys keystore.KeyHolder, transport client.Transport, opts ...Option) (*Engine, error) {
	e := defaults()
	for _, opt := range opts {
		opt(e)
	}
	if e.registerer == nil {
		e.registerer = prometheus.NewRegistry()
	}
	m, err := newMetrics(e.registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	e.metrics = m
	e.keys = keys
	e.now = time.Now
	e.workers = map[string]*worker{}
	e.client = client.New(transport,
		client.WithTimeout(e.requestTimeout),
		client.WithLogger(e.logger),
	)
	return e, nil
}

// Run dispatches broadcasts to the LAO workers until ctx is done or the
// connection ends, then shuts the engine down.
func (e *Engine) Run(ctx context.Context) error {
	defer e.Close()
	for {
		select {
		case req, ok := <-e.client.Broadcasts():
			if !ok {
				return ErrDisconnected
			}
			e.route(ctx, req)
		case <-ctx.Done():
			return nil
		}
	}
}

func (e *Engine) route(ctx context.Context, req protocol.Request) {
	msg := *req.Params.Message
	w, err := e.workerFor(req.Params.Channel, msg.Data)
	if err != nil {
		e.logger.Debug("ignoring broadcast", "channel", req.Params.Channel, "err", err)
		return
	}
	if err := w.submit(ctx, job{channel: req.Params.Channel, msg: msg, origin: fromBroadcast}, false); err != nil {
		e.logger.Debug("broadcast not queued", "channel", req.Params.Channel, "err", err)
	}
}

// workerFor finds the worker of the LAO a message belongs to. On the root
// channel that is the LAO the payload creates.
func (e *Engine) workerFor(channel string, data []byte) (*worker, error) {
	ch, err := protocol.ParseChannel(channel)
	if err != nil {
		return nil, err
	}
	var laoID string
	if ch.IsRoot() {
		d, err := messagedata.Decode(data)
		if err != nil {
			return nil, err
		}
		create, ok := d.(*messagedata.CreateLao)
		if !ok {
			return nil, fmt.Errorf("%s#%s on %s", d.Object(), d.Action(), protocol.Root)
		}
		laoID = create.ID.String()
	} else if laoID, err = canonical(ch.LaoID); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.workers[laoID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotJoined, laoID)
	}
	return w, nil
}

// Join follows a LAO: it replays the stored snapshot if any, then
// subscribes to the LAO channels and processes their catchup.
func (e *Engine) Join(ctx context.Context, laoID string) error {
	id, err := identity.DecodeBase64URL(laoID)
	if err != nil {
		return fmt.Errorf("invalid lao id: %w", err)
	}
	laoID = id.String()
	e.opMu.Lock()
	defer e.opMu.Unlock()

	w, created, err := e.addWorker(id)
	if err != nil || !created {
		return err
	}
	if err := e.restore(ctx, w); err != nil {
		e.logger.Warn("ignoring stored snapshot", "lao", laoID, "err", err)
	}
	for _, channel := range laoChannels(laoID) {
		if err := e.catchup(ctx, w, channel); err != nil {
			e.dropWorker(w)
			return fmt.Errorf("failed to join %s: %w", laoID, err)
		}
		w.markFollowed(channel)
	}
	e.logger.Info("lao joined", "lao", laoID, "applied", w.snapshot().Applied)
	return nil
}

// CreateLAO publishes a new LAO organized by the local key and joins it.
func (e *Engine) CreateLAO(ctx context.Context, name string, witnesses []identity.PublicKey) (identity.Base64URLData, error) {
	create := messagedata.NewCreateLao(e.keys.PublicKey(), name, e.now().Unix(), witnesses)
	e.opMu.Lock()
	defer e.opMu.Unlock()

	w, created, err := e.addWorker(create.ID)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, &domain.DuplicateResourceError{Kind: "lao", ID: create.ID}
	}
	if err := e.Publish(ctx, protocol.Root, create); err != nil {
		e.dropWorker(w)
		return nil, err
	}
	for _, channel := range laoChannels(create.ID.String()) {
		if err := e.catchup(ctx, w, channel); err != nil {
			e.dropWorker(w)
			return nil, fmt.Errorf("failed to follow the new lao: %w", err)
		}
		w.markFollowed(channel)
	}
	return create.ID, nil
}

// Leave unsubscribes from the LAO channels, stores a snapshot and discards
// the LAO state, parked messages included.
func (e *Engine) Leave(ctx context.Context, laoID string) error {
	laoID, err := canonical(laoID)
	if err != nil {
		return err
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	w, ok := e.workers[laoID]
	delete(e.workers, laoID)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotJoined, laoID)
	}
	var errs []error
	for _, channel := range w.followed() {
		err := e.request(protocol.MethodUnsubscribe, func() error { return e.client.Unsubscribe(ctx, channel) })
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to unsubscribe from %s: %w", channel, err))
		}
	}
	w.stop()
	e.metrics.joined.Dec()
	if err := e.save(w); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Publish signs data and publishes it on channel. The message is applied
// locally once the server accepted it; a local rejection is returned. A
// message waiting for a predecessor is parked and Publish returns nil.
func (e *Engine) Publish(ctx context.Context, channel string, data messagedata.Data) error {
	_, err := e.PublishMessage(ctx, channel, data)
	return err
}

// PublishMessage is Publish returning the signed message.
func (e *Engine) PublishMessage(ctx context.Context, channel string, data messagedata.Data) (protocol.MessageGeneral, error) {
	raw, err := messagedata.Encode(data)
	if err != nil {
		return protocol.MessageGeneral{}, err
	}
	msg, err := protocol.NewMessage(e.keys, raw)
	if err != nil {
		return protocol.MessageGeneral{}, err
	}
	w, err := e.workerFor(channel, raw)
	if err != nil {
		return protocol.MessageGeneral{}, err
	}
	err = e.request(protocol.MethodPublish, func() error { return e.client.Publish(ctx, channel, msg) })
	if err != nil {
		return protocol.MessageGeneral{}, fmt.Errorf("failed to publish %s#%s: %w", data.Object(), data.Action(), err)
	}
	if err := w.submit(ctx, job{channel: channel, msg: msg, origin: fromLocal}, true); err != nil {
		return protocol.MessageGeneral{}, err
	}
	return msg, nil
}

// State returns the last snapshot of a joined LAO.
func (e *Engine) State(laoID string) (domain.Snapshot, bool) {
	w, ok := e.lookup(laoID)
	if !ok {
		return domain.Snapshot{}, false
	}
	return w.snapshot(), true
}

// Watch streams the snapshots of a LAO, starting with the current one. A
// slow reader only sees the latest snapshot. The channel is closed by the
// returned cancel func or when the LAO is left; it is closed at once if the
// LAO is not joined.
func (e *Engine) Watch(laoID string) (<-chan domain.Snapshot, func()) {
	w, ok := e.lookup(laoID)
	if !ok {
		ch := make(chan domain.Snapshot)
		close(ch)
		return ch, func() {}
	}
	return w.watch()
}

// Joined lists the LAOs followed.
func (e *Engine) Joined() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.workers))
	for id := range e.workers {
		out = append(out, id)
	}
	return out
}

// Close stops every worker, stores their snapshots and closes the
// connection. Outstanding requests fail with client.ErrCancelled.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		workers := e.workers
		e.workers = map[string]*worker{}
		e.closed = true
		e.mu.Unlock()

		var errs []error
		for _, w := range workers {
			w.stop()
			e.metrics.joined.Dec()
			if err := e.save(w); err != nil {
				errs = append(errs, err)
			}
		}
		errs = append(errs, e.client.Close())
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}

func (e *Engine) addWorker(laoID identity.Base64URLData) (*worker, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, false, client.ErrCancelled
	}
	if w, ok := e.workers[laoID.String()]; ok {
		return w, false, nil
	}
	w, err := newWorker(e, laoID)
	if err != nil {
		return nil, false, err
	}
	e.workers[laoID.String()] = w
	e.metrics.joined.Inc()
	return w, true, nil
}

func (e *Engine) dropWorker(w *worker) {
	e.mu.Lock()
	if e.workers[w.laoID.String()] == w {
		delete(e.workers, w.laoID.String())
		e.metrics.joined.Dec()
	}
	e.mu.Unlock()
	w.stop()
}

// catchup subscribes to channel and feeds the messages the server holds
// for it to w, in order.
func (e *Engine) catchup(ctx context.Context, w *worker, channel string) error {
	err := e.request(protocol.MethodSubscribe, func() error { return e.client.Subscribe(ctx, channel) })
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	var msgs []protocol.MessageGeneral
	err = e.request(protocol.MethodCatchup, func() error {
		var err error
		msgs, err = e.client.Catchup(ctx, channel)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to catch up on %s: %w", channel, err)
	}
	for _, msg := range msgs {
		if err := w.submit(ctx, job{channel: channel, msg: msg, origin: fromCatchup}, true); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) request(method string, call func() error) error {
	start := time.Now()
	err := call()
	e.metrics.observeRequest(method, start, err)
	return err
}

func (e *Engine) restore(ctx context.Context, w *worker) error {
	if e.store == nil {
		return nil
	}
	snap, err := e.store.Load(w.laoID.String())
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, rec := range snap.Records {
		if err := w.submit(ctx, job{channel: rec.Channel, msg: rec.Message, origin: fromSnapshot}, true); err != nil {
			return err
		}
	}
	e.logger.Debug("snapshot restored", "lao", snap.LaoID, "records", len(snap.Records), "saved_at", snap.SavedAt)
	return nil
}

func (e *Engine) save(w *worker) error {
	if e.store == nil {
		return nil
	}
	if err := w.ledger.Verify(); err != nil {
		e.logger.Error("ledger failed verification, snapshot not saved", "lao", w.laoID.String(), "err", err)
		return fmt.Errorf("refusing to save snapshot of %s: %w", w.laoID, err)
	}
	blocks := w.ledger.Records()
	snap := storage.Snapshot{
		LaoID:   w.laoID.String(),
		SavedAt: e.now(),
		Records: make([]storage.Record, 0, len(blocks)),
	}
	for _, b := range blocks {
		snap.Records = append(snap.Records, storage.Record{Channel: b.Channel, Message: b.Message})
	}
	if err := e.store.Save(snap); err != nil {
		return fmt.Errorf("failed to save snapshot of %s: %w", snap.LaoID, err)
	}
	return nil
}

func (e *Engine) lookup(laoID string) (*worker, bool) {
	laoID, err := canonical(laoID)
	if err != nil {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.workers[laoID]
	return w, ok
}

// canonical returns the padded base64url form workers are keyed by, so ids
// compare as decoded bytes.
func canonical(laoID string) (string, error) {
	id, err := identity.DecodeBase64URL(laoID)
	if err != nil {
		return "", fmt.Errorf("invalid lao id: %w", err)
	}
	return id.String(), nil
}

// laoChannels are the channels followed for every joined LAO.
func laoChannels(laoID string) []string {
	return []string{
		protocol.LaoChannel(laoID),
		protocol.SubChannel(laoID, protocol.ConsensusSegment),
		protocol.SubChannel(laoID, protocol.CoinSegment),
	}
}
