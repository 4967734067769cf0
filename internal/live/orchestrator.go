// Package live keeps the dashboard's live weather and AQI snapshot in step
// with the device position.
//
// Every position starts a new fetch tagged with a monotonically increasing
// sequence number. Only the response carrying the latest sequence number is
// applied; anything older is discarded and counted as stale.
package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/couchcryptid/airwatch/internal/observability"
	"github.com/couchcryptid/airwatch/internal/position"
)

// State is the orchestrator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAwaitingPosition
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPosition:
		return "awaiting_position"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets states appear as strings in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var allStates = []string{"idle", "awaiting_position", "loading", "ready", "failed"}

// Fetcher retrieves the live snapshot for a coordinate.
type Fetcher interface {
	LiveData(ctx context.Context, coords domain.Coords) domain.Result[domain.LiveSnapshot]
}

// Publisher receives every snapshot the orchestrator accepts.
type Publisher interface {
	Publish(ctx context.Context, snap domain.LiveSnapshot) error
}

// Subscriber starts a position subscription. *position.Feed implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, onPosition func(domain.GeoPosition), onError func(error)) *position.Subscription
}

// View is an immutable copy of the orchestrator's view-model.
type View struct {
	State State `json:"state"`
	// Snapshot is the last accepted snapshot. After a failure it is kept and
	// marked Stale until the next success or Stop.
	Snapshot *domain.LiveSnapshot `json:"snapshot,omitempty"`
	Stale    bool                 `json:"stale"`
	Scene    domain.Scene         `json:"scene"`
	Error    string               `json:"error,omitempty"`
	Coords   *domain.Coords       `json:"coords,omitempty"`
	Seq      uint64               `json:"seq"`
}

// Loading reports whether a fetch or the first position is outstanding.
func (v View) Loading() bool {
	return v.State == StateAwaitingPosition || v.State == StateLoading
}

// ErrAlreadyStarted is returned by Start while a subscription is live.
var ErrAlreadyStarted = errors.New("orchestrator already started")

// Orchestrator drives the live snapshot from position updates.
type Orchestrator struct {
	feed      Subscriber
	fetcher   Fetcher
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu          sync.Mutex
	state       State
	epoch       uint64 // bumped by Start and Stop; callbacks from older subscriptions are ignored
	seq         uint64
	snapshot    *domain.LiveSnapshot
	stale       bool
	errMsg      string
	coords      *domain.Coords
	baseCtx     context.Context
	sub         *position.Subscription
	cancelFetch context.CancelFunc
	inflight    *sync.WaitGroup // fetches of the current epoch
}

// NewOrchestrator creates an idle orchestrator. publisher may be nil.
func NewOrchestrator(feed Subscriber, fetcher Fetcher, publisher Publisher, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	o := &Orchestrator{
		feed:      feed,
		fetcher:   fetcher,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
	o.metrics.SetState(StateIdle.String(), allStates)
	return o
}

// Start subscribes to the position feed and waits for the first position.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.epoch++
	epoch := o.epoch
	o.baseCtx = ctx
	o.inflight = &sync.WaitGroup{}
	o.setState(StateAwaitingPosition)
	o.mu.Unlock()

	sub := o.feed.Subscribe(ctx,
		func(pos domain.GeoPosition) { o.onPosition(epoch, pos) },
		func(err error) { o.onPositionError(epoch, err) },
	)

	o.mu.Lock()
	if o.epoch != epoch {
		// Stopped while subscribing.
		o.mu.Unlock()
		sub.Cancel()
		return nil
	}
	o.sub = sub
	o.mu.Unlock()

	o.logger.Info("live orchestrator started")
	return nil
}

// Stop returns to Idle: it cancels the subscription and any in-flight fetch,
// invalidates outstanding responses and drops the snapshot. It waits for
// in-flight work to wind down. Calling Stop while idle is a no-op.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.state == StateIdle {
		o.mu.Unlock()
		return
	}
	o.epoch++
	o.seq++
	sub, cancelFetch, inflight := o.sub, o.cancelFetch, o.inflight
	o.sub, o.cancelFetch, o.inflight = nil, nil, nil
	o.snapshot, o.stale, o.errMsg, o.coords = nil, false, "", nil
	o.setState(StateIdle)
	o.mu.Unlock()

	if cancelFetch != nil {
		cancelFetch()
	}
	if sub != nil {
		sub.Cancel()
	}
	if inflight != nil {
		inflight.Wait()
	}
	o.logger.Info("live orchestrator stopped")
}

// View returns a copy of the current view-model.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := View{State: o.state, Stale: o.stale, Error: o.errMsg, Seq: o.seq}
	if o.snapshot != nil {
		snap := *o.snapshot
		snap.Weather.Hourly = append([]domain.HourlyPoint(nil), o.snapshot.Weather.Hourly...)
		v.Snapshot = &snap
		v.Scene = snap.Scene()
	}
	if o.coords != nil {
		c := *o.coords
		v.Coords = &c
	}
	return v
}

// LatestCoords returns the most recent position, if any.
func (o *Orchestrator) LatestCoords() (domain.Coords, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.coords == nil {
		return domain.Coords{}, false
	}
	return *o.coords, true
}

func (o *Orchestrator) onPosition(epoch uint64, pos domain.GeoPosition) {
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return
	}
	if o.cancelFetch != nil {
		o.cancelFetch()
	}
	o.seq++
	seq := o.seq
	coords := pos.Coords
	o.coords = &coords
	ctx, cancel := context.WithTimeout(o.baseCtx, o.timeout)
	o.cancelFetch = cancel
	o.setState(StateLoading)
	inflight := o.inflight
	inflight.Add(1)
	o.mu.Unlock()

	o.metrics.PositionsReceived.Inc()
	o.logger.Debug("position received", "lat", coords.Lat, "lon", coords.Lon, "seq", seq)

	go o.fetch(ctx, cancel, inflight, seq, coords)
}

func (o *Orchestrator) fetch(ctx context.Context, cancel context.CancelFunc, inflight *sync.WaitGroup, seq uint64, coords domain.Coords) {
	defer inflight.Done()
	defer cancel()

	start := time.Now()
	res := o.fetcher.LiveData(ctx, coords)
	o.metrics.LiveFetchDuration.Observe(time.Since(start).Seconds())

	if !res.OK() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res = domain.ServiceFailure[domain.LiveSnapshot]("Live data request timed out.")
	}

	snap, accepted := o.apply(seq, res)
	if accepted && o.publisher != nil {
		o.publish(snap)
	}
}

// apply installs a fetch result if seq is still the latest. It reports
// whether a snapshot was accepted.
func (o *Orchestrator) apply(seq uint64, res domain.Result[domain.LiveSnapshot]) (domain.LiveSnapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if seq != o.seq {
		o.metrics.StaleResponses.WithLabelValues("live").Inc()
		o.logger.Debug("discarding stale live response", "seq", seq, "latest", o.seq)
		return domain.LiveSnapshot{}, false
	}
	o.cancelFetch = nil
	o.metrics.LiveFetches.WithLabelValues(res.Kind.String()).Inc()

	if !res.OK() {
		o.errMsg = res.Message
		o.stale = o.snapshot != nil
		o.setState(StateFailed)
		o.logger.Warn("live data fetch failed", "seq", seq, "kind", res.Kind.String(), "error", res.Message)
		return domain.LiveSnapshot{}, false
	}

	snap := res.Value
	o.snapshot = &snap
	o.stale = false
	o.errMsg = ""
	o.setState(StateReady)
	o.logger.Info("live snapshot updated", "seq", seq, "scene", string(snap.Scene()), "aqi", snap.AQI.Value.String())
	return snap, true
}

func (o *Orchestrator) publish(snap domain.LiveSnapshot) {
	o.mu.Lock()
	base := o.baseCtx
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, o.timeout)
	defer cancel()
	if err := o.publisher.Publish(ctx, snap); err != nil {
		o.metrics.PublishErrors.Inc()
		o.logger.Error("publish snapshot failed", "error", err)
		return
	}
	o.metrics.SnapshotsPublished.Inc()
}

func (o *Orchestrator) onPositionError(epoch uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		return
	}
	if o.cancelFetch != nil {
		o.cancelFetch()
		o.cancelFetch = nil
	}
	o.seq++
	o.errMsg = "Location Error: " + err.Error()
	o.stale = o.snapshot != nil
	o.setState(StateFailed)
	o.logger.Warn("position feed failed", "error", err)
}

// setState must be called with mu held.
func (o *Orchestrator) setState(s State) {
	o.state = s
	o.metrics.SetState(s.String(), allStates)
}
