package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/couchcryptid/airwatch/internal/observability"
	"github.com/couchcryptid/airwatch/internal/position"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func snapshotAt(c domain.Coords, aqi float64) domain.LiveSnapshot {
	return domain.LiveSnapshot{
		Weather:  domain.Weather{Current: domain.CurrentWeather{ConditionCode: 1000, IsDay: true}},
		AQI:      domain.AQIReading{Value: domain.NewMeasure(aqi)},
		Location: domain.LocationName{Town: "Kochi"},
		Coords:   c,
	}
}

// gatedFetcher holds each request until the test releases it by latitude.
// It ignores ctx so late responses can be simulated.
type gatedFetcher struct {
	mu      sync.Mutex
	gates   map[float64]chan domain.Result[domain.LiveSnapshot]
	started chan domain.Coords
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{
		gates:   make(map[float64]chan domain.Result[domain.LiveSnapshot]),
		started: make(chan domain.Coords, 16),
	}
}

func (f *gatedFetcher) gate(lat float64) chan domain.Result[domain.LiveSnapshot] {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gates[lat]
	if !ok {
		g = make(chan domain.Result[domain.LiveSnapshot], 1)
		f.gates[lat] = g
	}
	return g
}

func (f *gatedFetcher) LiveData(_ context.Context, c domain.Coords) domain.Result[domain.LiveSnapshot] {
	f.started <- c
	return <-f.gate(c.Lat)
}

func (f *gatedFetcher) release(lat float64, res domain.Result[domain.LiveSnapshot]) {
	f.gate(lat) <- res
}

func (f *gatedFetcher) awaitStart(t *testing.T) domain.Coords {
	t.Helper()
	select {
	case c := <-f.started:
		return c
	case <-time.After(waitFor):
		t.Fatal("fetch was not started")
		return domain.Coords{}
	}
}

type funcFetcher func(ctx context.Context, c domain.Coords) domain.Result[domain.LiveSnapshot]

func (f funcFetcher) LiveData(ctx context.Context, c domain.Coords) domain.Result[domain.LiveSnapshot] {
	return f(ctx, c)
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []domain.LiveSnapshot
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, s domain.LiveSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, s)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

type harness struct {
	orch    *Orchestrator
	src     *position.PushSource
	metrics *observability.Metrics
}

func newHarness(t *testing.T, fetcher Fetcher, pub Publisher, timeout time.Duration) *harness {
	t.Helper()
	src := position.NewPushSource(8)
	m := observability.NewMetricsForTesting()
	orch := NewOrchestrator(position.NewFeed(src, discardLogger()), fetcher, pub, timeout, discardLogger(), m)
	require.NoError(t, orch.Start(context.Background()))
	t.Cleanup(orch.Stop)
	return &harness{orch: orch, src: src, metrics: m}
}

func (h *harness) push(t *testing.T, c domain.Coords) {
	t.Helper()
	require.NoError(t, h.src.Push(context.Background(), domain.GeoPosition{Coords: c}))
}

func (h *harness) awaitState(t *testing.T, want State) View {
	t.Helper()
	var v View
	require.Eventually(t, func() bool {
		v = h.orch.View()
		return v.State == want
	}, waitFor, 5*time.Millisecond, "want state %s", want)
	return v
}

func TestOrchestrator_StartsAwaitingPosition(t *testing.T) {
	h := newHarness(t, newGatedFetcher(), nil, time.Second)

	v := h.orch.View()
	assert.Equal(t, StateAwaitingPosition, v.State)
	assert.True(t, v.Loading())
	assert.Nil(t, v.Snapshot)
	assert.ErrorIs(t, h.orch.Start(context.Background()), ErrAlreadyStarted)
}

func TestOrchestrator_LastWriteWins(t *testing.T) {
	f := newGatedFetcher()
	h := newHarness(t, f, nil, time.Second)
	p1 := domain.Coords{Lat: 10, Lon: 76}
	p2 := domain.Coords{Lat: 11, Lon: 77}

	h.push(t, p1)
	require.Equal(t, p1, f.awaitStart(t))
	h.push(t, p2)
	require.Equal(t, p2, f.awaitStart(t))
	assert.Equal(t, StateLoading, h.orch.View().State)

	f.release(p2.Lat, domain.Ok(snapshotAt(p2, 80)))
	v := h.awaitState(t, StateReady)
	require.NotNil(t, v.Snapshot)
	assert.Equal(t, p2, v.Snapshot.Coords)

	// P1 answers late and must not overwrite P2.
	f.release(p1.Lat, domain.Ok(snapshotAt(p1, 20)))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.StaleResponses.WithLabelValues("live")) == 1
	}, waitFor, 5*time.Millisecond)

	v = h.orch.View()
	assert.Equal(t, StateReady, v.State)
	assert.Equal(t, p2, v.Snapshot.Coords)
	assert.InDelta(t, 80, v.Snapshot.AQI.Value.Value, 0)
	assert.Equal(t, p2, *v.Coords)
}

func TestOrchestrator_FailureKeepsStaleSnapshot(t *testing.T) {
	f := newGatedFetcher()
	h := newHarness(t, f, nil, time.Second)
	p := domain.Coords{Lat: 9.9, Lon: 76.3}

	h.push(t, p)
	f.awaitStart(t)
	f.release(p.Lat, domain.Ok(snapshotAt(p, 42)))
	v := h.awaitState(t, StateReady)
	assert.Equal(t, domain.SceneSunny, v.Scene)
	assert.False(t, v.Stale)

	h.push(t, p)
	f.awaitStart(t)
	f.release(p.Lat, domain.ServiceFailure[domain.LiveSnapshot]("API Error: 500"))

	v = h.awaitState(t, StateFailed)
	assert.Equal(t, "API Error: 500", v.Error)
	require.NotNil(t, v.Snapshot)
	assert.True(t, v.Stale)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.LiveFetches.WithLabelValues("service_error")), 0)

	// The next success clears the error and the stale flag.
	h.push(t, p)
	f.awaitStart(t)
	f.release(p.Lat, domain.Ok(snapshotAt(p, 55)))
	v = h.awaitState(t, StateReady)
	assert.Empty(t, v.Error)
	assert.False(t, v.Stale)
}

func TestOrchestrator_MalformedPayloadFails(t *testing.T) {
	fetcher := funcFetcher(func(context.Context, domain.Coords) domain.Result[domain.LiveSnapshot] {
		return domain.Malformed[domain.LiveSnapshot]("live data payload is missing weatherData or aqiData")
	})
	h := newHarness(t, fetcher, nil, time.Second)

	h.push(t, domain.Coords{Lat: 1, Lon: 1})
	v := h.awaitState(t, StateFailed)
	assert.Nil(t, v.Snapshot)
	assert.False(t, v.Stale)
	assert.Contains(t, v.Error, "missing weatherData")
}

func TestOrchestrator_PositionError(t *testing.T) {
	h := newHarness(t, newGatedFetcher(), nil, time.Second)

	require.NoError(t, h.src.Fail(context.Background(), position.ErrPermissionDenied))

	v := h.awaitState(t, StateFailed)
	assert.Equal(t, "Location Error: permission denied", v.Error)
}

func TestOrchestrator_Timeout(t *testing.T) {
	fetcher := funcFetcher(func(ctx context.Context, _ domain.Coords) domain.Result[domain.LiveSnapshot] {
		<-ctx.Done()
		return domain.ServiceFailure[domain.LiveSnapshot]("Failed to fetch: " + ctx.Err().Error())
	})
	h := newHarness(t, fetcher, nil, 20*time.Millisecond)

	h.push(t, domain.Coords{Lat: 1, Lon: 1})
	v := h.awaitState(t, StateFailed)
	assert.Equal(t, "Live data request timed out.", v.Error)
}

func TestOrchestrator_StopDropsEverything(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	fetcher := funcFetcher(func(_ context.Context, c domain.Coords) domain.Result[domain.LiveSnapshot] {
		mu.Lock()
		calls++
		mu.Unlock()
		return domain.Ok(snapshotAt(c, 30))
	})
	h := newHarness(t, fetcher, nil, time.Second)

	h.push(t, domain.Coords{Lat: 1, Lon: 1})
	h.awaitState(t, StateReady)

	h.orch.Stop()
	h.orch.Stop()

	v := h.orch.View()
	assert.Equal(t, StateIdle, v.State)
	assert.Nil(t, v.Snapshot)
	assert.Nil(t, v.Coords)
	_, ok := h.orch.LatestCoords()
	assert.False(t, ok)

	h.push(t, domain.Coords{Lat: 2, Lon: 2})
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, calls, "no fetch after Stop")
	mu.Unlock()
	assert.Equal(t, StateIdle, h.orch.View().State)
}

func TestOrchestrator_StopDiscardsInFlight(t *testing.T) {
	fetcher := funcFetcher(func(ctx context.Context, c domain.Coords) domain.Result[domain.LiveSnapshot] {
		<-ctx.Done()
		return domain.Ok(snapshotAt(c, 10))
	})
	h := newHarness(t, fetcher, nil, time.Minute)

	h.push(t, domain.Coords{Lat: 1, Lon: 1})
	h.awaitState(t, StateLoading)
	h.orch.Stop()

	v := h.orch.View()
	assert.Equal(t, StateIdle, v.State)
	assert.Nil(t, v.Snapshot)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.StaleResponses.WithLabelValues("live")), 0)
}

func TestOrchestrator_RestartAfterStop(t *testing.T) {
	fetcher := funcFetcher(func(_ context.Context, c domain.Coords) domain.Result[domain.LiveSnapshot] {
		return domain.Ok(snapshotAt(c, 30))
	})
	h := newHarness(t, fetcher, nil, time.Second)

	h.orch.Stop()
	h.src.Reset()
	require.NoError(t, h.orch.Start(context.Background()))
	assert.Equal(t, StateAwaitingPosition, h.orch.View().State)

	h.push(t, domain.Coords{Lat: 3, Lon: 3})
	v := h.awaitState(t, StateReady)
	assert.Equal(t, domain.Coords{Lat: 3, Lon: 3}, v.Snapshot.Coords)
}

// trackingFeed hands out each subscription so tests can wait for it to end.
type trackingFeed struct {
	*position.Feed
	subs chan *position.Subscription
}

func (f trackingFeed) Subscribe(ctx context.Context, onPosition func(domain.GeoPosition), onError func(error)) *position.Subscription {
	sub := f.Feed.Subscribe(ctx, onPosition, onError)
	f.subs <- sub
	return sub
}

func TestOrchestrator_StopWaitsOnlyForItsOwnFetches(t *testing.T) {
	fetcher := newGatedFetcher()
	src := position.NewPushSource(8)
	feed := trackingFeed{Feed: position.NewFeed(src, discardLogger()), subs: make(chan *position.Subscription, 2)}
	orch := NewOrchestrator(feed, fetcher, nil, time.Minute, discardLogger(), observability.NewMetricsForTesting())
	h := &harness{orch: orch, src: src}

	require.NoError(t, orch.Start(context.Background()))
	first := <-feed.subs
	h.push(t, domain.Coords{Lat: 1, Lon: 1})
	fetcher.awaitStart(t)

	stopped := make(chan struct{})
	go func() {
		orch.Stop()
		close(stopped)
	}()
	select {
	case <-first.Done():
	case <-time.After(waitFor):
		t.Fatal("first subscription was not cancelled")
	}

	require.NoError(t, orch.Start(context.Background()))
	<-feed.subs
	h.push(t, domain.Coords{Lat: 2, Lon: 2})
	fetcher.awaitStart(t)

	fetcher.release(1, domain.Ok(snapshotAt(domain.Coords{Lat: 1, Lon: 1}, 10)))
	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("stop blocked on a fetch from the next session")
	}

	fetcher.release(2, domain.Ok(snapshotAt(domain.Coords{Lat: 2, Lon: 2}, 20)))
	v := h.awaitState(t, StateReady)
	assert.Equal(t, domain.Coords{Lat: 2, Lon: 2}, v.Snapshot.Coords)
	orch.Stop()
}

func TestOrchestrator_PublishesAcceptedSnapshots(t *testing.T) {
	fetcher := funcFetcher(func(_ context.Context, c domain.Coords) domain.Result[domain.LiveSnapshot] {
		if c.Lat < 0 {
			return domain.ServiceFailure[domain.LiveSnapshot]("API Error: 502")
		}
		return domain.Ok(snapshotAt(c, 30))
	})
	pub := &recordingPublisher{}
	h := newHarness(t, fetcher, pub, time.Second)

	h.push(t, domain.Coords{Lat: 1, Lon: 1})
	require.Eventually(t, func() bool { return pub.count() == 1 }, waitFor, 5*time.Millisecond)

	h.push(t, domain.Coords{Lat: -1, Lon: 1})
	h.awaitState(t, StateFailed)
	assert.Equal(t, 1, pub.count(), "failures are not published")
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.SnapshotsPublished), 0)
}

func TestOrchestrator_PublishErrorIsCounted(t *testing.T) {
	fetcher := funcFetcher(func(_ context.Context, c domain.Coords) domain.Result[domain.LiveSnapshot] {
		return domain.Ok(snapshotAt(c, 30))
	})
	pub := &recordingPublisher{err: errors.New("broker down")}
	h := newHarness(t, fetcher, pub, time.Second)

	h.push(t, domain.Coords{Lat: 1, Lon: 1})
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.PublishErrors) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, StateReady, h.orch.View().State)
}

func TestOrchestrator_ViewIsACopy(t *testing.T) {
	fetcher := funcFetcher(func(_ context.Context, c domain.Coords) domain.Result[domain.LiveSnapshot] {
		s := snapshotAt(c, 30)
		s.Weather.Hourly = []domain.HourlyPoint{{Time: 1, Temp: 20}}
		return domain.Ok(s)
	})
	h := newHarness(t, fetcher, nil, time.Second)

	h.push(t, domain.Coords{Lat: 1, Lon: 1})
	v := h.awaitState(t, StateReady)
	v.Snapshot.Location.Town = "changed"
	v.Snapshot.Weather.Hourly[0].Temp = 99

	again := h.orch.View()
	assert.Equal(t, "Kochi", again.Snapshot.Location.Town)
	assert.InDelta(t, 20, again.Snapshot.Weather.Hourly[0].Temp, 0)
}
