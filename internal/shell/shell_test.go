package shell

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/airwatch/internal/camera"
	"github.com/couchcryptid/airwatch/internal/credential"
	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/couchcryptid/airwatch/internal/forecast"
	"github.com/couchcryptid/airwatch/internal/live"
	"github.com/couchcryptid/airwatch/internal/mapview"
	"github.com/couchcryptid/airwatch/internal/observability"
	"github.com/couchcryptid/airwatch/internal/route"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLive struct {
	onStart  func()
	startErr error

	mu      sync.Mutex
	started int
	stopped int
	running bool
	view    live.View
}

func (f *fakeLive) Start(context.Context) error {
	if f.onStart != nil {
		f.onStart()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.running {
		return live.ErrAlreadyStarted
	}
	f.running = true
	f.started++
	return nil
}

func (f *fakeLive) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stopped++
}

func (f *fakeLive) isRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeLive) View() live.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeLive) LatestCoords() (domain.Coords, bool) {
	return domain.Coords{Lat: 9.93, Lon: 76.26}, true
}

type routerFunc func(ctx context.Context, start, end string) domain.Result[domain.RouteBundle]

func (f routerFunc) CleanRoute(ctx context.Context, start, end string) domain.Result[domain.RouteBundle] {
	return f(ctx, start, end)
}

type stationsFunc func(ctx context.Context, keyword string) domain.Result[[]domain.Station]

func (f stationsFunc) SearchStations(ctx context.Context, keyword string) domain.Result[[]domain.Station] {
	return f(ctx, keyword)
}

type countingForecast struct{ calls atomic.Int32 }

func (c *countingForecast) Forecast(context.Context, domain.Coords) domain.Result[[]domain.ForecastPoint] {
	c.calls.Add(1)
	return domain.Ok([]domain.ForecastPoint{{Date: "2024-04-27", PredictedAQI: 160}})
}

type fakeTrack struct{ stopped atomic.Bool }

func (t *fakeTrack) Stop() { t.stopped.Store(true) }

type fakeStream struct{ track *fakeTrack }

func (s fakeStream) Tracks() []camera.Track { return []camera.Track{s.track} }

type fakeCamera struct{ track *fakeTrack }

func (c fakeCamera) Acquire(context.Context, camera.Facing) (camera.Stream, error) {
	return fakeStream{track: c.track}, nil
}

type harness struct {
	shell    *Shell
	live     *fakeLive
	forecast *countingForecast
	track    *fakeTrack
	stations stationsFunc
}

var asha = domain.Credential{Name: "Asha", Email: "asha@example.com", Age: "29", Password: "secret"}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	h := &harness{live: &fakeLive{view: readyView()}, forecast: &countingForecast{}, track: &fakeTrack{}}
	renderer := mapview.NewRenderer()
	planner := route.NewPlanner(routerFunc(func(context.Context, string, string) domain.Result[domain.RouteBundle] {
		return domain.Ok(domain.RouteBundle{
			StandardRoute: domain.Geometry(`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"LineString","coordinates":[[76.20,9.90],[76.30,10.10]]}}]}`),
			CleanRoute:    domain.Geometry(`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"LineString","coordinates":[[76.10,9.80],[76.35,10.10]]}}]}`),
		})
	}), renderer, logger, metrics)
	fc := forecast.NewService(h.forecast, h.live, time.Hour, time.Second, logger, metrics)

	store := credential.NewStore(credential.NewMemoryKV(), logger)
	require.NoError(t, store.SignUp(context.Background(), asha))

	h.shell = New(context.Background(), Deps{
		Credentials: store,
		Live:        h.live,
		Planner:     planner,
		Renderer:    renderer,
		Forecast:    fc,
		Stations: stationsFunc(func(_ context.Context, kw string) domain.Result[[]domain.Station] {
			if h.stations != nil {
				return h.stations(context.Background(), kw)
			}
			return domain.Ok([]domain.Station{{UID: "1451", Name: "Vyttila, Kochi"}})
		}),
		Camera: fakeCamera{track: h.track},
		Clock:  clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 9, 0, 0, 0, time.UTC)),
	}, logger)
	return h
}

func (h *harness) login(t *testing.T) Session {
	t.Helper()
	sess, err := h.shell.Login(context.Background(), " asha@example.com ", "secret")
	require.NoError(t, err)
	return sess
}

func TestShell_LoggedOutShowsEntry(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, ScreenEntry, h.shell.Screen().Kind)
	_, ok := h.shell.CurrentSession()
	assert.False(t, ok)
}

func TestShell_LoginStartsLiveData(t *testing.T) {
	h := newHarness(t)
	sess := h.login(t)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "Asha", sess.User.Name)
	assert.Equal(t, time.Date(2024, 4, 26, 9, 0, 0, 0, time.UTC), sess.StartedAt)
	assert.Equal(t, 1, h.live.started)

	scr := h.shell.Screen()
	assert.Equal(t, ScreenTab, scr.Kind)
	assert.Equal(t, TabAQI, scr.Tab)
	require.NotNil(t, scr.AQI)
}

func TestShell_LoginRejectsWrongPassword(t *testing.T) {
	h := newHarness(t)

	_, err := h.shell.Login(context.Background(), "asha@example.com", "nope")
	require.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, 0, h.live.started)
	assert.Equal(t, ScreenEntry, h.shell.Screen().Kind)
}

func TestShell_LogoutResetsEverything(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	require.NoError(t, h.shell.SetTab(context.Background(), TabMap))
	_, err := h.shell.FindRoute(context.Background(), "Kochi", "Aluva")
	require.NoError(t, err)

	h.shell.Logout()

	assert.Equal(t, 1, h.live.stopped)
	assert.Equal(t, ScreenEntry, h.shell.Screen().Kind)
	assert.Len(t, h.shell.MapState().Layers, 1, "only the tile layer remains")

	h.login(t)
	assert.Equal(t, TabAQI, h.shell.Screen().Tab, "a new session starts on the AQI tab")
	assert.Equal(t, 2, h.live.started)
}

func TestShell_LogoutDuringLoginStopsLiveData(t *testing.T) {
	h := newHarness(t)
	logoutDone := make(chan struct{})
	var once sync.Once
	h.live.onStart = func() {
		once.Do(func() {
			go func() {
				h.shell.Logout()
				close(logoutDone)
			}()
			// Give a racing logout the chance to finish inside Start.
			select {
			case <-logoutDone:
			case <-time.After(50 * time.Millisecond):
			}
		})
	}

	_, err := h.shell.Login(context.Background(), asha.Email, asha.Password)
	require.NoError(t, err)

	select {
	case <-logoutDone:
	case <-time.After(time.Second):
		t.Fatal("logout did not finish")
	}
	_, ok := h.shell.CurrentSession()
	assert.False(t, ok)
	assert.False(t, h.live.isRunning(), "live data must not outlive the session")
}

func TestShell_LoginFailsWhenLiveDataCannotStart(t *testing.T) {
	h := newHarness(t)
	h.live.startErr = errors.New("feed closed")

	_, err := h.shell.Login(context.Background(), asha.Email, asha.Password)
	require.Error(t, err)
	_, ok := h.shell.CurrentSession()
	assert.False(t, ok)
}

func TestShell_LogoutWhenLoggedOutIsNoop(t *testing.T) {
	h := newHarness(t)
	h.shell.Logout()
	assert.Equal(t, 0, h.live.stopped)
}

func TestShell_ActionsRequireSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.shell.SetTab(ctx, TabWeather), ErrNoSession)
	_, err := h.shell.FindRoute(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = h.shell.SearchStations(ctx, "kochi")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = h.shell.Forecast(ctx)
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestShell_LeavingMapDiscardsPlan(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	require.NoError(t, h.shell.SetTab(ctx, TabMap))
	plan, err := h.shell.FindRoute(ctx, "Kochi", "Aluva")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictAlternative, plan.Verdict)

	scr := h.shell.Screen()
	require.NotNil(t, scr.Map)
	require.NotNil(t, scr.Map.Planner.Plan)
	assert.Len(t, scr.Map.Surface.Layers, 3)

	require.NoError(t, h.shell.SetTab(ctx, TabWeather))
	require.NoError(t, h.shell.SetTab(ctx, TabMap))

	scr = h.shell.Screen()
	assert.Nil(t, scr.Map.Planner.Plan)
	assert.Len(t, scr.Map.Surface.Layers, 1)
}

func TestShell_CameraTabAcquiresAndReleases(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	require.NoError(t, h.shell.SetTab(ctx, TabCamera))
	assert.Eventually(t, func() bool {
		return h.shell.Screen().Camera.Streaming
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.shell.Screen().Background)

	require.NoError(t, h.shell.SetTab(ctx, TabAQI))
	assert.True(t, h.track.stopped.Load())
}

func TestShell_CameraReleasedOnLogout(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	require.NoError(t, h.shell.SetTab(context.Background(), TabCamera))
	assert.Eventually(t, func() bool {
		return h.shell.Screen().Camera.Streaming
	}, time.Second, 5*time.Millisecond)

	h.shell.Logout()
	assert.True(t, h.track.stopped.Load())
}

func TestShell_ForecastFetchedOnceOnFirstVisit(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	require.NoError(t, h.shell.SetTab(ctx, TabForecast))
	require.NoError(t, h.shell.SetTab(ctx, TabAQI))
	require.NoError(t, h.shell.SetTab(ctx, TabForecast))
	assert.Equal(t, int32(1), h.forecast.calls.Load())

	scr := h.shell.Screen()
	require.NotNil(t, scr.Forecast)
	assert.Equal(t, []string{"Sat, Apr 27"}, scr.Forecast.Chart.Labels)
	assert.Equal(t, ForecastNote, scr.Forecast.Note)

	v, err := h.shell.Forecast(ctx)
	require.NoError(t, err)
	assert.Len(t, v.Points, 1)
	assert.Equal(t, int32(1), h.forecast.calls.Load())
}

func TestShell_SearchStations(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	got, err := h.shell.SearchStations(ctx, "kochi")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1451", got[0].UID)

	got, err = h.shell.SearchStations(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, got)

	h.stations = func(context.Context, string) domain.Result[[]domain.Station] {
		return domain.ServiceFailure[[]domain.Station]("API Error: 500")
	}
	got, err = h.shell.SearchStations(ctx, "kochi")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
