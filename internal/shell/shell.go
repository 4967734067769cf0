package shell

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/couchcryptid/airwatch/internal/camera"
	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/couchcryptid/airwatch/internal/forecast"
	"github.com/couchcryptid/airwatch/internal/live"
	"github.com/couchcryptid/airwatch/internal/mapview"
	"github.com/couchcryptid/airwatch/internal/route"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrNoSession is returned by actions that need a logged-in user.
var ErrNoSession = domain.NewError(domain.ErrAuth, "Please log in first.")

// Credentials signs users up and in. *credential.Store implements it.
type Credentials interface {
	SignUp(ctx context.Context, c domain.Credential) error
	Login(ctx context.Context, email, password string) (domain.Credential, error)
}

// LiveData is the live orchestrator as seen by the shell.
type LiveData interface {
	Start(ctx context.Context) error
	Stop()
	View() live.View
}

// StationSearcher looks up stations by keyword.
type StationSearcher interface {
	SearchStations(ctx context.Context, keyword string) domain.Result[[]domain.Station]
}

// Deps are the components the shell drives.
type Deps struct {
	Credentials Credentials
	Live        LiveData
	Planner     *route.Planner
	Renderer    *mapview.Renderer
	Forecast    *forecast.Service
	Stations    StationSearcher
	Camera      camera.Device
	Clock       clockwork.Clock
}

// Shell holds the session and selected tab and routes user actions.
type Shell struct {
	deps   Deps
	ctx    context.Context
	logger *slog.Logger

	// lifecycle serializes Login and Logout; held across Live.Start.
	lifecycle sync.Mutex

	mu      sync.Mutex
	session *Session
	tab     Tab
	cam     *camera.Session
}

// New creates a logged-out shell. ctx bounds background work started on the
// user's behalf, such as the live subscription.
func New(ctx context.Context, deps Deps, logger *slog.Logger) *Shell {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Shell{deps: deps, ctx: ctx, logger: logger, tab: TabAQI}
}

// SignUp stores a new credential record.
func (s *Shell) SignUp(ctx context.Context, c domain.Credential) error {
	return s.deps.Credentials.SignUp(ctx, c)
}

// Login verifies the credentials, opens a session on the AQI tab and starts
// live data.
func (s *Shell) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.deps.Credentials.Login(ctx, email, password)
	if err != nil {
		return Session{}, err
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.endSession()

	sess := Session{ID: uuid.NewString(), User: user, StartedAt: s.deps.Clock.Now().UTC()}
	if err := s.deps.Live.Start(s.ctx); err != nil && !errors.Is(err, live.ErrAlreadyStarted) {
		return Session{}, err
	}

	s.mu.Lock()
	s.session = &sess
	s.tab = TabAQI
	s.mu.Unlock()
	s.logger.Info("session started", "session_id", sess.ID)
	return sess, nil
}

// Logout ends the session and returns to the entry form. Safe to call when
// logged out.
func (s *Shell) Logout() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.endSession()
}

func (s *Shell) endSession() {
	s.mu.Lock()
	sess := s.session
	cam := s.cam
	s.session, s.cam = nil, nil
	s.tab = TabAQI
	s.mu.Unlock()

	if cam != nil {
		cam.Close()
	}
	if sess == nil {
		return
	}
	s.deps.Live.Stop()
	s.deps.Planner.Reset()
	s.deps.Forecast.Reset()
	s.logger.Info("session ended", "session_id", sess.ID)
}

// CurrentSession returns the active session, if any.
func (s *Shell) CurrentSession() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Session{}, false
	}
	return *s.session, true
}

// SetTab switches tabs. Leaving the map discards the route plan; entering
// the camera tab acquires the camera and leaving it releases it; entering
// the forecast tab fetches a forecast when none is cached.
func (s *Shell) SetTab(ctx context.Context, tab Tab) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	prev := s.tab
	s.tab = tab
	var closeCam *camera.Session
	if prev == TabCamera && tab != TabCamera {
		closeCam, s.cam = s.cam, nil
	}
	if tab == TabCamera && s.cam == nil {
		s.cam = camera.Open(s.ctx, s.deps.Camera, s.logger)
	}
	s.mu.Unlock()

	if closeCam != nil {
		closeCam.Close()
	}
	if prev == TabMap && tab != TabMap {
		s.deps.Planner.Reset()
	}
	if tab == TabForecast && prev != TabForecast {
		if v := s.deps.Forecast.View(); v.Available && len(v.Points) == 0 {
			s.deps.Forecast.Refresh(ctx)
		}
	}
	return nil
}

// CloseCamera releases the camera without leaving the tab.
func (s *Shell) CloseCamera() {
	s.mu.Lock()
	cam := s.cam
	s.cam = nil
	s.mu.Unlock()
	if cam != nil {
		cam.Close()
	}
}

// FindRoute runs a route search for the logged-in user.
func (s *Shell) FindRoute(ctx context.Context, start, destination string) (route.Plan, error) {
	if _, ok := s.CurrentSession(); !ok {
		return route.Plan{}, ErrNoSession
	}
	return s.deps.Planner.FindRoute(ctx, start, destination)
}

// SearchStations returns matching stations. Failures yield an empty list.
func (s *Shell) SearchStations(ctx context.Context, keyword string) ([]domain.Station, error) {
	if _, ok := s.CurrentSession(); !ok {
		return nil, ErrNoSession
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return []domain.Station{}, nil
	}
	res := s.deps.Stations.SearchStations(ctx, keyword)
	if !res.OK() {
		s.logger.Warn("station search failed", "keyword", keyword, "error", res.Message)
		return []domain.Station{}, nil
	}
	return res.Value, nil
}

// Forecast returns the forecast view-model, fetching on first use.
func (s *Shell) Forecast(ctx context.Context) (forecast.View, error) {
	if _, ok := s.CurrentSession(); !ok {
		return forecast.View{}, ErrNoSession
	}
	v := s.deps.Forecast.View()
	if v.Available && len(v.Points) == 0 && v.Error == "" && !v.Loading {
		s.deps.Forecast.Refresh(ctx)
		v = s.deps.Forecast.View()
	}
	return v, nil
}

// MapState exports the route map surface.
func (s *Shell) MapState() mapview.State {
	return s.deps.Renderer.State()
}

// Screen dispatches the current screen and fills in tab contents that live
// outside the live snapshot.
func (s *Shell) Screen() Screen {
	s.mu.Lock()
	var sess *Session
	if s.session != nil {
		c := *s.session
		sess = &c
	}
	tab := s.tab
	cam := s.cam
	s.mu.Unlock()

	scr := Dispatch(sess, s.deps.Live.View(), tab)
	switch {
	case scr.Forecast != nil:
		scr.Forecast.fill(s.deps.Forecast.View())
	case scr.Map != nil:
		scr.Map.Planner = s.deps.Planner.View()
		scr.Map.Surface = s.deps.Renderer.State()
	case scr.Camera != nil && cam != nil:
		scr.Camera.Streaming = cam.Active()
		if err := cam.Err(); err != nil {
			scr.Camera.Error = err.Error()
		}
	}
	return scr
}
