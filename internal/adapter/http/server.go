package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/couchcryptid/airwatch/internal/forecast"
	"github.com/couchcryptid/airwatch/internal/mapview"
	"github.com/couchcryptid/airwatch/internal/position"
	"github.com/couchcryptid/airwatch/internal/route"
	"github.com/couchcryptid/airwatch/internal/shell"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dashboard is the user-facing API. *shell.Shell implements it.
type Dashboard interface {
	SignUp(ctx context.Context, c domain.Credential) error
	Login(ctx context.Context, email, password string) (shell.Session, error)
	Logout()
	CurrentSession() (shell.Session, bool)
	SetTab(ctx context.Context, tab shell.Tab) error
	Screen() shell.Screen
	FindRoute(ctx context.Context, start, destination string) (route.Plan, error)
	MapState() mapview.State
	SearchStations(ctx context.Context, keyword string) ([]domain.Station, error)
	Forecast(ctx context.Context) (forecast.View, error)
	CloseCamera()
}

// PositionSink accepts positions posted by the browser. *position.PushSource
// implements it.
type PositionSink interface {
	Push(ctx context.Context, pos domain.GeoPosition) error
	Fail(ctx context.Context, err error) error
}

// Routes configures the dashboard API. Positions may be nil when positions
// come from another source, in which case the position routes are not
// registered.
type Routes struct {
	Dashboard Dashboard
	Positions PositionSink
	Clock     clockwork.Clock
}

const pushTimeout = 2 * time.Second

var validate = validator.New()

// Server exposes health, readiness, metrics and the dashboard API.
type Server struct {
	httpServer *http.Server
	routes     Routes
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, routes Routes, logger *slog.Logger) *Server {
	if routes.Clock == nil {
		routes.Clock = clockwork.NewRealClock()
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      logRequests(mux, logger),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		routes: routes,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("PUT /api/tab", s.handleTab)
	mux.HandleFunc("GET /api/screen", s.handleScreen)
	mux.HandleFunc("POST /api/route", s.handleRoute)
	mux.HandleFunc("GET /api/map", s.handleMap)
	mux.HandleFunc("GET /api/stations", s.handleStations)
	mux.HandleFunc("GET /api/forecast", s.handleForecast)
	mux.HandleFunc("POST /api/camera/close", s.handleCameraClose)
	if routes.Positions != nil {
		mux.HandleFunc("POST /api/position", s.handlePosition)
		mux.HandleFunc("POST /api/position/error", s.handlePositionError)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tabRequest struct {
	Tab string `json:"tab"`
}

type routeRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type positionRequest struct {
	Lat      *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon      *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Accuracy float64  `json:"accuracy" validate:"gte=0"`
}

type positionErrorRequest struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var c domain.Credential
	if !s.decode(w, r, &c) {
		return
	}
	if err := s.routes.Dashboard.SignUp(r.Context(), c); err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusCreated, map[string]string{"status": "signed up"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, err := s.routes.Dashboard.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.routes.Dashboard.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTab(w http.ResponseWriter, r *http.Request) {
	var req tabRequest
	if !s.decode(w, r, &req) {
		return
	}
	tab, err := shell.ParseTab(req.Tab)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.routes.Dashboard.SetTab(r.Context(), tab); err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, s.routes.Dashboard.Screen())
}

func (s *Server) handleScreen(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.routes.Dashboard.Screen())
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !s.decode(w, r, &req) {
		return
	}
	plan, err := s.routes.Dashboard.FindRoute(r.Context(), req.Start, req.End)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, plan)
}

func (s *Server) handleMap(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.routes.Dashboard.MapState())
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.routes.Dashboard.SearchStations(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, stations)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	v, err := s.routes.Dashboard.Forecast(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, v)
}

func (s *Server) handleCameraClose(w http.ResponseWriter, _ *http.Request) {
	s.routes.Dashboard.CloseCamera()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.routes.Dashboard.CurrentSession(); !ok {
		s.writeError(w, shell.ErrNoSession)
		return
	}
	var req positionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		s.writeError(w, domain.NewError(domain.ErrValidation, "Position must have a valid lat and lon."))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), pushTimeout)
	defer cancel()
	pos := domain.GeoPosition{
		Coords:     domain.Coords{Lat: *req.Lat, Lon: *req.Lon},
		Accuracy:   req.Accuracy,
		ObservedAt: s.routes.Clock.Now().UTC(),
	}
	if err := s.routes.Positions.Push(ctx, pos); err != nil {
		s.logger.Warn("position dropped", "lat", pos.Lat, "lon", pos.Lon, "error", err)
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Position queue is full."})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePositionError(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.routes.Dashboard.CurrentSession(); !ok {
		s.writeError(w, shell.ErrNoSession)
		return
	}
	var req positionErrorRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), pushTimeout)
	defer cancel()
	if err := s.routes.Positions.Fail(ctx, position.FromCode(req.Code, req.Message)); err != nil {
		s.logger.Warn("position error dropped", "code", req.Code, "error", err)
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Position queue is full."})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body."})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	var de *domain.Error
	if !errors.As(err, &de) && !errors.Is(err, route.ErrSuperseded) {
		s.logger.Error("request failed", "error", err)
		msg = http.StatusText(status)
	}
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, route.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrService), errors.Is(err, domain.ErrRoute),
		errors.Is(err, domain.ErrDomain), errors.Is(err, domain.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrPermission):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
