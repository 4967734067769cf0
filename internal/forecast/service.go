// Package forecast keeps the AQI forecast for the latest position, fetched on
// demand and refreshed on a schedule.
package forecast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/couchcryptid/airwatch/internal/observability"
	"github.com/go-co-op/gocron"
)

// Fetcher retrieves a forecast for a coordinate.
type Fetcher interface {
	Forecast(ctx context.Context, coords domain.Coords) domain.Result[[]domain.ForecastPoint]
}

// CoordsSource reports the most recent device position.
type CoordsSource interface {
	LatestCoords() (domain.Coords, bool)
}

// Chart is the forecast as parallel label/value series.
type Chart struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// View is the forecast view-model.
type View struct {
	Available bool                   `json:"available"`
	Loading   bool                   `json:"loading"`
	Error     string                 `json:"error,omitempty"`
	Points    []domain.ForecastPoint `json:"points,omitempty"`
	Chart     Chart                  `json:"chart"`
	Coords    *domain.Coords         `json:"coords,omitempty"`
}

// Service fetches and caches the forecast.
type Service struct {
	fetcher   Fetcher
	coords    CoordsSource
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
	scheduler *gocron.Scheduler

	mu        sync.Mutex
	seq       uint64
	available bool
	loading   bool
	errMsg    string
	points    []domain.ForecastPoint
	forCoords *domain.Coords
}

// NewService creates a forecast service. The feature starts available; call
// SetAvailable after probing the backend.
func NewService(fetcher Fetcher, coords CoordsSource, interval, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		fetcher:   fetcher,
		coords:    coords,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
		scheduler: gocron.NewScheduler(time.UTC),
		available: true,
	}
}

// SetAvailable turns the forecast feature on or off.
func (s *Service) SetAvailable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = ok
}

// Start schedules the periodic refresh and starts the underlying scheduler.
func (s *Service) Start() error {
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.Refresh(ctx)
	})
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("forecast refresh scheduled", "interval", s.interval)
	return nil
}

// Stop stops the scheduler and cancels any future refreshes.
func (s *Service) Stop() {
	s.scheduler.Stop()
}

// Refresh fetches the forecast for the latest position. It is skipped when
// the feature is off or no position is known yet. Only the newest refresh
// may update the view.
func (s *Service) Refresh(ctx context.Context) {
	coords, ok := s.coords.LatestCoords()

	s.mu.Lock()
	if !s.available || !ok {
		s.mu.Unlock()
		s.metrics.ForecastRefreshes.WithLabelValues("skipped").Inc()
		return
	}
	s.seq++
	seq := s.seq
	s.loading = true
	s.mu.Unlock()

	res := s.fetcher.Forecast(ctx, coords)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		s.metrics.StaleResponses.WithLabelValues("forecast").Inc()
		return
	}
	s.loading = false
	if !res.OK() {
		s.errMsg = res.Message
		s.points = nil
		s.forCoords = nil
		s.metrics.ForecastRefreshes.WithLabelValues("error").Inc()
		s.logger.Warn("forecast refresh failed", "lat", coords.Lat, "lon", coords.Lon, "error", res.Message)
		return
	}
	s.errMsg = ""
	s.points = res.Value
	s.forCoords = &coords
	s.metrics.ForecastRefreshes.WithLabelValues("ok").Inc()
	s.logger.Debug("forecast refreshed", "lat", coords.Lat, "lon", coords.Lon, "days", len(res.Value))
}

// Reset forgets the cached forecast, e.g. on logout.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.loading = false
	s.errMsg = ""
	s.points = nil
	s.forCoords = nil
}

// View returns a copy of the forecast view-model.
func (s *Service) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Available: s.available,
		Loading:   s.loading,
		Error:     s.errMsg,
		Points:    append([]domain.ForecastPoint(nil), s.points...),
	}
	if s.forCoords != nil {
		c := *s.forCoords
		v.Coords = &c
	}
	v.Chart = Chart{Labels: make([]string, len(s.points)), Values: make([]float64, len(s.points))}
	for i, p := range s.points {
		v.Chart.Labels[i] = domain.ForecastLabel(p.Date)
		v.Chart.Values[i] = p.PredictedAQI
	}
	return v
}
