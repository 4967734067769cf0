package forecast

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/couchcryptid/airwatch/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCoords struct {
	mu     sync.Mutex
	coords *domain.Coords
}

func (f *fixedCoords) LatestCoords() (domain.Coords, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.coords == nil {
		return domain.Coords{}, false
	}
	return *f.coords, true
}

type fetcherFunc func(ctx context.Context, c domain.Coords) domain.Result[[]domain.ForecastPoint]

func (f fetcherFunc) Forecast(ctx context.Context, c domain.Coords) domain.Result[[]domain.ForecastPoint] {
	return f(ctx, c)
}

func newService(f Fetcher, coords CoordsSource) (*Service, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return NewService(f, coords, time.Hour, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)), m), m
}

var delhi = domain.Coords{Lat: 28.61, Lon: 77.21}

func TestRefresh_Success(t *testing.T) {
	points := []domain.ForecastPoint{
		{Date: "2024-04-27", PredictedAQI: 160},
		{Date: "2024-04-28", PredictedAQI: 142},
	}
	var got domain.Coords
	svc, m := newService(fetcherFunc(func(_ context.Context, c domain.Coords) domain.Result[[]domain.ForecastPoint] {
		got = c
		return domain.Ok(points)
	}), &fixedCoords{coords: &delhi})

	svc.Refresh(context.Background())

	assert.Equal(t, delhi, got)
	v := svc.View()
	assert.True(t, v.Available)
	assert.False(t, v.Loading)
	assert.Empty(t, v.Error)
	assert.Equal(t, points, v.Points)
	assert.Equal(t, []string{"Sat, Apr 27", "Sun, Apr 28"}, v.Chart.Labels)
	assert.Equal(t, []float64{160, 142}, v.Chart.Values)
	require.NotNil(t, v.Coords)
	assert.Equal(t, delhi, *v.Coords)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ForecastRefreshes.WithLabelValues("ok")), 0)
}

func TestRefresh_Failure(t *testing.T) {
	svc, m := newService(fetcherFunc(func(context.Context, domain.Coords) domain.Result[[]domain.ForecastPoint] {
		return domain.ServiceFailure[[]domain.ForecastPoint]("A forecast model for 'Kochi' is not available.")
	}), &fixedCoords{coords: &delhi})

	svc.Refresh(context.Background())

	v := svc.View()
	assert.Equal(t, "A forecast model for 'Kochi' is not available.", v.Error)
	assert.Empty(t, v.Points)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ForecastRefreshes.WithLabelValues("error")), 0)
}

func TestRefresh_Skipped(t *testing.T) {
	var calls atomic.Int32
	f := fetcherFunc(func(context.Context, domain.Coords) domain.Result[[]domain.ForecastPoint] {
		calls.Add(1)
		return domain.Ok([]domain.ForecastPoint{})
	})

	t.Run("no position yet", func(t *testing.T) {
		svc, m := newService(f, &fixedCoords{})
		svc.Refresh(context.Background())
		assert.InDelta(t, 1, testutil.ToFloat64(m.ForecastRefreshes.WithLabelValues("skipped")), 0)
	})
	t.Run("feature disabled", func(t *testing.T) {
		svc, _ := newService(f, &fixedCoords{coords: &delhi})
		svc.SetAvailable(false)
		svc.Refresh(context.Background())
		assert.False(t, svc.View().Available)
	})
	assert.Equal(t, int32(0), calls.Load())
}

func TestReset(t *testing.T) {
	svc, _ := newService(fetcherFunc(func(context.Context, domain.Coords) domain.Result[[]domain.ForecastPoint] {
		return domain.Ok([]domain.ForecastPoint{{Date: "2024-04-27", PredictedAQI: 90}})
	}), &fixedCoords{coords: &delhi})

	svc.Refresh(context.Background())
	require.Len(t, svc.View().Points, 1)

	svc.Reset()
	v := svc.View()
	assert.Empty(t, v.Points)
	assert.Nil(t, v.Coords)
}

func TestStart_RunsScheduledRefresh(t *testing.T) {
	var calls atomic.Int32
	svc, _ := newService(fetcherFunc(func(context.Context, domain.Coords) domain.Result[[]domain.ForecastPoint] {
		calls.Add(1)
		return domain.Ok([]domain.ForecastPoint{{Date: "2024-04-27", PredictedAQI: 90}})
	}), &fixedCoords{coords: &delhi})

	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, svc.View().Points, 1)
}
