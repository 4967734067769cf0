package position

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/jonboulle/clockwork"
)

// StaticSource replays a fixed list of coordinates, one per interval,
// cycling back to the start. The first position is available immediately.
type StaticSource struct {
	coords   []domain.Coords
	interval time.Duration
	clock    clockwork.Clock

	mu      sync.Mutex
	next    int
	started bool
}

// NewStaticSource creates a source over coords. A nil clock uses real time.
func NewStaticSource(coords []domain.Coords, interval time.Duration, clock clockwork.Clock) *StaticSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StaticSource{coords: coords, interval: interval, clock: clock}
}

// Next implements Source.
func (s *StaticSource) Next(ctx context.Context) (domain.GeoPosition, error) {
	if len(s.coords) == 0 {
		return domain.GeoPosition{}, errors.Join(ErrUnavailable, errors.New("no static coordinates configured"))
	}

	s.mu.Lock()
	wait := s.started
	s.started = true
	s.mu.Unlock()

	if wait {
		select {
		case <-ctx.Done():
			return domain.GeoPosition{}, ctx.Err()
		case <-s.clock.After(s.interval):
		}
	}

	s.mu.Lock()
	c := s.coords[s.next%len(s.coords)]
	s.next++
	s.mu.Unlock()

	return domain.GeoPosition{Coords: c, ObservedAt: s.clock.Now().UTC()}, nil
}

// Reset makes the next call return the first coordinate without waiting.
func (s *StaticSource) Reset() {
	s.mu.Lock()
	s.next = 0
	s.started = false
	s.mu.Unlock()
}
