// Package position turns a geolocation source into a cancelable stream of
// position updates.
package position

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/couchcryptid/airwatch/internal/domain"
)

// Terminal source failures, mirroring the browser geolocation error codes.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnavailable      = errors.New("position unavailable")
	ErrTimeout          = errors.New("timeout expired")
)

// Source yields positions in observation order. Next blocks until a position
// is available, the source fails for good, or ctx is done.
type Source interface {
	Next(ctx context.Context) (domain.GeoPosition, error)
}

// resetter is implemented by sources that start over for each new
// subscription, dropping state left by the previous one.
type resetter interface {
	Reset()
}

// Feed subscribes callers to a Source.
type Feed struct {
	source Source
	logger *slog.Logger
}

// NewFeed creates a feed over source.
func NewFeed(source Source, logger *slog.Logger) *Feed {
	return &Feed{source: source, logger: logger}
}

// Subscribe starts delivering positions to onPosition on a dedicated
// goroutine. The first non-cancellation error from the source is delivered
// once to onError and ends the subscription. Callbacks must not call Cancel
// on their own subscription.
func (f *Feed) Subscribe(ctx context.Context, onPosition func(domain.GeoPosition), onError func(error)) *Subscription {
	if r, ok := f.source.(resetter); ok {
		r.Reset()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		for {
			pos, err := f.source.Next(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				f.logger.Warn("position source failed", "error", err)
				s.setErr(err)
				if onError != nil {
					onError(err)
				}
				return
			}
			onPosition(pos)
		}
	}()

	return s
}

// Subscription is a live position stream.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// Cancel stops delivery and waits for the delivery goroutine to exit. No
// callback runs after Cancel returns. Calling it again is a no-op.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed once the subscription has ended for any reason.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal source error, if one ended the subscription.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
