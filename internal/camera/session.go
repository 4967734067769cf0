// Package camera manages the environment-facing camera stream behind the
// camera tab's AQI overlay.
package camera

import (
	"context"
	"log/slog"
	"sync"

	"github.com/couchcryptid/airwatch/internal/domain"
)

// Facing selects a camera.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
)

// Track is one media track of a stream.
type Track interface {
	Stop()
}

// Stream is an acquired camera stream.
type Stream interface {
	Tracks() []Track
}

// Device acquires camera streams.
type Device interface {
	Acquire(ctx context.Context, facing Facing) (Stream, error)
}

// Session owns at most one stream. Acquisition runs in the background;
// Close stops every track, including those of a stream that arrives after
// Close.
type Session struct {
	logger *slog.Logger
	cancel context.CancelFunc
	ready  chan struct{}

	mu     sync.Mutex
	stream Stream
	err    error
	closed bool
}

// Open starts acquiring an environment-facing stream from device.
func Open(ctx context.Context, device Device, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{logger: logger, cancel: cancel, ready: make(chan struct{})}

	go func() {
		defer close(s.ready)
		stream, err := device.Acquire(ctx, FacingEnvironment)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			if stream != nil {
				stopTracks(stream)
				s.logger.Debug("camera stream arrived after close, stopped")
			}
			return
		}
		s.stream, s.err = stream, err
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("camera acquisition failed", "error", err)
			return
		}
		s.logger.Debug("camera stream acquired", "tracks", len(stream.Tracks()))
	}()

	return s
}

// Ready is closed once acquisition has finished, successfully or not.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Active reports whether a stream is currently held.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Err returns the acquisition error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the stream's tracks. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	s.cancel()
	if stream != nil {
		stopTracks(stream)
	}
}

func stopTracks(stream Stream) {
	for _, t := range stream.Tracks() {
		t.Stop()
	}
}

// UnavailableDevice is used where no camera can be reached, such as a
// headless server.
type UnavailableDevice struct{}

// ErrNoCamera is the permission failure reported by UnavailableDevice.
var ErrNoCamera = domain.NewError(domain.ErrPermission, "Camera access is not available on this device.")

func (UnavailableDevice) Acquire(context.Context, Facing) (Stream, error) {
	return nil, ErrNoCamera
}
