package position

import (
	"context"

	"github.com/couchcryptid/airwatch/internal/domain"
)

type pushEvent struct {
	pos domain.GeoPosition
	err error
}

// PushSource is fed externally, typically by the browser posting its
// watchPosition callbacks over HTTP.
type PushSource struct {
	events chan pushEvent
}

// NewPushSource creates a source that buffers up to size pending events.
func NewPushSource(size int) *PushSource {
	if size <= 0 {
		size = 1
	}
	return &PushSource{events: make(chan pushEvent, size)}
}

// Push queues a position. It blocks while the buffer is full.
func (p *PushSource) Push(ctx context.Context, pos domain.GeoPosition) error {
	return p.send(ctx, pushEvent{pos: pos})
}

// Fail queues a terminal error for the current subscriber.
func (p *PushSource) Fail(ctx context.Context, err error) error {
	return p.send(ctx, pushEvent{err: err})
}

func (p *PushSource) send(ctx context.Context, ev pushEvent) error {
	select {
	case p.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset drops queued events so a new session does not see positions pushed
// for the previous one. Feed calls it for every new subscription.
func (p *PushSource) Reset() {
	for {
		select {
		case <-p.events:
		default:
			return
		}
	}
}

// Next implements Source.
func (p *PushSource) Next(ctx context.Context) (domain.GeoPosition, error) {
	select {
	case ev := <-p.events:
		return ev.pos, ev.err
	case <-ctx.Done():
		return domain.GeoPosition{}, ctx.Err()
	}
}
