package position

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pos(lat, lon float64) domain.GeoPosition {
	return domain.GeoPosition{Coords: domain.Coords{Lat: lat, Lon: lon}}
}

type recorder struct {
	mu        sync.Mutex
	positions []domain.GeoPosition
	errs      []error
}

func (r *recorder) onPosition(p domain.GeoPosition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, p)
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positions)
}

func TestFeed_DeliversInOrder(t *testing.T) {
	src := NewPushSource(8)
	rec := &recorder{}
	sub := NewFeed(src, discardLogger()).Subscribe(context.Background(), rec.onPosition, rec.onError)
	defer sub.Cancel()

	ctx := context.Background()
	require.NoError(t, src.Push(ctx, pos(1, 1)))
	require.NoError(t, src.Push(ctx, pos(2, 2)))
	require.NoError(t, src.Push(ctx, pos(3, 3)))

	require.Eventually(t, func() bool { return rec.count() == 3 }, time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []domain.GeoPosition{pos(1, 1), pos(2, 2), pos(3, 3)}, rec.positions)
	assert.Empty(t, rec.errs)
}

func TestFeed_TerminalErrorDeliveredOnce(t *testing.T) {
	src := NewPushSource(8)
	rec := &recorder{}
	sub := NewFeed(src, discardLogger()).Subscribe(context.Background(), rec.onPosition, rec.onError)

	ctx := context.Background()
	require.NoError(t, src.Push(ctx, pos(1, 1)))
	require.NoError(t, src.Fail(ctx, ErrPermissionDenied))
	require.NoError(t, src.Push(ctx, pos(2, 2)))

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not end after terminal error")
	}

	rec.mu.Lock()
	assert.Len(t, rec.positions, 1)
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], ErrPermissionDenied)
	rec.mu.Unlock()
	assert.ErrorIs(t, sub.Err(), ErrPermissionDenied)

	sub.Cancel() // no-op after the feed ended
}

func TestFeed_NoCallbacksAfterCancel(t *testing.T) {
	src := NewPushSource(8)
	var calls atomic.Int64
	sub := NewFeed(src, discardLogger()).Subscribe(context.Background(),
		func(domain.GeoPosition) { calls.Add(1) },
		func(error) { calls.Add(1) },
	)

	ctx := context.Background()
	require.NoError(t, src.Push(ctx, pos(1, 1)))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	sub.Cancel()
	sub.Cancel()

	require.NoError(t, src.Push(ctx, pos(2, 2)))
	require.NoError(t, src.Fail(ctx, ErrUnavailable))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int64(1), calls.Load())
	assert.NoError(t, sub.Err())
}

func TestFeed_ParentContextEndsSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	sub := NewFeed(NewPushSource(1), discardLogger()).Subscribe(ctx, rec.onPosition, rec.onError)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not end with its context")
	}
	assert.Empty(t, rec.errs, "cancellation is not a source error")
}

func TestPushSource_PushRespectsContext(t *testing.T) {
	src := NewPushSource(1)
	require.NoError(t, src.Push(context.Background(), pos(1, 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := src.Push(ctx, pos(2, 2))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	src.Reset()
	require.NoError(t, src.Push(context.Background(), pos(3, 3)))
}

func TestStaticSource_ReplaysOnInterval(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 9, 0, 0, 0, time.UTC))
	coords := []domain.Coords{{Lat: 8.5, Lon: 76.9}, {Lat: 9.9, Lon: 76.3}}
	src := NewStaticSource(coords, time.Minute, fc)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, coords[0], first.Coords)
	assert.Equal(t, fc.Now(), first.ObservedAt)

	got := make(chan domain.GeoPosition, 1)
	go func() {
		p, _ := src.Next(ctx)
		got <- p
	}()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(time.Minute)

	select {
	case p := <-got:
		assert.Equal(t, coords[1], p.Coords)
	case <-ctx.Done():
		t.Fatal("static source did not advance")
	}

	src.Reset()
	again, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, coords[0], again.Coords)
}

func TestStaticSource_Empty(t *testing.T) {
	_, err := NewStaticSource(nil, time.Second, nil).Next(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFeed_ResubscribeRestartsStaticSource(t *testing.T) {
	coords := []domain.Coords{{Lat: 9.93, Lon: 76.26}, {Lat: 10.1, Lon: 76.35}}
	src := NewStaticSource(coords, time.Hour, clockwork.NewFakeClock())
	feed := NewFeed(src, discardLogger())

	for range 2 {
		got := make(chan domain.GeoPosition, 1)
		sub := feed.Subscribe(context.Background(), func(p domain.GeoPosition) {
			select {
			case got <- p:
			default:
			}
		}, nil)

		select {
		case p := <-got:
			assert.Equal(t, coords[0], p.Coords)
		case <-time.After(time.Second):
			t.Fatal("no immediate position after subscribe")
		}
		sub.Cancel()
	}
}

func TestFeed_SubscribeDropsPositionsQueuedEarlier(t *testing.T) {
	src := NewPushSource(8)
	require.NoError(t, src.Push(context.Background(), pos(1, 1)))

	rec := &recorder{}
	sub := NewFeed(src, discardLogger()).Subscribe(context.Background(), rec.onPosition, rec.onError)
	defer sub.Cancel()

	require.NoError(t, src.Push(context.Background(), pos(2, 2)))
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, pos(2, 2), rec.positions[0])
}
