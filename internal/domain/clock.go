package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock stamps decoded snapshots and anchors generated forecast dates.
var clock = clockwork.NewRealClock()

// SetClock replaces the time source used by DecodeLiveData and NewForecast.
// nil restores the real clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	clock = c
}

func now() time.Time {
	return clock.Now().UTC()
}
