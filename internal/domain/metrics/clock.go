package metrics

import "time"

// Clock lets tests drive the rolling window deterministically.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
