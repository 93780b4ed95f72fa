package consumer

import (
	"time"

	"github.com/webitel/jetstream-explorer/internal/domain/activity"
)

// Option defines a functional configuration type for the Consumer.
type Option func(*settings)

type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Multiplier of 1 gives a flat delay.
	Multiplier float64
	// Jitter is the randomization factor in [0,1].
	Jitter float64
	// MaxAttempts bounds consecutive failed attempts; 0 means unlimited.
	MaxAttempts int
}

type BreakerPolicy struct {
	// MaxFailures consecutive attempts that never opened trip the breaker.
	MaxFailures uint32
	Cooldown    time.Duration
}

type settings struct {
	reconnect  ReconnectPolicy
	breaker    BreakerPolicy
	dedupeSize int
	tick       time.Duration
	mailbox    int
	activity   activity.Recorder
	scheduler  Scheduler
}

func defaultSettings() settings {
	return settings{
		reconnect: ReconnectPolicy{
			InitialDelay: 2500 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			Multiplier:   2,
			Jitter:       0.2,
		},
		breaker: BreakerPolicy{
			MaxFailures: 5,
			Cooldown:    30 * time.Second,
		},
		dedupeSize: 4096,
		tick:       500 * time.Millisecond,
		mailbox:    4096,
		activity:   activity.Discard,
		scheduler:  realScheduler{},
	}
}

// WithReconnect configures the [BACKOFF] applied after unintentional closes.
func WithReconnect(p ReconnectPolicy) Option {
	return func(s *settings) { s.reconnect = p }
}

// WithBreaker configures the [CIRCUIT_BREAKER] guarding connection attempts.
func WithBreaker(p BreakerPolicy) Option {
	return func(s *settings) { s.breaker = p }
}

// WithDedupe sets how many recent event keys are remembered to drop
// re-delivered events after a resume. Zero disables it.
func WithDedupe(size int) Option {
	return func(s *settings) { s.dedupeSize = size }
}

// WithTick sets the metrics recomputation cadence.
func WithTick(d time.Duration) Option {
	return func(s *settings) { s.tick = d }
}

// WithMailboxSize bounds pending inbound frames and commands.
func WithMailboxSize(n int) Option {
	return func(s *settings) { s.mailbox = n }
}

func WithActivity(r activity.Recorder) Option {
	return func(s *settings) {
		if r != nil {
			s.activity = r
		}
	}
}

func WithScheduler(sc Scheduler) Option {
	return func(s *settings) {
		if sc != nil {
			s.scheduler = sc
		}
	}
}

// Scheduler runs f after d. The returned func cancels it.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}
