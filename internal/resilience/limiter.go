package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LimiterConfig describes the call discipline for one upstream source.
type LimiterConfig struct {
	// MinInterval is the minimum gap between two calls. Zero disables pacing.
	MinInterval time.Duration
	// WindowCalls caps the number of calls started within Window. Zero
	// disables the cap.
	WindowCalls int
	Window      time.Duration

	Retry RetryConfig

	// DegradeAfter is the number of consecutive rate-limited calls after
	// which the source is treated as unavailable until Window elapses.
	DegradeAfter int

	// OnDegrade is called with true when the source degrades and false when
	// it recovers.
	OnDegrade func(degraded bool)
	// OnRateLimited is called for every rate-limited attempt.
	OnRateLimited func()
}

// DefaultLimiterConfig returns conservative defaults for a public API.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		MinInterval:  250 * time.Millisecond,
		WindowCalls:  60,
		Window:       time.Minute,
		Retry:        DefaultRetryConfig(),
		DegradeAfter: 3,
	}
}

// Limiter owns the pacing, window and breaker state of one source. Each
// process (or job) creates its own limiters; nothing is shared globally.
type Limiter struct {
	name    string
	cfg     LimiterConfig
	pace    *rate.Limiter
	breaker *CircuitBreaker

	mu    sync.Mutex
	calls []time.Time // start times within the trailing window, oldest first

	nowFunc func() time.Time
}

// NewLimiter builds the limiter for the named source.
func NewLimiter(name string, cfg LimiterConfig) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.DegradeAfter <= 0 {
		cfg.DegradeAfter = 3
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = RetryLogger(name, "call")
	}

	pace := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinInterval > 0 {
		pace = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	l := &Limiter{
		name:    name,
		cfg:     cfg,
		pace:    pace,
		nowFunc: time.Now,
	}
	l.breaker = NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: cfg.DegradeAfter,
		ResetTimeout:     cfg.Window,
		ShouldTrip:       IsRateLimited,
		OnStateChange:    l.onStateChange,
	})
	return l
}

func (l *Limiter) onStateChange(from, to CircuitState) {
	switch to {
	case CircuitOpen:
		zap.L().Warn("source degraded after repeated rate limiting",
			zap.String("source", l.name),
			zap.Duration("window", l.cfg.Window),
		)
		if l.cfg.OnDegrade != nil {
			l.cfg.OnDegrade(true)
		}
	case CircuitClosed:
		if from != CircuitClosed && l.cfg.OnDegrade != nil {
			l.cfg.OnDegrade(false)
		}
	}
}

// Name returns the source name the limiter guards.
func (l *Limiter) Name() string { return l.name }

// Degraded reports whether the source is unavailable for the current window.
func (l *Limiter) Degraded() bool { return l.breaker.Degraded() }

// Wait blocks until a call may start under both the pacing interval and the
// sliding-window cap, then reserves the slot.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.pace.Wait(ctx); err != nil {
		return eris.Wrapf(err, "%s: pacing wait", l.name)
	}
	if l.cfg.WindowCalls <= 0 {
		return nil
	}
	for {
		delay := l.reserve()
		if delay <= 0 {
			return nil
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return eris.Wrapf(err, "%s: window wait", l.name)
		}
	}
}

// reserve records a call start if the window has room, otherwise returns how
// long until the oldest call leaves the window.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	l.calls = l.calls[i:]

	if len(l.calls) < l.cfg.WindowCalls {
		l.calls = append(l.calls, now)
		return 0
	}
	return l.calls[0].Add(l.cfg.Window).Sub(now)
}

// InWindow returns how many calls were started in the trailing window.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.nowFunc().Add(-l.cfg.Window)
	n := 0
	for _, t := range l.calls {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// Do runs fn under the limiter.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, l, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call runs fn under the limiter: every attempt is paced, counted against the
// window and passed through the breaker; transient and rate-limit failures
// are retried with backoff. Once the breaker opens, remaining attempts fail
// fast with ErrCircuitOpen.
func Call[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) (T, error) {
	return DoVal(ctx, l.cfg.Retry, func(ctx context.Context) (T, error) {
		var zero T
		if l.breaker.Degraded() {
			return zero, ErrCircuitOpen
		}
		if err := l.Wait(ctx); err != nil {
			return zero, err
		}
		val, err := ExecuteVal(ctx, l.breaker, fn)
		if IsRateLimited(err) && l.cfg.OnRateLimited != nil {
			l.cfg.OnRateLimited()
		}
		return val, err
	})
}
