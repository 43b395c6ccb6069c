package call

import (
	"math"
	"sync"
	"time"
)

// DialConfig bounds outbound call pacing for the whole process.
type DialConfig struct {
	// CallsPerSecond and Burst drive the token bucket. Zero disables
	// rate pacing.
	CallsPerSecond float64
	Burst          int

	// MaxConcurrentCalls caps in-flight calls. Zero disables the cap.
	MaxConcurrentCalls int
}

// DialLimiter paces originations with a token bucket plus a
// concurrency semaphore.
type DialLimiter struct {
	cfg DialConfig

	mu sync.Mutex
	tb tokenBucket

	sem chan struct{}
}

type tokenBucket struct {
	tokens float64
	last   time.Time
}

func NewDialLimiter(cfg DialConfig) *DialLimiter {
	l := &DialLimiter{cfg: cfg}
	if cfg.MaxConcurrentCalls > 0 {
		l.sem = make(chan struct{}, cfg.MaxConcurrentCalls)
	}
	return l
}

// Permit releases a concurrency slot when the call finishes. Release
// is idempotent.
type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

// Decision is the outcome of an Acquire attempt. RetryAfter is advice
// in whole seconds when the dial was refused.
type Decision struct {
	Allowed    bool
	RetryAfter int
	Permit     *Permit
}

// Acquire attempts to admit one origination at the given time.
func (l *DialLimiter) Acquire(now time.Time) Decision {
	if l == nil {
		return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
	}

	if l.cfg.CallsPerSecond > 0 && l.cfg.Burst > 0 {
		ok, retryAfter := l.allowToken(now)
		if !ok {
			return Decision{Allowed: false, RetryAfter: retryAfter}
		}
	}

	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
			return Decision{Allowed: true, Permit: &Permit{release: func() { <-l.sem }}}
		default:
			return Decision{Allowed: false, RetryAfter: 1}
		}
	}

	return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
}

func (l *DialLimiter) allowToken(now time.Time) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	capacity := float64(l.cfg.Burst)
	if l.tb.last.IsZero() {
		l.tb.tokens = capacity
	} else if elapsed := now.Sub(l.tb.last).Seconds(); elapsed > 0 {
		l.tb.tokens = math.Min(capacity, l.tb.tokens+elapsed*l.cfg.CallsPerSecond)
	}
	l.tb.last = now

	if l.tb.tokens >= 1 {
		l.tb.tokens--
		return true, 0
	}
	wait := (1 - l.tb.tokens) / l.cfg.CallsPerSecond
	return false, int(math.Max(1, math.Ceil(wait)))
}
