package call

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDraining is returned by Register once the registry stopped
// accepting new calls.
var ErrDraining = errors.New("call registry is draining")

// Handle is the registry's view of one active call. It carries only
// the cross-goroutine coordination state (cancellation, the answered
// signal, and the hangup bookkeeping); the Session stays private to
// the call's own goroutine.
type Handle struct {
	id     string
	cancel context.CancelFunc

	answered chan struct{}
	done     chan struct{}

	mu            sync.Mutex
	answeredOnce  bool
	humanAnswered bool
	robotHangup   bool
	declared      Outcome
	digits        []byte
}

// Answered is closed when the PBX reports the call as answered.
func (h *Handle) Answered() <-chan struct{} { return h.answered }

func (h *Handle) markAnswered() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.answeredOnce {
		return
	}
	h.answeredOnce = true
	close(h.answered)
}

// MarkHumanAnswered records that a human (or presumed human) is on the
// line, which changes how an unflagged hangup is finalized.
func (h *Handle) MarkHumanAnswered() {
	h.mu.Lock()
	h.humanAnswered = true
	h.mu.Unlock()
}

// DeclareRobotHangup pre-registers that the engine itself is about to
// end the call and the status it intends, so the transport's hangup
// event is not mistaken for the caller hanging up.
func (h *Handle) DeclareRobotHangup(outcome Outcome) {
	h.mu.Lock()
	h.robotHangup = true
	h.declared = outcome
	h.mu.Unlock()
}

// RecordDigit appends a DTMF digit reported by the PBX. Digits do not
// drive routing; they are kept for the call record.
func (h *Handle) RecordDigit(digit string) {
	h.mu.Lock()
	h.digits = append(h.digits, digit...)
	h.mu.Unlock()
}

// Digits returns the DTMF digits collected so far.
func (h *Handle) Digits() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return string(h.digits)
}

// HangupOutcome resolves the final status for a hangup event: the
// pre-declared status when the robot initiated it, NOT_INTERESTED when
// a human-answered call was hung up mid-conversation, NO_ANSWER
// otherwise.
func (h *Handle) HangupOutcome() (Outcome, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.robotHangup {
		return h.declared, true
	}
	if h.humanAnswered {
		return OutcomeNotInterested, false
	}
	return OutcomeNoAnswer, false
}

// Registry tracks active calls by id, strictly for lookup and
// cancellation. Session internals never pass through it.
type Registry struct {
	mu       sync.Mutex
	calls    map[string]*Handle
	draining bool
}

func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*Handle)}
}

// Register adds a call. It fails once the registry is draining.
func (r *Registry) Register(id string, cancel context.CancelFunc) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return nil, ErrDraining
	}
	h := &Handle{
		id:       id,
		cancel:   cancel,
		answered: make(chan struct{}),
		done:     make(chan struct{}),
	}
	r.calls[id] = h
	return h, nil
}

// Get looks up an active call.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.calls[id]
	return h, ok
}

// Remove drops a finished call and releases its drain slot.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	h, ok := r.calls[id]
	if ok {
		delete(r.calls, id)
	}
	r.mu.Unlock()
	if ok {
		close(h.done)
	}
}

// Cancel cancels the named call's context, if it is still active.
func (r *Registry) Cancel(id string) {
	if h, ok := r.Get(id); ok {
		h.cancel()
	}
}

// Len reports the number of active calls.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Drain stops accepting new calls, waits for in-flight calls up to the
// grace period, then cancels the stragglers. It returns the number of
// calls that had to be force-cancelled.
func (r *Registry) Drain(ctx context.Context, grace time.Duration) int {
	r.mu.Lock()
	r.draining = true
	pending := make([]*Handle, 0, len(r.calls))
	for _, h := range r.calls {
		pending = append(pending, h)
	}
	r.mu.Unlock()

	deadline := time.NewTimer(grace)
	defer deadline.Stop()

	forced := 0
	expired := false
	for _, h := range pending {
		if expired {
			h.cancel()
			forced++
			continue
		}
		select {
		case <-h.done:
		case <-deadline.C:
			expired = true
			h.cancel()
			forced++
		case <-ctx.Done():
			expired = true
			h.cancel()
			forced++
		}
	}
	return forced
}
