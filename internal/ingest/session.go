package ingest

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaitTimeout is returned by Session.Wait when maxWait elapses first.
var ErrWaitTimeout = errors.New("timed out waiting for ingestion batch")

// State is the lifecycle of a Session.
type State int

const (
	StateIdle State = iota
	StateInProgress
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

// MarshalText renders the state name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PollResult is what one Poll observed.
type PollResult struct {
	State     State `json:"state"`
	Completed int   `json:"completed"`
	Total     int   `json:"total"`
}

// Session is the consumer side of one batch's progress channel. Poll never
// blocks; callers invoke it from their own tick or idle loop until it reports
// StateCompleted.
type Session struct {
	mu        sync.Mutex
	ch        *Channel
	state     State
	completed int
	total     int

	result *Result
}

// NewSession returns an idle session.
func NewSession() *Session {
	return &Session{}
}

// begin moves the session to StateInProgress with fresh counters for a batch
// of total paths reporting on ch.
func (s *Session) begin(total int, ch *Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = ch
	s.state = StateInProgress
	s.completed = 0
	s.total = total
	s.result = nil
}

// finish stores the worker's result. It does not change State; only a
// terminal signal does that.
func (s *Session) finish(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = &res
}

// Poll takes at most one pending signal and advances the state machine.
// Once StateCompleted is reached it stays there until a new batch begins.
func (s *Session) Poll() PollResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateInProgress {
		if sig, ok := s.ch.TryReceive(); ok {
			s.completed = sig.Completed
			s.total = sig.Total
			if sig.Completed >= sig.Total {
				s.state = StateCompleted
			}
		}
	}
	return PollResult{State: s.state, Completed: s.completed, Total: s.total}
}

// Result returns the batch summary once the worker has returned.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// Wait polls every interval until the session completes, ctx is cancelled,
// or maxWait (when positive) elapses. If the worker has already returned but
// no terminal signal was observed, Wait completes the session from the
// worker's result rather than polling forever.
func (s *Session) Wait(ctx context.Context, interval, maxWait time.Duration, onProgress func(PollResult)) (PollResult, error) {
	var deadline <-chan time.Time
	if maxWait > 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := PollResult{}
	for {
		pr := s.Poll()
		if onProgress != nil && pr != last {
			onProgress(pr)
		}
		last = pr
		switch pr.State {
		case StateCompleted:
			return pr, nil
		case StateIdle:
			return pr, nil
		}
		if res, ok := s.Result(); ok {
			if pr = s.Poll(); pr.State != StateCompleted {
				pr = s.complete(res.Total)
			}
			if onProgress != nil && pr != last {
				onProgress(pr)
			}
			return pr, nil
		}

		select {
		case <-ticker.C:
		case <-deadline:
			return pr, ErrWaitTimeout
		case <-ctx.Done():
			return pr, ctx.Err()
		}
	}
}

// complete forces StateCompleted.
func (s *Session) complete(total int) PollResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateCompleted
	s.completed = total
	s.total = total
	return PollResult{State: s.state, Completed: s.completed, Total: s.total}
}
