package orchestration

import (
	"context"
	"sync"
	"time"
)

// cancellationScope owns the "current turn" cancellation signal. Exactly one
// session context is live at a time; beginning a new session cancels the
// previous one with ErrPreempted, which every stage bounded by the old
// session observes as silent abandonment.
type cancellationScope struct {
	mu sync.Mutex

	base    context.Context
	session context.Context
	cancel  context.CancelCauseFunc
}

func newCancellationScope(base context.Context) *cancellationScope {
	if base == nil {
		base = context.Background()
	}
	return &cancellationScope{base: base}
}

// beginSession cancels the previous session (if any) and derives a fresh
// one. Awaiters on the old session fail with ErrPreempted as the cause.
func (s *cancellationScope) beginSession() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel(ErrPreempted)
	}

	s.session, s.cancel = context.WithCancelCause(s.base)
	return s.session
}

// endSession cancels the live session with the given cause and leaves no
// session active. Used on shutdown.
func (s *cancellationScope) endSession(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel(cause)
		s.session, s.cancel = nil, nil
	}
}

// isCurrent reports whether ctx is the live, uncancelled session. Stages
// check this immediately before any history mutation or playback so a
// cancelled stage's callback can never act after preemption.
func (s *cancellationScope) isCurrent(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.session == ctx && ctx != nil && ctx.Err() == nil
}

// stageContext derives the child signal for one stage call: it fires on the
// earlier of the session cancelling and the stage timeout elapsing.
func stageContext(session context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(session)
	}
	return context.WithTimeout(session, timeout)
}
