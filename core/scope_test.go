package orchestration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBeginSessionCancelsPreviousWithPreemptionCause(t *testing.T) {
	scope := newCancellationScope(context.Background())

	first := scope.beginSession()
	second := scope.beginSession()

	if first.Err() == nil {
		t.Fatalf("expected first session to be cancelled")
	}
	if cause := context.Cause(first); !errors.Is(cause, ErrPreempted) {
		t.Fatalf("expected ErrPreempted cause, got %v", cause)
	}
	if second.Err() != nil {
		t.Fatalf("expected second session to be live, got %v", second.Err())
	}
}

func TestIsCurrentRejectsStaleAndCancelledSessions(t *testing.T) {
	scope := newCancellationScope(context.Background())

	first := scope.beginSession()
	if !scope.isCurrent(first) {
		t.Fatalf("expected fresh session to be current")
	}

	second := scope.beginSession()
	if scope.isCurrent(first) {
		t.Fatalf("expected preempted session to no longer be current")
	}
	if !scope.isCurrent(second) {
		t.Fatalf("expected new session to be current")
	}

	scope.endSession(ErrSessionClosed)
	if scope.isCurrent(second) {
		t.Fatalf("expected closed session to no longer be current")
	}
}

func TestStageContextExpiresIndependentlyOfSession(t *testing.T) {
	scope := newCancellationScope(context.Background())
	session := scope.beginSession()

	stageCtx, cancel := stageContext(session, 10*time.Millisecond)
	defer cancel()

	select {
	case <-stageCtx.Done():
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for stage deadline")
	}

	if !errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", stageCtx.Err())
	}
	if session.Err() != nil {
		t.Fatalf("expected session to outlive the stage deadline, got %v", session.Err())
	}
}

func TestClassifyStageErrorDropsPreemptedFailures(t *testing.T) {
	scope := newCancellationScope(context.Background())
	session := scope.beginSession()
	stageCtx, cancel := stageContext(session, time.Second)
	defer cancel()

	scope.beginSession()

	if failure := classifyStageError(stageCtx, session, FailureTranscriptionTimeout, stageCtx.Err()); failure != nil {
		t.Fatalf("expected preempted stage to classify as nil, got %+v", failure)
	}
}

func TestClassifyStageErrorMapsTimeouts(t *testing.T) {
	scope := newCancellationScope(context.Background())
	session := scope.beginSession()
	stageCtx, cancel := stageContext(session, time.Nanosecond)
	defer cancel()
	<-stageCtx.Done()

	failure := classifyStageError(stageCtx, session, FailureGenerationTimeout, stageCtx.Err())
	if failure == nil {
		t.Fatalf("expected a stage failure")
	}
	if failure.Kind != FailureGenerationTimeout {
		t.Fatalf("expected generation timeout kind, got %s", failure.Kind)
	}
}

func TestClassifyStageErrorMapsBackendErrors(t *testing.T) {
	scope := newCancellationScope(context.Background())
	session := scope.beginSession()
	stageCtx, cancel := stageContext(session, time.Second)
	defer cancel()

	backendErr := fmt.Errorf("upstream returned 500")
	failure := classifyStageError(stageCtx, session, FailureSynthesisTimeout, backendErr)
	if failure == nil {
		t.Fatalf("expected a stage failure")
	}
	if failure.Kind != FailureBackendError {
		t.Fatalf("expected backend error kind, got %s", failure.Kind)
	}
	if !errors.Is(failure, backendErr) {
		t.Fatalf("expected failure to wrap the backend error")
	}
}
