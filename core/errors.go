package orchestration

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPreempted is the cancellation cause set when a new turn displaces
	// the one in flight. It never reaches the failure notifier.
	ErrPreempted = errors.New("turn preempted by a newer turn")

	// ErrSessionClosed is the cancellation cause set when the orchestrator
	// shuts down.
	ErrSessionClosed = errors.New("session closed")

	// ErrCaptureUnavailable signals that no capture device could be opened.
	// Fatal to the turn, no retry.
	ErrCaptureUnavailable = errors.New("capture device unavailable")

	// ErrCaptureNotStarted signals an EndTurn without a prior BeginTurn.
	// This is a programming error in the driver, surfaced rather than
	// swallowed.
	ErrCaptureNotStarted = errors.New("capture has not been started")

	// ErrTurnAlreadyActive signals a BeginTurn while capture is already
	// running for the same turn.
	ErrTurnAlreadyActive = errors.New("turn capture already active")
)

// FailureKind is the taxonomy of turn failures that reach the notifier
// funnel. Preemption is deliberately not a FailureKind.
type FailureKind string

const (
	FailureTranscriptionTimeout FailureKind = "transcription_timeout"
	FailureGenerationTimeout    FailureKind = "generation_timeout"
	FailureSynthesisTimeout     FailureKind = "synthesis_timeout"
	FailureBackendError         FailureKind = "backend_error"
	FailureCaptureUnavailable   FailureKind = "capture_unavailable"
)

// StageFailure wraps a stage error with its taxonomy kind. The notifier
// does not need the kind; collaborators inspecting errors do.
type StageFailure struct {
	Kind FailureKind
	Err  error
}

func (f *StageFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *StageFailure) Unwrap() error { return f.Err }

// classifyStageError folds a stage call result into the taxonomy. A nil
// return means the error was a preemption and should be abandoned silently.
func classifyStageError(stageCtx context.Context, sessionCtx context.Context, timeoutKind FailureKind, err error) *StageFailure {
	if errors.Is(context.Cause(sessionCtx), ErrPreempted) || errors.Is(context.Cause(sessionCtx), ErrSessionClosed) {
		return nil
	}

	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &StageFailure{Kind: timeoutKind, Err: err}
	}

	return &StageFailure{Kind: FailureBackendError, Err: err}
}
