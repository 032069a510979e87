package events

// KindTurnStarted identifies the beginning of capture for a new turn.
const KindTurnStarted Kind = "turn.started"

// TurnStarted marks the beginning of a new turn.
type TurnStarted struct {
	Base
	TurnID string
}

// NewTurnStarted creates a turn started event.
func NewTurnStarted(turnID string) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted), TurnID: turnID}
}

// KindTurnThinking identifies the end of capture, pipeline working.
const KindTurnThinking Kind = "turn.thinking"

// TurnThinking marks the moment capture ends and the backend stages begin.
// It fires regardless of how the turn eventually ends.
type TurnThinking struct {
	Base
	TurnID string
}

// NewTurnThinking creates a turn thinking event.
func NewTurnThinking(turnID string) TurnThinking {
	return TurnThinking{Base: NewBase(KindTurnThinking), TurnID: turnID}
}

// KindTurnCompleted identifies successful turn completion.
const KindTurnCompleted Kind = "turn.completed"

// TurnCompleted marks successful completion of the current turn.
type TurnCompleted struct {
	Base
	TurnID string
}

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(turnID string) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted), TurnID: turnID}
}

// KindTurnPreempted identifies displacement by a newer turn.
const KindTurnPreempted Kind = "turn.preempted"

// TurnPreempted marks silent displacement of a turn by its successor.
type TurnPreempted struct {
	Base
	TurnID string
}

// NewTurnPreempted creates a turn preempted event.
func NewTurnPreempted(turnID string) TurnPreempted {
	return TurnPreempted{Base: NewBase(KindTurnPreempted), TurnID: turnID}
}

// KindTurnFailed identifies a stage timeout or backend error.
const KindTurnFailed Kind = "turn.failed"

// TurnFailed marks a turn that ended in a stage timeout or backend error.
// This is the single funnel the failure notifier subscribes to.
type TurnFailed struct {
	Base
	TurnID string
}

// NewTurnFailed creates a turn failed event.
func NewTurnFailed(turnID string) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed), TurnID: turnID}
}
