package orchestration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// State is the orchestrator's position in the turn pipeline.
type State string

const (
	StateIdle         State = "idle"
	StateCapturing    State = "capturing"
	StateTranscribing State = "transcribing"
	StateGenerating   State = "generating"
	StateSynthesizing State = "synthesizing"
)

// Turn is the unit of work for one capture-transcribe-generate-synthesize
// cycle. It is created when capture begins and discarded on completion or
// on preemption by a newer turn.
type Turn struct {
	ID        string
	StartedAt time.Time

	// session is the cancellation signal this turn's stages are bound to.
	session context.Context

	latency LatencyRecord
}

func newTurn(session context.Context) *Turn {
	return &Turn{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		session:   session,
	}
}

// Latency returns the turn's latency record so far.
func (t *Turn) Latency() LatencyRecord {
	return t.latency
}
