package orchestration

import (
	"sync"

	"github.com/embodiedlab/avatar-core/core/events"
)

// eventEmitter fans events out to an explicit observer list. All observers
// are notified; order between observers is unspecified.
type eventEmitter struct {
	mu        sync.RWMutex
	observers []func(events.Event)
}

func (e *eventEmitter) subscribe(observer func(events.Event)) {
	if observer == nil {
		return
	}
	e.mu.Lock()
	e.observers = append(e.observers, observer)
	e.mu.Unlock()
}

func (e *eventEmitter) emit(event events.Event) {
	e.mu.RLock()
	observers := make([]func(events.Event), len(e.observers))
	copy(observers, e.observers)
	e.mu.RUnlock()

	for _, observer := range observers {
		observer(event)
	}
}

// newCallbackEventEmitter adapts the orchestrator's callback options into
// one observer.
func newCallbackEventEmitter(callbacks orchestratorCallbacks) func(events.Event) {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.TurnStarted:
			if callbacks.onTurnStarted != nil {
				callbacks.onTurnStarted(typedEvent.TurnID)
			}
		case events.TurnThinking:
			if callbacks.onThinking != nil {
				callbacks.onThinking()
			}
		case events.UserMessageSent:
			if callbacks.onUserMessageSent != nil {
				callbacks.onUserMessageSent(typedEvent.Message, typedEvent.TurnStart)
			}
		case events.AIResponseReceived:
			if callbacks.onAIResponseReceived != nil {
				callbacks.onAIResponseReceived(typedEvent.Message)
			}
		case events.AvatarStartSpeak:
			if callbacks.onAvatarStartSpeak != nil {
				callbacks.onAvatarStartSpeak(typedEvent.Duration.Seconds())
			}
		case events.TurnCompleted:
			if callbacks.onTurnCompleted != nil {
				callbacks.onTurnCompleted(typedEvent.TurnID)
			}
		case events.TurnFailed:
			if callbacks.onProcessFailed != nil {
				callbacks.onProcessFailed()
			}
		}
	}
}
