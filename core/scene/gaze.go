package scene

import (
	"context"
	"sync"
)

const defaultGazeHistorySize = 10

// GazeTracker records what the participant has been looking at. It doubles
// as the orchestrator's context provider: the current gaze target, recent
// gaze history and the objects in view are attached to every user message
// so the model can ground deictic references ("this one", "that lamp").
type GazeTracker struct {
	registry *Registry

	mu       sync.RWMutex
	current  string
	history  []string
	capacity int
}

func NewGazeTracker(registry *Registry) *GazeTracker {
	return &GazeTracker{registry: registry, capacity: defaultGazeHistorySize}
}

// Observe records a gaze fixation on the named object. Consecutive
// fixations on the same object collapse into one history entry.
func (t *GazeTracker) Observe(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = name
	if name == "" {
		return
	}
	if n := len(t.history); n > 0 && t.history[n-1] == name {
		return
	}
	t.history = append(t.history, name)
	if len(t.history) > t.capacity {
		t.history = t.history[len(t.history)-t.capacity:]
	}
}

// Current returns the object currently fixated, empty when gaze rests on
// nothing named.
func (t *GazeTracker) Current() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// SceneContext builds the ambient context payload attached to user
// messages.
func (t *GazeTracker) SceneContext(ctx context.Context) (map[string]any, error) {
	t.mu.RLock()
	current := t.current
	history := make([]string, len(t.history))
	copy(history, t.history)
	t.mu.RUnlock()

	payload := map[string]any{
		"current_gaze_object": current,
		"gaze_history":        history,
	}
	if t.registry != nil {
		payload["objects_in_view"] = t.registry.Names()
	}
	return payload, nil
}
