package orchestration

import (
	"sync"

	"github.com/jinzhu/copier"

	"github.com/embodiedlab/avatar-core/core/llms"
)

const defaultHistoryCapacity = 20

// History is a bounded ordered log of turn messages plus one immutable
// system message. The system message is never evicted and is always first
// when the history is materialized for a generation call.
//
// Only the orchestrator mutates history, from the single logical thread of
// control each turn runs on; the mutex exists for readers on other
// goroutines (snapshots, bridge consumers).
type History struct {
	mu sync.RWMutex

	system   llms.Message
	queue    []llms.Message
	capacity int
}

func NewHistory(systemPrompt string, capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &History{
		system:   llms.NewSystemMessage(systemPrompt),
		capacity: capacity,
	}
}

// Append enqueues a turn message, evicting the oldest one when the queue is
// full. The system message never takes part in eviction.
func (h *History) Append(message llms.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.queue = append(h.queue, message)
	if len(h.queue) > h.capacity {
		h.queue = h.queue[len(h.queue)-h.capacity:]
	}
}

// Materialize returns the full conversation for a generation call: the
// system message first, then the turn queue in insertion order. The result
// is a deep copy, safe to hand to backends while future appends happen.
func (h *History) Materialize() []llms.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	messages := make([]llms.Message, 0, len(h.queue)+1)
	messages = append(messages, h.system)

	var queue []llms.Message
	copier.Copy(&queue, h.queue)
	return append(messages, queue...)
}

// Reset replaces the system message and clears the turn queue. Used when the
// active scenario changes between experiment rounds.
func (h *History) Reset(systemPrompt string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.system = llms.NewSystemMessage(systemPrompt)
	h.queue = nil
}

// Len reports the number of turn messages (the system message not counted).
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.queue)
}

// SystemMessage returns the current system message.
func (h *History) SystemMessage() llms.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.system
}
