package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/embodiedlab/avatar-core/core/audio"
)

// speechPlayer arbitrates the single playback slot: at most one utterance
// plays at a time. Callers wait for the previous clip to finish before
// starting a new one; the wait is preemptible through the caller's context.
type speechPlayer struct {
	device audio.PlaybackDevice

	mu      sync.Mutex
	current <-chan struct{}
}

func newSpeechPlayer(device audio.PlaybackDevice) *speechPlayer {
	return &speechPlayer{device: device}
}

// awaitIdle blocks until any previously started playback has finished, or
// the context fires.
func (p *speechPlayer) awaitIdle(ctx context.Context) error {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	if current == nil {
		return nil
	}

	select {
	case <-current:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// play starts playback of the clip and returns its duration. The clip's
// completion channel becomes the new occupant of the playback slot.
func (p *speechPlayer) play(ctx context.Context, clip audio.Clip) (time.Duration, error) {
	duration := clip.Duration()

	if p.device == nil {
		// No playback device configured; the slot is occupied for the
		// clip's nominal duration so serialization still holds.
		done := make(chan struct{})
		time.AfterFunc(duration, func() { close(done) })
		p.mu.Lock()
		p.current = done
		p.mu.Unlock()
		return duration, nil
	}

	done, err := p.device.Play(ctx, clip)
	if err != nil {
		return 0, fmt.Errorf("failed to start playback: %w", err)
	}

	p.mu.Lock()
	p.current = done
	p.mu.Unlock()

	return duration, nil
}

// abort stops the in-flight playback, if any. Used on shutdown; preemption
// lets the current clip finish, it only prevents new clips.
func (p *speechPlayer) abort() {
	if p.device != nil {
		p.device.Abort()
	}
}
