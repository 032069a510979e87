package orchestration

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/embodiedlab/avatar-core/core/audio"
)

// captureStage accumulates the live microphone stream into a finished
// request payload. A pure local buffering step: no network, no timeout.
type captureStage struct {
	device audio.CaptureDevice

	mu        sync.Mutex
	buffer    *bytes.Buffer
	recording bool
	startedAt time.Time
}

func newCaptureStage(device audio.CaptureDevice) *captureStage {
	return &captureStage{device: device}
}

// begin opens an append-only audio buffer and records the turn start time.
// Fails only when the capture device cannot be opened, which is fatal to
// the turn.
func (c *captureStage) begin(ctx context.Context) error {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		return ErrTurnAlreadyActive
	}
	c.buffer = &bytes.Buffer{}
	c.recording = true
	c.startedAt = time.Now()
	c.mu.Unlock()

	if c.device == nil {
		c.abort()
		return ErrCaptureUnavailable
	}

	if err := c.device.StartStream(ctx, c.onBuffer); err != nil {
		c.abort()
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	return nil
}

// onBuffer appends a device buffer. Buffers arriving after end() are
// dropped; the device callback may race the stop call.
func (c *captureStage) onBuffer(buffer []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.recording || c.buffer == nil {
		return
	}
	c.buffer.Write(buffer)
}

// end finalizes the buffer into an immutable payload and returns it together
// with the capture start time. Calling end without a prior begin is a
// programming error and is reported as such.
func (c *captureStage) end() (audio.Payload, time.Time, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return audio.Payload{}, time.Time{}, ErrCaptureNotStarted
	}
	c.recording = false
	data := c.buffer.Bytes()
	c.buffer = nil
	startedAt := c.startedAt
	c.mu.Unlock()

	if c.device != nil {
		if err := c.device.Stop(); err != nil {
			logger.Warn("failed to stop capture device", "error", err)
		}
	}

	encoding := audio.GetDefaultEncodingInfo()
	if c.device != nil {
		encoding = c.device.EncodingInfo()
	}

	return audio.NewPayload(data, encoding), startedAt, nil
}

// abort discards the buffer without producing a payload.
func (c *captureStage) abort() {
	c.mu.Lock()
	c.recording = false
	c.buffer = nil
	c.mu.Unlock()

	if c.device != nil {
		if err := c.device.Stop(); err != nil {
			logger.Warn("failed to stop capture device", "error", err)
		}
	}
}
