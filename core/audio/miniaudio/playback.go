package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/embodiedlab/avatar-core/core/audio"
)

type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	pending []byte
	done    chan struct{}

	mu      sync.Mutex
	audioMu sync.Mutex
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Playback runs at the synthesis backends' PCM rate, not the capture
	// rate.
	sampleRate := uint32(24000)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	c.config.Periods = 4

	c.audioContext = audioContext

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) func(pOutput, _ []byte, frameCount uint32) {
	return func(pOutput, _ []byte, frameCount uint32) {
		n := int(frameCount) * bytesPerFrame

		c.audioMu.Lock()
		defer c.audioMu.Unlock()

		written := copy(pOutput[:n], c.pending)
		c.pending = c.pending[written:]
		for i := written; i < n; i++ {
			pOutput[i] = 0
		}

		if len(c.pending) == 0 && c.done != nil {
			close(c.done)
			c.done = nil
		}
	}
}

// Play queues the clip for playback and returns a channel closed once the
// whole clip has been handed to the device. Calling Play while another clip
// is still pending replaces that clip; the orchestrator serializes playback
// so this only happens after an Abort.
func (c *playbackClient) Play(_ context.Context, clip audio.Clip) (<-chan struct{}, error) {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()
	if device == nil {
		return nil, fmt.Errorf("device not initialized")
	}

	if !device.IsStarted() {
		if err := device.Start(); err != nil {
			return nil, fmt.Errorf("failed to start playback device: %w", err)
		}
	}

	done := make(chan struct{})

	c.audioMu.Lock()
	if c.done != nil {
		close(c.done)
	}
	c.pending = append([]byte(nil), clip.PCM...)
	c.done = done
	c.audioMu.Unlock()

	return done, nil
}

func (c *playbackClient) Abort() {
	c.audioMu.Lock()
	c.pending = nil
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.audioMu.Unlock()
}

func (c *playbackClient) Uninit() error {
	c.Abort()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	return nil
}
