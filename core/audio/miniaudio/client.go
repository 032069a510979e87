package miniaudio

import (
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/embodiedlab/avatar-core/core/audio"
)

// Client owns one miniaudio context with a capture and a playback device
// hanging off it. The orchestrator uses the two halves through the
// audio.CaptureDevice and audio.PlaybackDevice contracts.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	capture  captureClient
	playback playbackClient
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {},
	)
	if err != nil {
		return nil, fmt.Errorf("miniaudio context initialization failed: %w", err)
	}

	client := Client{audioContext: audioCtx}

	if err := client.capture.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	if err := client.playback.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	return &client, nil
}

func (c *Client) Capture() audio.CaptureDevice   { return &c.capture }
func (c *Client) Playback() audio.PlaybackDevice { return &c.playback }

func (c *Client) Close() error {
	_ = c.capture.Uninit()
	_ = c.playback.Uninit()

	if c.audioContext != nil {
		if err := c.audioContext.Uninit(); err != nil {
			return fmt.Errorf("failed to uninitialize miniaudio context: %w", err)
		}
		c.audioContext.Free()
		c.audioContext = nil
	}
	return nil
}
