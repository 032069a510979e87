package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/embodiedlab/avatar-core/core/audio"
)

func testClip(milliseconds int) audio.Clip {
	encoding := audio.GetDefaultEncodingInfo()
	bytesPerSecond := encoding.SampleRate * encoding.Format.ByteSize()
	return audio.Clip{
		PCM:      make([]byte, bytesPerSecond*milliseconds/1000),
		Encoding: encoding,
	}
}

func TestSpeechPlayerAwaitIdleReturnsImmediatelyWhenNothingPlays(t *testing.T) {
	player := newSpeechPlayer(&playbackDeviceStub{})

	if err := player.awaitIdle(context.Background()); err != nil {
		t.Fatalf("expected idle player to return immediately, got %v", err)
	}
}

func TestSpeechPlayerSerializesPlayback(t *testing.T) {
	device := &playbackDeviceStub{}
	player := newSpeechPlayer(device)

	if _, err := player.play(context.Background(), testClip(100)); err != nil {
		t.Fatalf("failed to start playback: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := player.awaitIdle(ctx); err == nil {
		t.Fatalf("expected wait to block while the first clip plays")
	}

	device.finish()

	if err := player.awaitIdle(context.Background()); err != nil {
		t.Fatalf("expected wait to succeed after the clip finished, got %v", err)
	}
	if _, err := player.play(context.Background(), testClip(100)); err != nil {
		t.Fatalf("failed to start second playback: %v", err)
	}
}

func TestSpeechPlayerAwaitIdleIsPreemptible(t *testing.T) {
	device := &playbackDeviceStub{}
	player := newSpeechPlayer(device)

	if _, err := player.play(context.Background(), testClip(100)); err != nil {
		t.Fatalf("failed to start playback: %v", err)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(ErrPreempted)

	if err := player.awaitIdle(ctx); err == nil {
		t.Fatalf("expected cancelled wait to return an error")
	}
}

func TestSpeechPlayerWithoutDeviceHoldsSlotForClipDuration(t *testing.T) {
	player := newSpeechPlayer(nil)

	duration, err := player.play(context.Background(), testClip(30))
	if err != nil {
		t.Fatalf("failed to start deviceless playback: %v", err)
	}
	if duration <= 0 {
		t.Fatalf("expected positive nominal duration, got %v", duration)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := player.awaitIdle(ctx); err == nil {
		t.Fatalf("expected slot to be occupied right after play")
	}

	if err := player.awaitIdle(context.Background()); err != nil {
		t.Fatalf("expected slot to free after the nominal duration, got %v", err)
	}
}
