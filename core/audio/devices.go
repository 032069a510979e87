package audio

import "context"

// CaptureDevice is a push-based microphone stream. StartStream delivers
// buffers to onBuffer until Stop is called; buffers are only valid for the
// duration of the callback.
type CaptureDevice interface {
	StartStream(ctx context.Context, onBuffer func(buffer []byte)) error
	Stop() error
	EncodingInfo() EncodingInfo
}

// PlaybackDevice plays one clip at a time. Play returns a channel that is
// closed once the clip has finished playing (or playback was aborted).
type PlaybackDevice interface {
	Play(ctx context.Context, clip Clip) (done <-chan struct{}, err error)
	Abort()
}
