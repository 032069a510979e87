package events

import "time"

// KindAvatarStartSpeak identifies the start of synthesized playback.
const KindAvatarStartSpeak Kind = "avatar.start_speak"

// AvatarStartSpeak marks the start of playback for a synthesized reply.
// Duration covers the whole clip so the pointing/animation collaborator can
// schedule gestures against it. TargetObject is the object the avatar should
// look and point at while speaking, empty when the reply names none.
type AvatarStartSpeak struct {
	Base
	Duration     time.Duration
	TargetObject string
}

// NewAvatarStartSpeak creates an avatar start speak event.
func NewAvatarStartSpeak(duration time.Duration, targetObject string) AvatarStartSpeak {
	return AvatarStartSpeak{Base: NewBase(KindAvatarStartSpeak), Duration: duration, TargetObject: targetObject}
}
