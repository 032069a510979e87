package llms

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EmbodimentMode selects which structured fields the generation backend is
// asked for. The parse contract is uniform across modes: the reply either
// matches the mode's schema or the call fails.
type EmbodimentMode string

const (
	// ModeVoiceOnly expects only an answer sentence.
	ModeVoiceOnly EmbodimentMode = "voice_only"
	// ModeEmbodied additionally expects an object the avatar should gaze
	// and point at ("user" or "null" when there is none).
	ModeEmbodied EmbodimentMode = "embodied"
	// ModeHandOver additionally expects an object name and a flag telling
	// the avatar to confirm and hand the object over.
	ModeHandOver EmbodimentMode = "hand_over"
)

// Reply is the mode-independent view of a parsed structured answer.
type Reply struct {
	Answer          string
	TargetObject    string
	ConfirmHandOver bool
}

// Response pairs the parsed reply with the raw backend content that produced
// it. The raw content is what gets appended to history as the assistant
// message.
type Response struct {
	Reply Reply
	Raw   string
}

type voiceOnlyReply struct {
	Answer string `json:"answer"`
}

type embodiedReply struct {
	Answer                string `json:"answer"`
	GazeAndPointingObject string `json:"gaze_and_pointing_object"`
}

type handOverReply struct {
	Answer          string `json:"answer"`
	ObjectName      string `json:"object_name"`
	ConfirmHandOver bool   `json:"confirm_and_hand_over"`
}

// ReplySchema returns a zero value of the wire struct for the mode, suitable
// for JSON schema reflection.
func ReplySchema(mode EmbodimentMode) any {
	switch mode {
	case ModeEmbodied:
		return embodiedReply{}
	case ModeHandOver:
		return handOverReply{}
	default:
		return voiceOnlyReply{}
	}
}

// ParseReply decodes the backend content against the mode's schema. A reply
// that does not decode, or decodes without an answer, is an error; callers
// treat that as a backend failure.
func ParseReply(mode EmbodimentMode, content string) (*Reply, error) {
	// Some backends wrap JSON output in a code fence despite instructions.
	if split := strings.Split(content, "```"); len(split) > 1 {
		content = split[1]
		content = strings.TrimPrefix(content, "json")
	}

	var reply Reply
	switch mode {
	case ModeEmbodied:
		var wire embodiedReply
		if err := json.Unmarshal([]byte(content), &wire); err != nil {
			return nil, fmt.Errorf("malformed embodied reply: %w", err)
		}
		reply = Reply{Answer: wire.Answer, TargetObject: normalizeObject(wire.GazeAndPointingObject)}
	case ModeHandOver:
		var wire handOverReply
		if err := json.Unmarshal([]byte(content), &wire); err != nil {
			return nil, fmt.Errorf("malformed hand-over reply: %w", err)
		}
		reply = Reply{
			Answer:          wire.Answer,
			TargetObject:    normalizeObject(wire.ObjectName),
			ConfirmHandOver: wire.ConfirmHandOver,
		}
	default:
		var wire voiceOnlyReply
		if err := json.Unmarshal([]byte(content), &wire); err != nil {
			return nil, fmt.Errorf("malformed voice-only reply: %w", err)
		}
		reply = Reply{Answer: wire.Answer}
	}

	if reply.Answer == "" {
		return nil, fmt.Errorf("reply is missing an answer")
	}
	return &reply, nil
}

// normalizeObject folds the backend's "no object" spellings into the empty
// string.
func normalizeObject(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "null", "none":
		return ""
	}
	return strings.TrimSpace(name)
}
