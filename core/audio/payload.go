package audio

import "time"

// Payload is a finalized capture buffer. It is immutable once created: the
// capture stage hands out a copy of the accumulated bytes and disposes the
// live buffer.
type Payload struct {
	data     []byte
	encoding EncodingInfo
}

func NewPayload(data []byte, encoding EncodingInfo) Payload {
	owned := make([]byte, len(data))
	copy(owned, data)
	return Payload{data: owned, encoding: encoding}
}

func (p Payload) Bytes() []byte {
	data := make([]byte, len(p.data))
	copy(data, p.data)
	return data
}

func (p Payload) Len() int { return len(p.data) }

func (p Payload) EncodingInfo() EncodingInfo { return p.encoding }

// Duration derives the payload length in wall time from the encoding.
func (p Payload) Duration() time.Duration {
	byteSize := p.encoding.Format.ByteSize()
	if byteSize <= 0 || p.encoding.SampleRate <= 0 {
		return 0
	}
	samples := len(p.data) / byteSize
	return time.Duration(samples) * time.Second / time.Duration(p.encoding.SampleRate)
}

// Clip is synthesized speech ready for playback.
type Clip struct {
	PCM      []byte
	Encoding EncodingInfo
}

// Duration derives the playback length of the clip from its encoding.
func (c Clip) Duration() time.Duration {
	byteSize := c.Encoding.Format.ByteSize()
	if byteSize <= 0 || c.Encoding.SampleRate <= 0 {
		return 0
	}
	samples := len(c.PCM) / byteSize
	return time.Duration(samples) * time.Second / time.Duration(c.Encoding.SampleRate)
}
