package openai

import (
	"bytes"
	"encoding/binary"

	"github.com/embodiedlab/avatar-core/core/audio"
)

// encodeWAV wraps raw PCM in a minimal RIFF/WAVE header. The transcription
// endpoint needs a container; the capture stage delivers bare samples.
func encodeWAV(pcm []byte, encoding audio.EncodingInfo) []byte {
	sampleRate := encoding.SampleRate
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	bytesPerSample := encoding.Format.ByteSize()
	if bytesPerSample <= 0 {
		bytesPerSample = 2
	}

	const channels = 1
	byteRate := sampleRate * channels * bytesPerSample
	blockAlign := channels * bytesPerSample

	buffer := &bytes.Buffer{}
	buffer.WriteString("RIFF")
	binary.Write(buffer, binary.LittleEndian, uint32(36+len(pcm)))
	buffer.WriteString("WAVE")

	buffer.WriteString("fmt ")
	binary.Write(buffer, binary.LittleEndian, uint32(16))
	binary.Write(buffer, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buffer, binary.LittleEndian, uint16(channels))
	binary.Write(buffer, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buffer, binary.LittleEndian, uint32(byteRate))
	binary.Write(buffer, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buffer, binary.LittleEndian, uint16(bytesPerSample*8))

	buffer.WriteString("data")
	binary.Write(buffer, binary.LittleEndian, uint32(len(pcm)))
	buffer.Write(pcm)

	return buffer.Bytes()
}
