package discord

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960

	// pcmFrameBytes is the s16le input size for one Opus frame:
	// 960 samples/channel × 2 channels × 2 bytes/sample = 3840 bytes.
	pcmFrameBytes = opusFrameSize * opusChannels * 2

	// maxOpusPacket bounds a single encoded packet.
	maxOpusPacket = 4000
)

// opusEncoder wraps a gopus Opus encoder for one playback.
type opusEncoder struct {
	enc *gopus.Encoder
	pcm []int16
}

func newOpusEncoder(bitrate int) (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus encoder: %w", err)
	}
	if bitrate > 0 {
		enc.SetBitrate(bitrate)
	}
	return &opusEncoder{enc: enc, pcm: make([]int16, opusFrameSize*opusChannels)}, nil
}

// encode encodes one frame of interleaved little-endian s16 PCM. frame must be
// exactly pcmFrameBytes long.
func (e *opusEncoder) encode(frame []byte) ([]byte, error) {
	for i := range e.pcm {
		e.pcm[i] = int16(binary.LittleEndian.Uint16(frame[i*2:]))
	}
	opus, err := e.enc.Encode(e.pcm, opusFrameSize, maxOpusPacket)
	if err != nil {
		return nil, fmt.Errorf("discord: opus encode: %w", err)
	}
	return opus, nil
}
