package capture

import (
	"encoding/binary"
	"fmt"
)

// Wire format for one audio frame packet:
//
//	[Magic:4]["VXAF"][Version:1][IDLen:1][SessionID:IDLen]
//	[Channels:1][Sequence:4][SampleCount:2][PCM16 big-endian interleaved]
//
// SampleCount is per channel, so the payload carries
// SampleCount*Channels 16-bit samples.
const (
	wireMagic   = "VXAF"
	wireVersion = 1

	// Fixed-size portion after the session id.
	frameFixedSize = 4 + 1 + 1 + 1 + 4 + 2

	MaxSessionIDLen = 128
	MaxChannels     = 8
	MaxFrameSamples = 8192 // per channel
)

// FramePacket is a parsed network audio frame.
type FramePacket struct {
	SessionID   string
	Channels    int
	Seq         uint32
	SampleCount int     // per channel
	PCM         []int16 // interleaved
}

// ToFrame converts the packet's PCM payload to a float frame in [-1, 1].
func (p *FramePacket) ToFrame() *Frame {
	data := make([]float32, len(p.PCM))
	for i, s := range p.PCM {
		data[i] = float32(s) / 32768.0
	}

	return &Frame{
		Seq:      p.Seq,
		Channels: p.Channels,
		Data:     data,
	}
}

// EncodeFramePacket builds the wire representation of one audio frame.
// samples is interleaved PCM16 whose length must be a multiple of channels.
func EncodeFramePacket(sessionID string, channels int, seq uint32, samples []int16) ([]byte, error) {
	if sessionID == "" || len(sessionID) > MaxSessionIDLen {
		return nil, fmt.Errorf("session id length must be 1..%d, got %d", MaxSessionIDLen, len(sessionID))
	}

	if channels < 1 || channels > MaxChannels {
		return nil, fmt.Errorf("channels must be 1..%d, got %d", MaxChannels, channels)
	}

	if len(samples) == 0 || len(samples)%channels != 0 {
		return nil, fmt.Errorf("sample count %d is not a positive multiple of %d channels", len(samples), channels)
	}

	perChannel := len(samples) / channels
	if perChannel > MaxFrameSamples {
		return nil, fmt.Errorf("frame too large: %d samples per channel exceeds %d", perChannel, MaxFrameSamples)
	}

	buf := make([]byte, 0, frameFixedSize+len(sessionID)+len(samples)*2)
	buf = append(buf, wireMagic...)
	buf = append(buf, wireVersion, byte(len(sessionID)))
	buf = append(buf, sessionID...)
	buf = append(buf, byte(channels))
	buf = binary.BigEndian.AppendUint32(buf, seq)
	buf = binary.BigEndian.AppendUint16(buf, uint16(perChannel))
	for _, s := range samples {
		buf = binary.BigEndian.AppendUint16(buf, uint16(s))
	}

	return buf, nil
}

// ParseFramePacket parses and validates one wire frame.
func ParseFramePacket(data []byte) (*FramePacket, error) {
	if len(data) < frameFixedSize {
		return nil, fmt.Errorf("packet too short: expected at least %d bytes, got %d", frameFixedSize, len(data))
	}

	if string(data[:4]) != wireMagic {
		return nil, fmt.Errorf("bad magic %q", data[:4])
	}

	if data[4] != wireVersion {
		return nil, fmt.Errorf("unsupported version %d", data[4])
	}

	idLen := int(data[5])
	if idLen == 0 || idLen > MaxSessionIDLen {
		return nil, fmt.Errorf("session id length must be 1..%d, got %d", MaxSessionIDLen, idLen)
	}

	if len(data) < frameFixedSize+idLen {
		return nil, fmt.Errorf("packet truncated in session id")
	}

	off := 6
	sessionID := string(data[off : off+idLen])
	off += idLen

	channels := int(data[off])
	off++
	if channels < 1 || channels > MaxChannels {
		return nil, fmt.Errorf("channels must be 1..%d, got %d", MaxChannels, channels)
	}

	seq := binary.BigEndian.Uint32(data[off : off+4])
	off += 4

	sampleCount := int(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	if sampleCount == 0 || sampleCount > MaxFrameSamples {
		return nil, fmt.Errorf("sample count must be 1..%d, got %d", MaxFrameSamples, sampleCount)
	}

	payloadLen := sampleCount * channels * 2
	if len(data)-off < payloadLen {
		return nil, fmt.Errorf("payload truncated: expected %d bytes, got %d", payloadLen, len(data)-off)
	}

	pcm := make([]int16, sampleCount*channels)
	for i := range pcm {
		pcm[i] = int16(binary.BigEndian.Uint16(data[off+i*2 : off+i*2+2]))
	}

	return &FramePacket{
		SessionID:   sessionID,
		Channels:    channels,
		Seq:         seq,
		SampleCount: sampleCount,
		PCM:         pcm,
	}, nil
}
