package audio

import (
	"encoding/binary"
	"fmt"
)

// WAVHeaderSize is the fixed size of the RIFF/WAVE header produced by
// [BuildWAV].
const WAVHeaderSize = 44

// BuildWAV wraps raw PCM samples in a self-contained RIFF/WAVE container
// declaring a mono 16-bit stream at the given sample rate. The payload is
// appended verbatim after the 44-byte header.
func BuildWAV(pcm []byte, sampleRate int) []byte {
	const channels = 1
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	out := make([]byte, WAVHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(out[22:24], channels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[WAVHeaderSize:], pcm)
	return out
}

// ParseWAV extracts the PCM payload and declared sample rate from a
// fixed-layout container as produced by [BuildWAV].
func ParseWAV(data []byte) (pcm []byte, sampleRate int, err error) {
	if len(data) < WAVHeaderSize {
		return nil, 0, fmt.Errorf("data too short for a WAV header: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE container")
	}
	return data[WAVHeaderSize:], int(binary.LittleEndian.Uint32(data[24:28])), nil
}
