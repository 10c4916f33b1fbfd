package audio

import (
	"encoding/base64"
	"strings"
)

// frameChunkSize must stay divisible by 3: encoding a chunk that is not a
// multiple of 3 bytes emits '=' padding, and padding in the middle of a
// concatenated stream produces invalid base64.
const frameChunkSize = 32766 // 3 * 10922

// EncodeFrame encodes a raw audio frame as standard base64, chunking the
// input so arbitrarily large frames never embed mid-stream padding.
func EncodeFrame(frame []byte) string {
	if len(frame) <= frameChunkSize {
		return base64.StdEncoding.EncodeToString(frame)
	}

	var builder strings.Builder
	builder.Grow(base64.StdEncoding.EncodedLen(len(frame)))
	for offset := 0; offset < len(frame); offset += frameChunkSize {
		end := min(offset+frameChunkSize, len(frame))
		builder.WriteString(base64.StdEncoding.EncodeToString(frame[offset:end]))
	}
	return builder.String()
}

// DecodeFrame decodes a base64 audio frame back into raw bytes. It is the
// exact inverse of [EncodeFrame] for arbitrary byte content, including
// lengths that are not a multiple of 3.
func DecodeFrame(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
