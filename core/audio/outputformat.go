package audio

import (
	"strconv"
	"strings"
)

// OutputFormat is the agent-declared output audio format negotiated during
// conversation initiation, e.g. "pcm_16000" or "mp3_44100_128".
type OutputFormat string

const DefaultOutputFormat OutputFormat = "pcm_16000"

// IsPCM reports whether the format is from the uncompressed PCM family and
// therefore needs a WAV header before a file-based renderer can load it.
// Anything else is treated as an already self-describing container.
func (f OutputFormat) IsPCM() bool {
	return strings.HasPrefix(string(f), "pcm")
}

// SampleRate extracts the declared sample rate. Formats that do not declare
// one (or declare garbage) fall back to the family default: 16 kHz for PCM,
// 44.1 kHz for compressed containers.
func (f OutputFormat) SampleRate() int {
	parts := strings.Split(string(f), "_")
	if len(parts) > 1 {
		if rate, err := strconv.Atoi(parts[1]); err == nil && rate > 0 {
			return rate
		}
	}
	if f.IsPCM() {
		return DefaultSampleRate
	}
	return 44100
}

// FileExtension returns the extension used when persisting one turn of
// synthesized audio to a temporary file.
func (f OutputFormat) FileExtension() string {
	if f.IsPCM() {
		return "wav"
	}
	return "mp3"
}
