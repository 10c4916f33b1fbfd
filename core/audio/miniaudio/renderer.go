package miniaudio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/voxvault/voxvault-core/core/audio"
)

// Play renders one persisted agent turn to the playback device and returns
// when the device drains it. Only WAV containers are supported; compressed
// turns need an external decoder.
func (c *Client) Play(ctx context.Context, path string) error {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".wav" {
		return fmt.Errorf("unsupported audio container %q", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to load agent turn audio: %w", err)
	}
	pcm, sampleRate, err := audio.ParseWAV(data)
	if err != nil {
		return fmt.Errorf("failed to parse agent turn audio: %w", err)
	}

	if err := c.playbackClient.ensureSampleRate(sampleRate); err != nil {
		return err
	}
	if err := c.playbackClient.SendAudio(pcm); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		_ = c.playbackClient.AwaitMark()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// Clearing the buffer also releases the mark waiter.
		c.playbackClient.ClearBuffer()
		return ctx.Err()
	}
}

// Stop drops whatever is queued on the device without waiting for it.
func (c *Client) Stop() {
	c.playbackClient.ClearBuffer()
}
