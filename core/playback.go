package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/voxvault/voxvault-core/core/audio"
)

// playbackBuffer accumulates one agent turn's synthesized-audio chunks and
// renders them exactly once per turn. At most one render is in flight; the
// render goroutine owns its temp file and removes it when done.
type playbackBuffer struct {
	mu sync.Mutex

	chunks  [][]byte
	current *activeRender

	renderer AudioRenderer
	// onFinished fires after a render completes, fails to load, or is
	// skipped because the buffer was empty. Render failures stay out of the
	// error callback: the conversation continues regardless.
	onFinished func()
}

// activeRender tracks one in-flight render. A render preempted by its
// successor turn is marked superseded so it finishes silently: the successor
// owns the completion signal from that point on.
type activeRender struct {
	cancel     context.CancelFunc
	superseded bool
}

func newPlaybackBuffer(onFinished func()) *playbackBuffer {
	if onFinished == nil {
		onFinished = func() {}
	}
	return &playbackBuffer{onFinished: onFinished}
}

// Append adds one decoded frame to the current turn's accumulation.
func (p *playbackBuffer) Append(chunk []byte) {
	p.mu.Lock()
	p.chunks = append(p.chunks, chunk)
	p.mu.Unlock()
}

// FlushAndPlay assembles the accumulated chunks into a playable container,
// persists it to a uniquely named temporary file, and renders it on its own
// goroutine. An empty accumulation is a no-op, not an error.
func (p *playbackBuffer) FlushAndPlay(ctx context.Context, format audio.OutputFormat) {
	p.mu.Lock()
	chunks := p.chunks
	p.chunks = nil

	if len(chunks) == 0 {
		p.mu.Unlock()
		p.onFinished()
		return
	}

	// A new turn preempts whatever is still rendering.
	p.stopLocked(true)

	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	combined := make([]byte, 0, total)
	for _, chunk := range chunks {
		combined = append(combined, chunk...)
	}

	// PCM needs a WAV header before a file renderer can load it; anything
	// else is already a self-describing container and is used verbatim.
	data := combined
	if format.IsPCM() {
		data = audio.BuildWAV(combined, format.SampleRate())
	}

	path := filepath.Join(os.TempDir(),
		fmt.Sprintf("agent_turn_%s.%s", uuid.NewString(), format.FileExtension()))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		p.mu.Unlock()
		log.Printf("Failed to persist agent turn audio: %v", err)
		p.onFinished()
		return
	}

	renderer := p.renderer
	renderCtx, cancel := context.WithCancel(ctx)
	handle := &activeRender{cancel: cancel}
	p.current = handle
	p.mu.Unlock()

	go func() {
		defer os.Remove(path)
		defer cancel()

		if renderer == nil {
			log.Println("No audio renderer configured, skipping agent turn playback")
		} else if err := renderer.Play(renderCtx, path); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Agent turn playback failed: %v", err)
		}

		p.mu.Lock()
		superseded := handle.superseded
		if p.current == handle {
			p.current = nil
		}
		p.mu.Unlock()

		if !superseded {
			p.onFinished()
		}
	}()
}

// Discard drops unflushed accumulated audio and abandons any in-progress
// render without waiting for it to finish. Used on barge-in and shutdown.
func (p *playbackBuffer) Discard() {
	p.mu.Lock()
	p.chunks = nil
	p.stopLocked(false)
	p.mu.Unlock()
}

// stopLocked abandons the in-flight render, if any. When superseded, the
// abandoned render skips its completion signal; the caller's own render will
// provide one.
func (p *playbackBuffer) stopLocked(superseded bool) {
	if p.current != nil {
		if superseded {
			p.current.superseded = true
		}
		p.current.cancel()
		p.current = nil
	}
	if p.renderer != nil {
		p.renderer.Stop()
	}
}
