package engine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/voxvault/voxvault-core/core/audio"
)

// micFeed normalizes capture behavior over the configured input device. It
// is a live stream: frames captured while the transport is closed are
// dropped, never queued.
type micFeed struct {
	input AudioInput
	// fine is set when the input device supports explicit capture controls.
	fine AudioInputFine

	// mu guards the cancel handoff between Start and Stop; capturing stays
	// atomic so forward can check it without taking the lock per frame.
	mu        sync.Mutex
	cancel    context.CancelFunc
	capturing atomic.Bool

	onFrame func(frame []byte)
	onError func(err error)
}

func newMicFeed(onFrame func(frame []byte), onError func(err error)) *micFeed {
	if onFrame == nil {
		onFrame = func([]byte) {}
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &micFeed{onFrame: onFrame, onError: onError}
}

func (m *micFeed) set(input AudioInput) {
	m.input = input
	m.fine = nil
	if fine, ok := input.(AudioInputFine); ok {
		m.fine = fine
	}
}

func (m *micFeed) EncodingInfo() audio.EncodingInfo {
	if m == nil || m.input == nil {
		return audio.GetDefaultEncodingInfo()
	}
	return m.input.EncodingInfo()
}

// Start begins forwarding captured frames. A start failure is reported
// through onError; the caller decides whether the session survives it.
func (m *micFeed) Start(ctx context.Context) {
	if m.input == nil {
		log.Println("No audio input configured, microphone feed disabled")
		return
	}

	m.mu.Lock()
	if m.capturing.Load() {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.capturing.Store(true)
	m.mu.Unlock()

	if m.fine != nil {
		if err := m.fine.StartCapture(ctx, m.forward); err != nil {
			m.reset()
			m.onError(err)
		}
		return
	}

	go func() {
		if err := m.input.Stream(ctx, m.forward); err != nil {
			m.reset()
			m.onError(err)
		}
	}()
}

// Stop is idempotent: stopping an already-stopped feed does nothing.
func (m *micFeed) Stop() {
	m.mu.Lock()
	if !m.capturing.Load() {
		m.mu.Unlock()
		return
	}
	m.capturing.Store(false)
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if m.fine != nil {
		if err := m.fine.StopCapture(); err != nil {
			log.Printf("Failed to stop audio capture: %v", err)
		}
	}
}

// reset tears down after a failed or errored capture without touching the
// device's stop controls.
func (m *micFeed) reset() {
	m.mu.Lock()
	m.capturing.Store(false)
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()
}

func (m *micFeed) Close() {
	m.Stop()
	if m.input != nil {
		m.input.Close()
	}
}

func (m *micFeed) forward(frame []byte) {
	if !m.capturing.Load() {
		return
	}
	m.onFrame(frame)
}
