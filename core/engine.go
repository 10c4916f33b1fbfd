// Package engine implements the real-time voice-conversation engine: one
// duplex streaming session with a remote conversational-voice agent,
// microphone audio multiplexed out, synthesized speech multiplexed in, and
// agent-issued tool calls dispatched against a credential vault.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxvault/voxvault-core/core/audio"
	"github.com/voxvault/voxvault-core/core/protocol"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ConversationEngine owns at most one active session at a time. The
// connection handle and the in-flight playback are its exclusively owned
// resources and are released immediately on teardown so stale callbacks
// cannot act on a torn-down session.
type ConversationEngine struct {
	mu sync.Mutex

	handlers     Handlers
	state        ConversationState
	connecting   bool
	transport    *sessionTransport
	outputFormat audio.OutputFormat

	sessions SessionProvider
	vault    VaultService
	micFeed  *micFeed
	playback *playbackBuffer

	baseContext context.Context
}

func NewConversationEngine(opts ...EngineOption) *ConversationEngine {
	e := &ConversationEngine{
		state:        StateIdle,
		outputFormat: audio.DefaultOutputFormat,
		baseContext:  context.Background(),
	}
	e.micFeed = newMicFeed(e.forwardMicFrame, func(err error) {
		// The agent can still speak even if the user cannot; the session
		// survives a capture failure.
		e.reportError(fmt.Sprintf("Microphone error: %v", err))
	})
	e.playback = newPlaybackBuffer(e.playbackFinished)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetHandlers swaps the presentation-layer callbacks. It may be called at
// any time, before or after StartConversation.
func (e *ConversationEngine) SetHandlers(handlers Handlers) {
	e.mu.Lock()
	e.handlers = handlers
	e.mu.Unlock()
}

// StartConversation requests a signed session endpoint and opens the
// transport. A second start while connecting or connected is a no-op.
// Failures are reported through the error callback and transition the
// engine to disconnected; the caller gets no error to handle.
func (e *ConversationEngine) StartConversation(ctx context.Context) {
	e.mu.Lock()
	if e.connecting || e.transport != nil {
		e.mu.Unlock()
		return
	}
	e.connecting = true
	e.baseContext = ctx
	e.mu.Unlock()

	ctx, span := tracer.Start(ctx, "start conversation")
	defer span.End()

	e.setState(StateConnecting)

	if e.sessions == nil {
		e.abortStart(span, fmt.Errorf("no session provider configured"))
		return
	}

	signedURL, err := e.sessions.SignedSessionURL(ctx)
	if err != nil {
		e.abortStart(span, fmt.Errorf("failed to get session endpoint: %w", err))
		return
	}

	transport, err := dialSession(ctx, signedURL, transportCallbacks{
		onMessage: e.handleMessage,
		onError:   e.handleTransportError,
		onClose:   e.handleTransportClose,
	})
	if err != nil {
		e.abortStart(span, err)
		return
	}

	e.mu.Lock()
	// The remote end may have closed during the handshake; never retain a
	// handle to an already-dead transport.
	if transport.IsOpen() {
		e.transport = transport
	}
	e.connecting = false
	open := e.transport == transport
	e.mu.Unlock()

	if !open {
		transport.Close()
		e.setState(StateDisconnected)
		return
	}

	// Transport is open: begin streaming the microphone. A capture failure
	// is reported but does not close the session.
	e.micFeed.Start(e.baseContext)
	if !e.IsActive() {
		// The session died while the feed was coming up.
		e.micFeed.Stop()
	}
}

func (e *ConversationEngine) abortStart(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	e.mu.Lock()
	e.connecting = false
	e.mu.Unlock()

	e.reportError(err.Error())
	e.setState(StateDisconnected)
}

// StopConversation unconditionally tears down capture, playback, and the
// transport, and resets per-session format and buffer state. Safe to call
// when idle.
func (e *ConversationEngine) StopConversation() {
	e.mu.Lock()
	transport := e.transport
	active := transport != nil || e.connecting
	e.transport = nil
	e.connecting = false
	e.outputFormat = audio.DefaultOutputFormat
	e.mu.Unlock()

	e.micFeed.Stop()
	e.playback.Discard()
	transport.Close()
	if active {
		e.setState(StateDisconnected)
	}
}

// IsActive reports whether the engine currently holds an open transport.
func (e *ConversationEngine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport.IsOpen()
}

// State returns the current conversation state.
func (e *ConversationEngine) State() ConversationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Close releases the engine's audio device in addition to stopping any
// active session.
func (e *ConversationEngine) Close() {
	e.StopConversation()
	e.micFeed.Close()
}

// handleMessage runs on the transport's read loop, so messages are handled
// strictly in arrival order. Playback rendering happens on its own
// goroutine, keeping the loop free for tool calls and interruptions while
// audio renders.
func (e *ConversationEngine) handleMessage(from *sessionTransport, msg protocol.Inbound) {
	logger.Debug("session message", "type", string(msg.InboundKind()))

	switch msg := msg.(type) {
	case protocol.InitiationMetadata:
		if format := msg.Event.AgentOutputAudioFormat; format != "" {
			e.mu.Lock()
			e.outputFormat = audio.OutputFormat(format)
			e.mu.Unlock()
		}
		e.setState(StateListening)

	case protocol.UserTranscript:
		if handler := e.snapshotHandlers().OnUserTranscript; handler != nil {
			handler(msg.Event.UserTranscript)
		}
		e.setState(StateUserSpeaking)

	case protocol.Audio:
		frame, err := audio.DecodeFrame(msg.Event.AudioBase64)
		if err != nil {
			logger.Warn("dropping undecodable audio frame", "error", err)
			return
		}
		e.playback.Append(frame)
		e.setState(StateAgentSpeaking)

	case protocol.AgentResponse:
		if handler := e.snapshotHandlers().OnAgentTranscript; handler != nil {
			handler(msg.Event.AgentResponse)
		}
		e.mu.Lock()
		format := e.outputFormat
		e.mu.Unlock()
		e.playback.FlushAndPlay(e.baseContext, format)

	case protocol.ClientToolCall:
		result := e.executeVaultTool(e.baseContext, msg.Call.ToolName, msg.Call.Parameters)
		// Dispatcher failures travel as result text, never as a protocol
		// error flag. Replies go out on the transport the call came in on.
		if err := from.Send(protocol.NewClientToolResult(msg.Call.ToolCallID, result)); err != nil {
			logger.Warn("failed to send tool result", "error", err)
		}

	case protocol.Interruption:
		e.playback.Discard()
		e.setState(StateListening)

	case protocol.Ping:
		if err := from.Send(protocol.NewPong(msg.Event.EventID)); err != nil {
			logger.Warn("failed to send pong", "error", err)
		}
	}
}

// ownsTransport reports whether the given transport is the engine's current
// session. Read loops outlive sessions: a callback from any other transport
// is stale and must not act on the engine.
func (e *ConversationEngine) ownsTransport(from *sessionTransport) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport == from
}

func (e *ConversationEngine) handleTransportError(from *sessionTransport, err error) {
	if !e.ownsTransport(from) {
		return
	}
	e.reportError(fmt.Sprintf("Connection error: %v", err))
}

func (e *ConversationEngine) handleTransportClose(from *sessionTransport) {
	e.mu.Lock()
	if e.transport != from {
		e.mu.Unlock()
		return
	}
	e.transport = nil
	e.connecting = false
	e.mu.Unlock()

	e.micFeed.Stop()
	e.playback.Discard()
	e.setState(StateDisconnected)
}

// forwardMicFrame ships one captured frame to the agent. Frames arriving
// while the transport is not open are dropped: this is a live stream, not a
// durable channel.
func (e *ConversationEngine) forwardMicFrame(frame []byte) {
	e.mu.Lock()
	transport := e.transport
	e.mu.Unlock()

	if !transport.IsOpen() {
		return
	}
	if err := transport.Send(protocol.UserAudioChunk{UserAudioChunk: audio.EncodeFrame(frame)}); err != nil {
		logger.Debug("dropping mic frame", "error", err)
	}
}

// playbackFinished returns the engine to listening after a turn's audio
// completes or fails to load. A stale completion after teardown must not
// revive a disconnected session.
func (e *ConversationEngine) playbackFinished() {
	if !e.IsActive() {
		return
	}
	e.setState(StateListening)
}

func (e *ConversationEngine) setState(state ConversationState) {
	e.mu.Lock()
	if e.state == state {
		e.mu.Unlock()
		return
	}
	e.state = state
	handler := e.handlers.OnStateChange
	e.mu.Unlock()

	if handler != nil {
		handler(state)
	}
}

func (e *ConversationEngine) reportError(message string) {
	if handler := e.snapshotHandlers().OnError; handler != nil {
		handler(message)
	}
}

func (e *ConversationEngine) notifyVaultChanged() {
	if handler := e.snapshotHandlers().OnVaultChanged; handler != nil {
		handler()
	}
}

func (e *ConversationEngine) snapshotHandlers() Handlers {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handlers
}
