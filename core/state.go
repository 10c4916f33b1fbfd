package engine

// ConversationState is the engine's externally visible state. Transitions
// are driven exclusively by inbound protocol events or an explicit stop;
// there are no timer-driven transitions.
type ConversationState string

const (
	StateIdle          ConversationState = "idle"
	StateConnecting    ConversationState = "connecting"
	StateListening     ConversationState = "listening"
	StateUserSpeaking  ConversationState = "user_speaking"
	StateAgentSpeaking ConversationState = "agent_speaking"
	StateDisconnected  ConversationState = "disconnected"
)

// Handlers are the engine's only outputs to the presentation layer. They may
// be swapped at any time, before or after a conversation starts; nil fields
// are skipped.
type Handlers struct {
	OnStateChange     func(state ConversationState)
	OnUserTranscript  func(transcript string)
	OnAgentTranscript func(transcript string)
	OnError           func(message string)

	// OnVaultChanged fires after any vault mutation made on the agent's
	// behalf succeeds, so the presentation layer can refresh its view.
	OnVaultChanged func()
}
