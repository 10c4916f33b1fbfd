// Package protocol models the duplex JSON wire contract with the remote
// conversational-voice agent. Message type values and nested event field
// names are part of the external contract and must match the agent exactly.
package protocol

import (
	"encoding/json"
	"strconv"
)

type Kind string

const (
	// KindInitiationMetadata carries the negotiated output audio format.
	KindInitiationMetadata Kind = "conversation_initiation_metadata"
	// KindUserTranscript carries a finalized transcript of user speech.
	KindUserTranscript Kind = "user_transcript"
	// KindAudio carries one base64-encoded frame of synthesized speech.
	KindAudio Kind = "audio"
	// KindAgentResponse carries final agent text and closes one audio turn.
	KindAgentResponse Kind = "agent_response"
	// KindClientToolCall instructs the client to run a tool and report back.
	KindClientToolCall Kind = "client_tool_call"
	// KindInterruption signals user barge-in while agent audio is playing.
	KindInterruption Kind = "interruption"
	// KindPing is a keep-alive message that expects an echoing pong.
	KindPing Kind = "ping"

	KindClientToolResult Kind = "client_tool_result"
	KindPong             Kind = "pong"
)

// Inbound is a message received from the agent.
type Inbound interface {
	InboundKind() Kind
}

// EventID tolerates both string and numeric identifiers on the wire and
// echoes them back in whichever form they arrived.
type EventID struct {
	raw json.RawMessage
}

func NewEventID(id string) EventID {
	quoted, _ := json.Marshal(id)
	return EventID{raw: quoted}
}

func (id *EventID) UnmarshalJSON(data []byte) error {
	id.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (id EventID) MarshalJSON() ([]byte, error) {
	if len(id.raw) == 0 {
		return []byte(`""`), nil
	}
	return id.raw, nil
}

func (id EventID) String() string {
	if len(id.raw) == 0 {
		return ""
	}
	if unquoted, err := strconv.Unquote(string(id.raw)); err == nil {
		return unquoted
	}
	return string(id.raw)
}

type InitiationMetadata struct {
	Event struct {
		ConversationID         string `json:"conversation_id"`
		AgentOutputAudioFormat string `json:"agent_output_audio_format"`
		UserInputAudioFormat   string `json:"user_input_audio_format"`
	} `json:"conversation_initiation_metadata_event"`
}

func (InitiationMetadata) InboundKind() Kind { return KindInitiationMetadata }

type UserTranscript struct {
	Event struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event"`
}

func (UserTranscript) InboundKind() Kind { return KindUserTranscript }

type Audio struct {
	Event struct {
		AudioBase64 string  `json:"audio_base_64"`
		EventID     EventID `json:"event_id"`
	} `json:"audio_event"`
}

func (Audio) InboundKind() Kind { return KindAudio }

type AgentResponse struct {
	Event struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event"`
}

func (AgentResponse) InboundKind() Kind { return KindAgentResponse }

type ClientToolCall struct {
	Call struct {
		ToolName   string         `json:"tool_name"`
		ToolCallID string         `json:"tool_call_id"`
		Parameters map[string]any `json:"parameters"`
	} `json:"client_tool_call"`
}

func (ClientToolCall) InboundKind() Kind { return KindClientToolCall }

type Interruption struct {
	Event struct {
		EventID EventID `json:"event_id"`
	} `json:"interruption_event"`
}

func (Interruption) InboundKind() Kind { return KindInterruption }

type Ping struct {
	Event struct {
		EventID EventID `json:"event_id"`
		PingMs  int     `json:"ping_ms"`
	} `json:"ping_event"`
}

func (Ping) InboundKind() Kind { return KindPing }

// Unknown preserves the discriminator of a message kind this client does not
// handle. Unknown messages are logged and ignored, never treated as errors.
type Unknown struct {
	Type string
}

func (Unknown) InboundKind() Kind { return Kind("") }

// UserAudioChunk is the outbound microphone frame. The agent expects the
// bare key with no type discriminator.
type UserAudioChunk struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

type ClientToolResult struct {
	Type       Kind   `json:"type"`
	ToolCallID string `json:"tool_call_id"`
	Result     string `json:"result"`
	IsError    bool   `json:"is_error"`
}

func NewClientToolResult(toolCallID, result string) ClientToolResult {
	return ClientToolResult{
		Type:       KindClientToolResult,
		ToolCallID: toolCallID,
		Result:     result,
		IsError:    false,
	}
}

type Pong struct {
	Type    Kind    `json:"type"`
	EventID EventID `json:"event_id"`
}

func NewPong(eventID EventID) Pong {
	return Pong{Type: KindPong, EventID: eventID}
}
