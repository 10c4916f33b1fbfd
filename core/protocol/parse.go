package protocol

import (
	"encoding/json"
	"fmt"
)

// Parse decodes one inbound wire message into its typed variant. A payload
// whose type discriminator is not recognized parses into [Unknown]; only a
// payload that is not valid JSON at all is an error.
func Parse(data []byte) (Inbound, error) {
	var envelope struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message envelope: %w", err)
	}

	switch envelope.Type {
	case KindInitiationMetadata:
		return parseAs[InitiationMetadata](data)
	case KindUserTranscript:
		return parseAs[UserTranscript](data)
	case KindAudio:
		return parseAs[Audio](data)
	case KindAgentResponse:
		return parseAs[AgentResponse](data)
	case KindClientToolCall:
		return parseAs[ClientToolCall](data)
	case KindInterruption:
		return parseAs[Interruption](data)
	case KindPing:
		return parseAs[Ping](data)
	}

	return Unknown{Type: string(envelope.Type)}, nil
}

func parseAs[T Inbound](data []byte) (Inbound, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %q message: %w", msg.InboundKind(), err)
	}
	return msg, nil
}
