package engine

import (
	"context"

	"github.com/voxvault/voxvault-core/core/audio"
	"github.com/voxvault/voxvault-core/vaultapi"
)

type EngineOption func(*ConversationEngine)

// SessionProvider yields a signed, single-use session endpoint from the
// external authorization collaborator.
type SessionProvider interface {
	SignedSessionURL(ctx context.Context) (string, error)
}

func WithSessionProvider(provider SessionProvider) EngineOption {
	return func(e *ConversationEngine) { e.sessions = provider }
}

// VaultService is the slice of the vault collaborator the tool dispatcher
// consumes. *vaultapi.Client satisfies it.
type VaultService interface {
	ListEntries(ctx context.Context) ([]vaultapi.Entry, error)
	CreateEntry(ctx context.Context, entry vaultapi.NewEntry) (*vaultapi.Entry, error)
	UpdateEntry(ctx context.Context, id string, entry vaultapi.NewEntry) (*vaultapi.Entry, error)
	DeleteEntry(ctx context.Context, id string) error
}

func WithVaultService(vault VaultService) EngineOption {
	return func(e *ConversationEngine) { e.vault = vault }
}

// AudioInput is a capture device streaming encoded frames from the default
// input.
type AudioInput interface {
	EncodingInfo() audio.EncodingInfo
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	Close()
}

// AudioInputFine is implemented by capture devices that support explicit
// start/stop controls instead of a blocking stream.
type AudioInputFine interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

func WithAudioInput(input AudioInput) EngineOption {
	return func(e *ConversationEngine) { e.micFeed.set(input) }
}

// AudioRenderer plays one persisted audio container to completion. Play
// returns once playback finishes, fails to load, or ctx is cancelled; Stop
// abandons an in-flight playback immediately.
type AudioRenderer interface {
	Play(ctx context.Context, path string) error
	Stop()
}

func WithAudioRenderer(renderer AudioRenderer) EngineOption {
	return func(e *ConversationEngine) { e.playback.renderer = renderer }
}
