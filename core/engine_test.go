package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voxvault/voxvault-core/core/audio"
	"github.com/voxvault/voxvault-core/vaultapi"
)

// agentServer is an in-process stand-in for the remote agent's signed
// session endpoint.
type agentServer struct {
	server   *httptest.Server
	upgrades atomic.Int32
	conns    chan *websocket.Conn
}

func newAgentServer(t *testing.T) *agentServer {
	t.Helper()
	s := &agentServer{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.upgrades.Add(1)
		s.conns <- conn
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *agentServer) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *agentServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a session connection")
		return nil
	}
}

type fakeSessions struct {
	url   string
	err   error
	calls atomic.Int32
}

func (f *fakeSessions) SignedSessionURL(context.Context) (string, error) {
	f.calls.Add(1)
	return f.url, f.err
}

type fakeRenderer struct {
	mu     sync.Mutex
	played [][]byte
	stops  int
}

func (r *fakeRenderer) Play(_ context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.played = append(r.played, data)
	r.mu.Unlock()
	return nil
}

func (r *fakeRenderer) Stop() {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()
}

func (r *fakeRenderer) playCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.played)
}

func (r *fakeRenderer) lastPlayed() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.played) == 0 {
		return nil
	}
	return r.played[len(r.played)-1]
}

type fakeInput struct {
	frames chan []byte
	closed atomic.Bool
}

func newFakeInput() *fakeInput {
	return &fakeInput{frames: make(chan []byte)}
}

func (f *fakeInput) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (f *fakeInput) Stream(ctx context.Context, onAudio func([]byte)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-f.frames:
			onAudio(frame)
		}
	}
}

func (f *fakeInput) Close() { f.closed.Store(true) }

type callbackRecorder struct {
	mu               sync.Mutex
	states           []ConversationState
	errors           []string
	userTranscripts  []string
	agentTranscripts []string
}

func (r *callbackRecorder) handlers() Handlers {
	return Handlers{
		OnStateChange: func(state ConversationState) {
			r.mu.Lock()
			r.states = append(r.states, state)
			r.mu.Unlock()
		},
		OnUserTranscript: func(transcript string) {
			r.mu.Lock()
			r.userTranscripts = append(r.userTranscripts, transcript)
			r.mu.Unlock()
		},
		OnAgentTranscript: func(transcript string) {
			r.mu.Lock()
			r.agentTranscripts = append(r.agentTranscripts, transcript)
			r.mu.Unlock()
		},
		OnError: func(message string) {
			r.mu.Lock()
			r.errors = append(r.errors, message)
			r.mu.Unlock()
		},
	}
}

func (r *callbackRecorder) sawState(state ConversationState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if s == state {
			return true
		}
	}
	return false
}

func (r *callbackRecorder) snapshot() ([]ConversationState, []string, []string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConversationState{}, r.states...),
		append([]string{}, r.errors...),
		append([]string{}, r.userTranscripts...),
		append([]string{}, r.agentTranscripts...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sendJSON(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("failed to write test message: %v", err)
	}
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read engine message: %v", err)
	}
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("engine sent invalid JSON %q: %v", data, err)
	}
	return msg
}

func TestStartConversationIsIdempotent(t *testing.T) {
	server := newAgentServer(t)
	sessions := &fakeSessions{url: server.url()}
	e := NewConversationEngine(WithSessionProvider(sessions))
	defer e.Close()

	e.StartConversation(context.Background())
	e.StartConversation(context.Background())
	server.accept(t)

	waitFor(t, "active transport", e.IsActive)
	time.Sleep(50 * time.Millisecond)

	if got := server.upgrades.Load(); got != 1 {
		t.Fatalf("expected exactly one websocket upgrade, got %d", got)
	}
	if got := sessions.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one signed-URL request, got %d", got)
	}
}

func TestStartFailureReportsThroughCallback(t *testing.T) {
	recorder := &callbackRecorder{}
	e := NewConversationEngine(WithSessionProvider(&fakeSessions{err: fmt.Errorf("not signed in")}))
	e.SetHandlers(recorder.handlers())
	defer e.Close()

	e.StartConversation(context.Background())

	_, errors, _, _ := recorder.snapshot()
	if len(errors) != 1 || !strings.Contains(errors[0], "not signed in") {
		t.Fatalf("expected one error mentioning the cause, got %v", errors)
	}
	if !recorder.sawState(StateDisconnected) {
		t.Fatalf("expected a transition to disconnected")
	}
	if e.IsActive() {
		t.Fatalf("engine must not report active after a failed start")
	}
}

func TestPingAnsweredWithMatchingEventID(t *testing.T) {
	server := newAgentServer(t)
	recorder := &callbackRecorder{}
	e := NewConversationEngine(WithSessionProvider(&fakeSessions{url: server.url()}))
	e.SetHandlers(recorder.handlers())
	defer e.Close()

	e.StartConversation(context.Background())
	conn := server.accept(t)

	sendJSON(t, conn, `{"type":"ping","ping_event":{"event_id":"42"}}`)
	reply := readJSON(t, conn)

	if string(reply["type"]) != `"pong"` {
		t.Fatalf("expected a pong, got %s", reply["type"])
	}
	if string(reply["event_id"]) != `"42"` {
		t.Fatalf("expected the event id echoed verbatim, got %s", reply["event_id"])
	}

	// Numeric ids are echoed in their numeric form.
	sendJSON(t, conn, `{"type":"ping","ping_event":{"event_id":7}}`)
	reply = readJSON(t, conn)
	if string(reply["event_id"]) != "7" {
		t.Fatalf("expected the numeric event id echoed verbatim, got %s", reply["event_id"])
	}

	// Exactly one pong per ping: nothing else is queued.
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected no further outbound messages after the pongs")
	}

	states, _, _, _ := recorder.snapshot()
	for _, state := range states {
		if state != StateConnecting {
			t.Fatalf("ping must not drive a state transition, saw %v", states)
		}
	}
}

func TestInitiationMetadataSetsFormatAndListening(t *testing.T) {
	server := newAgentServer(t)
	recorder := &callbackRecorder{}
	e := NewConversationEngine(WithSessionProvider(&fakeSessions{url: server.url()}))
	e.SetHandlers(recorder.handlers())
	defer e.Close()

	e.StartConversation(context.Background())
	conn := server.accept(t)

	sendJSON(t, conn, `{"type":"conversation_initiation_metadata",
		"conversation_initiation_metadata_event":{"agent_output_audio_format":"pcm_22050"}}`)

	waitFor(t, "listening state", func() bool { return e.State() == StateListening })
}

func TestUserTranscriptReachesCallback(t *testing.T) {
	server := newAgentServer(t)
	recorder := &callbackRecorder{}
	e := NewConversationEngine(WithSessionProvider(&fakeSessions{url: server.url()}))
	e.SetHandlers(recorder.handlers())
	defer e.Close()

	e.StartConversation(context.Background())
	conn := server.accept(t)

	sendJSON(t, conn, `{"type":"user_transcript",
		"user_transcription_event":{"user_transcript":"save my netflix password"}}`)

	waitFor(t, "user transcript", func() bool {
		_, _, user, _ := recorder.snapshot()
		return len(user) == 1 && user[0] == "save my netflix password"
	})
	waitFor(t, "user_speaking state", func() bool { return e.State() == StateUserSpeaking })
}

func TestInterruptionDiscardsBufferedAudio(t *testing.T) {
	server := newAgentServer(t)
	recorder := &callbackRecorder{}
	renderer := &fakeRenderer{}
	e := NewConversationEngine(
		WithSessionProvider(&fakeSessions{url: server.url()}),
		WithAudioRenderer(renderer),
	)
	e.SetHandlers(recorder.handlers())
	defer e.Close()

	e.StartConversation(context.Background())
	conn := server.accept(t)

	stale := base64.StdEncoding.EncodeToString([]byte("stale-turn-audio"))
	sendJSON(t, conn, `{"type":"conversation_initiation_metadata",
		"conversation_initiation_metadata_event":{"agent_output_audio_format":"pcm_16000"}}`)
	sendJSON(t, conn, fmt.Sprintf(`{"type":"audio","audio_event":{"audio_base_64":%q}}`, stale))
	sendJSON(t, conn, `{"type":"interruption","interruption_event":{"event_id":1}}`)
	sendJSON(t, conn, `{"type":"agent_response","agent_response_event":{"agent_response":"interrupted turn"}}`)

	waitFor(t, "listening after interruption", func() bool { return e.State() == StateListening })

	// The interrupted turn must never reach the renderer.
	time.Sleep(50 * time.Millisecond)
	if renderer.playCount() != 0 {
		t.Fatalf("expected no playback for the interrupted turn, got %d", renderer.playCount())
	}

	// The next turn plays normally and carries only its own audio.
	fresh := base64.StdEncoding.EncodeToString([]byte("fresh-turn-audio"))
	sendJSON(t, conn, fmt.Sprintf(`{"type":"audio","audio_event":{"audio_base_64":%q}}`, fresh))
	sendJSON(t, conn, `{"type":"agent_response","agent_response_event":{"agent_response":"fresh turn"}}`)

	waitFor(t, "fresh turn playback", func() bool { return renderer.playCount() == 1 })
	played := renderer.lastPlayed()
	if !bytes.Contains(played, []byte("fresh-turn-audio")) {
		t.Fatalf("expected the fresh turn's audio in the rendered file")
	}
	if bytes.Contains(played, []byte("stale-turn-audio")) {
		t.Fatalf("discarded audio leaked into the next turn")
	}
	if !bytes.HasPrefix(played, []byte("RIFF")) {
		t.Fatalf("PCM output must be wrapped in a WAV container")
	}

	waitFor(t, "listening after playback", func() bool { return e.State() == StateListening })
	_, _, _, agent := recorder.snapshot()
	if len(agent) != 2 || agent[0] != "interrupted turn" || agent[1] != "fresh turn" {
		t.Fatalf("unexpected agent transcripts: %v", agent)
	}
}

func TestToolCallRoundTripOverTheWire(t *testing.T) {
	server := newAgentServer(t)
	vault := &fakeVault{}
	entry, err := vaultapi.EncodeCredential(
		vaultapi.Credential{Service: "Netflix", Password: "hunter42"}, vaultapi.CategoryPassword)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := vault.CreateEntry(context.Background(), entry); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	e := NewConversationEngine(
		WithSessionProvider(&fakeSessions{url: server.url()}),
		WithVaultService(vault),
	)
	defer e.Close()

	e.StartConversation(context.Background())
	conn := server.accept(t)

	sendJSON(t, conn, `{"type":"client_tool_call",
		"client_tool_call":{"tool_name":"get_password","tool_call_id":"call-7",
		"parameters":{"service":"netflix"}}}`)

	reply := readJSON(t, conn)
	if string(reply["type"]) != `"client_tool_result"` {
		t.Fatalf("expected a client_tool_result, got %s", reply["type"])
	}
	if string(reply["tool_call_id"]) != `"call-7"` {
		t.Fatalf("expected the tool call id echoed, got %s", reply["tool_call_id"])
	}
	if string(reply["is_error"]) != "false" {
		t.Fatalf("tool results must not set the protocol error flag, got %s", reply["is_error"])
	}
	var result string
	if err := json.Unmarshal(reply["result"], &result); err != nil {
		t.Fatalf("result is not a string: %v", err)
	}
	if !strings.Contains(result, "hunter42") {
		t.Fatalf("expected the password in the result, got %q", result)
	}
}

func TestMicFramesForwardedAsAudioChunks(t *testing.T) {
	server := newAgentServer(t)
	input := newFakeInput()
	e := NewConversationEngine(
		WithSessionProvider(&fakeSessions{url: server.url()}),
		WithAudioInput(input),
	)
	defer e.Close()

	e.StartConversation(context.Background())
	conn := server.accept(t)

	select {
	case input.frames <- []byte("captured-pcm"):
	case <-time.After(2 * time.Second):
		t.Fatalf("capture stream never started")
	}

	msg := readJSON(t, conn)
	var encoded string
	if err := json.Unmarshal(msg["user_audio_chunk"], &encoded); err != nil {
		t.Fatalf("expected a user_audio_chunk message, got %v", msg)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("chunk is not valid base64: %v", err)
	}
	if !bytes.Equal(decoded, []byte("captured-pcm")) {
		t.Fatalf("expected the captured frame verbatim, got %q", decoded)
	}
}

func TestRemoteCloseTearsDownSession(t *testing.T) {
	server := newAgentServer(t)
	recorder := &callbackRecorder{}
	input := newFakeInput()
	e := NewConversationEngine(
		WithSessionProvider(&fakeSessions{url: server.url()}),
		WithAudioInput(input),
	)
	e.SetHandlers(recorder.handlers())
	defer e.Close()

	e.StartConversation(context.Background())
	conn := server.accept(t)
	waitFor(t, "active transport", e.IsActive)

	conn.Close()

	waitFor(t, "disconnected state", func() bool { return e.State() == StateDisconnected })
	if e.IsActive() {
		t.Fatalf("engine must not report active after remote close")
	}
	waitFor(t, "capture stopped", func() bool { return !e.micFeed.capturing.Load() })
}

func TestStaleCloseFromPreviousSessionIsIgnored(t *testing.T) {
	server := newAgentServer(t)
	recorder := &callbackRecorder{}
	e := NewConversationEngine(WithSessionProvider(&fakeSessions{url: server.url()}))
	e.SetHandlers(recorder.handlers())
	defer e.Close()

	e.StartConversation(context.Background())
	server.accept(t)
	waitFor(t, "first session", e.IsActive)

	e.mu.Lock()
	first := e.transport
	e.mu.Unlock()

	e.StopConversation()
	e.StartConversation(context.Background())
	server.accept(t)
	waitFor(t, "second session", e.IsActive)

	// The first session's read loop can deliver its deferred close after the
	// restart; it must not tear down the session that replaced it.
	e.handleTransportClose(first)
	e.handleTransportError(first, fmt.Errorf("stale read error"))

	if !e.IsActive() {
		t.Fatalf("close callback from a previous transport tore down the new session")
	}
	if e.State() == StateDisconnected {
		t.Fatalf("expected the new session's state to survive, got %v", e.State())
	}
	_, errors, _, _ := recorder.snapshot()
	for _, message := range errors {
		if strings.Contains(message, "stale read error") {
			t.Fatalf("error callback fired for a previous transport: %q", message)
		}
	}
}

func TestStopConversationAllowsRestart(t *testing.T) {
	server := newAgentServer(t)
	sessions := &fakeSessions{url: server.url()}
	e := NewConversationEngine(WithSessionProvider(sessions))
	defer e.Close()

	e.StartConversation(context.Background())
	first := server.accept(t)
	waitFor(t, "active transport", e.IsActive)

	e.StopConversation()
	if e.IsActive() {
		t.Fatalf("engine must not report active after stop")
	}
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatalf("expected the first connection to be closed")
	}

	e.StartConversation(context.Background())
	server.accept(t)
	waitFor(t, "active transport after restart", e.IsActive)
	if got := server.upgrades.Load(); got != 2 {
		t.Fatalf("expected a second upgrade on restart, got %d", got)
	}
}

func TestStopConversationWhenIdleIsSafe(t *testing.T) {
	e := NewConversationEngine()
	e.StopConversation()
	e.StopConversation()
	if e.IsActive() {
		t.Fatalf("idle engine must not report active")
	}
}
