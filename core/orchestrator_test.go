package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/embodiedlab/avatar-core/core/audio"
	"github.com/embodiedlab/avatar-core/core/events"
	"github.com/embodiedlab/avatar-core/core/llms"
	"github.com/embodiedlab/avatar-core/core/speechtotext"
	"github.com/embodiedlab/avatar-core/core/texttospeech"
)

type captureDeviceStub struct {
	mu       sync.Mutex
	onBuffer func(buffer []byte)
	stops    int
	startErr error
}

func (s *captureDeviceStub) StartStream(_ context.Context, onBuffer func(buffer []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.onBuffer = onBuffer
	return nil
}

func (s *captureDeviceStub) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.onBuffer = nil
	return nil
}

func (s *captureDeviceStub) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (s *captureDeviceStub) feed(buffer []byte) {
	s.mu.Lock()
	onBuffer := s.onBuffer
	s.mu.Unlock()
	if onBuffer != nil {
		onBuffer(buffer)
	}
}

func (s *captureDeviceStub) stopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type playbackDeviceStub struct {
	mu      sync.Mutex
	pending []chan struct{}
	plays   int
}

func (s *playbackDeviceStub) Play(_ context.Context, _ audio.Clip) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := make(chan struct{})
	s.pending = append(s.pending, done)
	s.plays++
	return done, nil
}

func (s *playbackDeviceStub) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, done := range s.pending {
		close(done)
	}
	s.pending = nil
}

func (s *playbackDeviceStub) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return
	}
	close(s.pending[0])
	s.pending = s.pending[1:]
}

func (s *playbackDeviceStub) playCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

type transcriptionStub struct {
	mu         sync.Mutex
	transcript string
	err        error
	block      bool
	calls      int
}

func (s *transcriptionStub) Transcribe(ctx context.Context, _ audio.Payload, _ ...speechtotext.TranscriptionOption) (string, error) {
	s.mu.Lock()
	s.calls++
	transcript, err, block := s.transcript, s.err, s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return transcript, err
}

type generationStub struct {
	mu      sync.Mutex
	answer  string
	target  string
	err     error
	block   bool
	started chan struct{}
	seen    [][]llms.Message
}

func (s *generationStub) Complete(ctx context.Context, messages []llms.Message, _ llms.EmbodimentMode) (*llms.Response, error) {
	s.mu.Lock()
	s.seen = append(s.seen, messages)
	answer, target, err, block, started := s.answer, s.target, s.err, s.block, s.started
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &llms.Response{Reply: llms.Reply{Answer: answer, TargetObject: target}, Raw: answer}, nil
}

func (s *generationStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

type synthesisStub struct {
	mu    sync.Mutex
	err   error
	texts []string
}

func (s *synthesisStub) Synthesize(_ context.Context, text string, _ ...texttospeech.SynthesisOption) (*audio.Clip, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	err := s.err
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	clip := testClip(100)
	return &clip, nil
}

func (s *synthesisStub) synthesizedTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type notifierStub struct {
	mu    sync.Mutex
	calls int
}

func (s *notifierStub) NotifyFailure(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
}

func (s *notifierStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]events.Kind, len(r.events))
	for i, event := range r.events {
		kinds[i] = event.Kind()
	}
	return kinds
}

func (r *eventRecorder) count(kind events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, event := range r.events {
		if event.Kind() == kind {
			count++
		}
	}
	return count
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

type testHarness struct {
	orchestrator  *Orchestrator
	capture       *captureDeviceStub
	playback      *playbackDeviceStub
	transcription *transcriptionStub
	generation    *generationStub
	synthesis     *synthesisStub
	notifier      *notifierStub
	recorder      *eventRecorder
}

func newTestHarness(t *testing.T, opts ...OrchestratorOption) *testHarness {
	t.Helper()

	harness := &testHarness{
		capture:       &captureDeviceStub{},
		playback:      &playbackDeviceStub{},
		transcription: &transcriptionStub{transcript: "hello there"},
		generation:    &generationStub{answer: "hi, how can I help?"},
		synthesis:     &synthesisStub{},
		notifier:      &notifierStub{},
		recorder:      &eventRecorder{},
	}

	allOpts := append([]OrchestratorOption{
		WithSystemPrompt("you are a test avatar"),
		WithCaptureDevice(harness.capture),
		WithPlaybackDevice(harness.playback),
		WithTranscriptionBackend(harness.transcription),
		WithGenerationBackend(harness.generation),
		WithSynthesisBackend(harness.synthesis),
		WithFailureNotifier(harness.notifier),
		WithEventObserver(harness.recorder.record),
	}, opts...)

	harness.orchestrator = NewOrchestrator(context.Background(), allOpts...)
	t.Cleanup(func() { harness.orchestrator.Close() })
	return harness
}

func (h *testHarness) runTurn(t *testing.T) string {
	t.Helper()

	turnID, err := h.orchestrator.BeginTurn(context.Background())
	if err != nil {
		t.Fatalf("failed to begin turn: %v", err)
	}
	h.capture.feed([]byte{1, 2, 3, 4})
	if err := h.orchestrator.EndTurn(context.Background()); err != nil {
		t.Fatalf("failed to end turn: %v", err)
	}
	return turnID
}

func TestTurnCompletesThroughFullPipeline(t *testing.T) {
	harness := newTestHarness(t)

	harness.runTurn(t)

	waitForCondition(t, 2*time.Second, "turn to complete", func() bool {
		return harness.recorder.count(events.KindTurnCompleted) == 1
	})

	expected := []events.Kind{
		events.KindTurnStarted,
		events.KindTurnThinking,
		events.KindUserMessageSent,
		events.KindAIResponseReceived,
		events.KindAvatarStartSpeak,
		events.KindTurnCompleted,
	}
	kinds := harness.recorder.kinds()
	if len(kinds) != len(expected) {
		t.Fatalf("expected events %v, got %v", expected, kinds)
	}
	for i, kind := range expected {
		if kinds[i] != kind {
			t.Fatalf("expected event %d to be %s, got %s", i, kind, kinds[i])
		}
	}

	messages := harness.orchestrator.History().Materialize()
	if len(messages) != 3 {
		t.Fatalf("expected system, user and assistant messages, got %d", len(messages))
	}
	if messages[1].Role != llms.RoleUser || messages[1].Content != "hello there" {
		t.Fatalf("expected transcribed user message, got %+v", messages[1])
	}
	if messages[2].Role != llms.RoleAssistant || messages[2].Content != "hi, how can I help?" {
		t.Fatalf("expected assistant reply, got %+v", messages[2])
	}

	if calls := harness.notifier.callCount(); calls != 0 {
		t.Fatalf("expected no failure notifications on success, got %d", calls)
	}
	if harness.orchestrator.State() != StateIdle {
		t.Fatalf("expected orchestrator to return to idle, got %s", harness.orchestrator.State())
	}
}

func TestEmptyTranscriptStillCompletesTurn(t *testing.T) {
	harness := newTestHarness(t)
	harness.transcription.transcript = ""

	harness.runTurn(t)

	waitForCondition(t, 2*time.Second, "turn to complete", func() bool {
		return harness.recorder.count(events.KindTurnCompleted) == 1
	})

	messages := harness.orchestrator.History().Materialize()
	if messages[1].Role != llms.RoleUser || messages[1].Content != "" {
		t.Fatalf("expected empty user message to be kept, got %+v", messages[1])
	}
	if calls := harness.notifier.callCount(); calls != 0 {
		t.Fatalf("expected empty transcript to not count as failure, got %d notifications", calls)
	}
}

func TestBargeInAbandonsInFlightTurnSilently(t *testing.T) {
	harness := newTestHarness(t)
	harness.generation.block = true
	harness.generation.started = make(chan struct{}, 1)

	firstTurnID := harness.runTurn(t)

	select {
	case <-harness.generation.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for generation to start")
	}

	harness.generation.mu.Lock()
	harness.generation.block = false
	harness.generation.mu.Unlock()

	secondTurnID, err := harness.orchestrator.BeginTurn(context.Background())
	if err != nil {
		t.Fatalf("failed to begin preempting turn: %v", err)
	}
	harness.capture.feed([]byte{5, 6, 7, 8})
	if err := harness.orchestrator.EndTurn(context.Background()); err != nil {
		t.Fatalf("failed to end preempting turn: %v", err)
	}

	waitForCondition(t, 2*time.Second, "preempting turn to complete", func() bool {
		return harness.recorder.count(events.KindTurnCompleted) == 1
	})

	harness.recorder.mu.Lock()
	defer harness.recorder.mu.Unlock()
	for _, event := range harness.recorder.events {
		switch typedEvent := event.(type) {
		case events.TurnPreempted:
			if typedEvent.TurnID != firstTurnID {
				t.Fatalf("expected preemption event for the first turn, got %s", typedEvent.TurnID)
			}
		case events.TurnCompleted:
			if typedEvent.TurnID != secondTurnID {
				t.Fatalf("expected only the second turn to complete, got %s", typedEvent.TurnID)
			}
		case events.TurnFailed:
			t.Fatalf("expected no failure events after barge-in, got one for %s", typedEvent.TurnID)
		}
	}

	// The abandoned turn appended its user message before generation was
	// preempted; its reply must never land.
	assistants := 0
	for _, event := range harness.recorder.events {
		if event.Kind() == events.KindAIResponseReceived {
			assistants++
		}
	}
	if assistants != 1 {
		t.Fatalf("expected exactly one assistant reply, got %d", assistants)
	}
}

func TestGenerationFailureFunnelsToNotifierOnce(t *testing.T) {
	harness := newTestHarness(t)
	harness.generation.err = fmt.Errorf("model rejected the request")

	turnID := harness.runTurn(t)

	waitForCondition(t, 2*time.Second, "failure notification", func() bool {
		return harness.notifier.callCount() == 1
	})

	waitForCondition(t, 2*time.Second, "turn failed event", func() bool {
		return harness.recorder.count(events.KindTurnFailed) == 1
	})

	harness.recorder.mu.Lock()
	var failedTurnID string
	for _, event := range harness.recorder.events {
		if failed, ok := event.(events.TurnFailed); ok {
			failedTurnID = failed.TurnID
		}
	}
	harness.recorder.mu.Unlock()
	if failedTurnID != turnID {
		t.Fatalf("expected failure event for turn %s, got %s", turnID, failedTurnID)
	}

	messages := harness.orchestrator.History().Materialize()
	last := messages[len(messages)-1]
	if last.Role != llms.RoleUser {
		t.Fatalf("expected history to end with the user message, got %+v", last)
	}
	if harness.recorder.count(events.KindAIResponseReceived) != 0 {
		t.Fatalf("expected no assistant reply after generation failure")
	}
}

func TestSynthesisFailureKeepsBothMessagesAndPlaysNothing(t *testing.T) {
	harness := newTestHarness(t)
	harness.synthesis.err = fmt.Errorf("voice backend unavailable")

	harness.runTurn(t)

	waitForCondition(t, 2*time.Second, "failure notification", func() bool {
		return harness.notifier.callCount() == 1
	})

	messages := harness.orchestrator.History().Materialize()
	if len(messages) != 3 {
		t.Fatalf("expected system, user and assistant messages to remain, got %d", len(messages))
	}
	if messages[2].Role != llms.RoleAssistant {
		t.Fatalf("expected assistant message to remain after synthesis failure, got %+v", messages[2])
	}
	if plays := harness.playback.playCalls(); plays != 0 {
		t.Fatalf("expected no audio to play after synthesis failure, got %d plays", plays)
	}
	if harness.recorder.count(events.KindAvatarStartSpeak) != 0 {
		t.Fatalf("expected no speak event after synthesis failure")
	}
}

func TestTranscriptionTimeoutLeavesHistoryUntouched(t *testing.T) {
	harness := newTestHarness(t, WithTranscriptionTimeout(30*time.Millisecond))
	harness.transcription.block = true

	harness.runTurn(t)

	waitForCondition(t, 2*time.Second, "failure notification", func() bool {
		return harness.notifier.callCount() == 1
	})

	if got := harness.orchestrator.History().Len(); got != 0 {
		t.Fatalf("expected no history entries after transcription timeout, got %d", got)
	}
	if harness.recorder.count(events.KindUserMessageSent) != 0 {
		t.Fatalf("expected no user message event after transcription timeout")
	}
	if calls := harness.generation.callCount(); calls != 0 {
		t.Fatalf("expected generation to never run, got %d calls", calls)
	}
}

func TestBeginTurnWithUnavailableCaptureFunnelsFailure(t *testing.T) {
	harness := newTestHarness(t)
	harness.capture.startErr = fmt.Errorf("device busy")

	_, err := harness.orchestrator.BeginTurn(context.Background())
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("expected ErrCaptureUnavailable, got %v", err)
	}

	waitForCondition(t, 2*time.Second, "failure notification", func() bool {
		return harness.notifier.callCount() == 1
	})

	if harness.recorder.count(events.KindTurnStarted) != 0 {
		t.Fatalf("expected no turn started event when capture cannot open")
	}
	if harness.recorder.count(events.KindTurnFailed) != 1 {
		t.Fatalf("expected one turn failed event")
	}
	if harness.orchestrator.State() != StateIdle {
		t.Fatalf("expected orchestrator back at idle, got %s", harness.orchestrator.State())
	}
}

func TestEndTurnWithoutBeginFails(t *testing.T) {
	harness := newTestHarness(t)

	if err := harness.orchestrator.EndTurn(context.Background()); !errors.Is(err, ErrCaptureNotStarted) {
		t.Fatalf("expected ErrCaptureNotStarted, got %v", err)
	}
}

func TestFallbackUtteranceSpokenAfterFailure(t *testing.T) {
	harness := newTestHarness(t, WithFallbackUtterance("sorry, something went wrong"))
	harness.generation.err = fmt.Errorf("model unavailable")

	harness.runTurn(t)

	waitForCondition(t, 2*time.Second, "fallback playback", func() bool {
		return harness.playback.playCalls() == 1
	})

	texts := harness.synthesis.synthesizedTexts()
	if len(texts) != 1 || texts[0] != "sorry, something went wrong" {
		t.Fatalf("expected fallback utterance to be synthesized, got %v", texts)
	}
}

func TestPlaybackOfConsecutiveTurnsIsSerialized(t *testing.T) {
	harness := newTestHarness(t)

	harness.runTurn(t)
	waitForCondition(t, 2*time.Second, "first turn to complete", func() bool {
		return harness.recorder.count(events.KindTurnCompleted) == 1
	})

	// First clip still playing; the second turn must queue behind it.
	harness.runTurn(t)
	waitForCondition(t, 2*time.Second, "second turn to reach playback wait", func() bool {
		return harness.recorder.count(events.KindAIResponseReceived) == 2
	})

	time.Sleep(50 * time.Millisecond)
	if plays := harness.playback.playCalls(); plays != 1 {
		t.Fatalf("expected second clip to wait for the first, got %d plays", plays)
	}

	harness.playback.finish()

	waitForCondition(t, 2*time.Second, "second turn to complete", func() bool {
		return harness.recorder.count(events.KindTurnCompleted) == 2
	})
	if plays := harness.playback.playCalls(); plays != 2 {
		t.Fatalf("expected both clips to play, got %d plays", plays)
	}
}

func TestResetClearsConversationAndPreemptsTurn(t *testing.T) {
	harness := newTestHarness(t)
	harness.generation.block = true
	harness.generation.started = make(chan struct{}, 1)

	harness.runTurn(t)
	select {
	case <-harness.generation.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for generation to start")
	}

	harness.orchestrator.Reset("fresh prompt")

	if got := harness.orchestrator.History().Len(); got != 0 {
		t.Fatalf("expected empty history after reset, got %d", got)
	}
	if got := harness.orchestrator.History().SystemMessage().Content; got != "fresh prompt" {
		t.Fatalf("expected new system prompt, got %q", got)
	}

	waitForCondition(t, 2*time.Second, "preemption event", func() bool {
		return harness.recorder.count(events.KindTurnPreempted) == 1
	})

	time.Sleep(50 * time.Millisecond)
	if harness.recorder.count(events.KindTurnFailed) != 0 {
		t.Fatalf("expected reset to abandon the turn silently")
	}
	if calls := harness.notifier.callCount(); calls != 0 {
		t.Fatalf("expected no failure notification after reset, got %d", calls)
	}
}

func TestOrchestratorRejectsTurnsAfterClose(t *testing.T) {
	harness := newTestHarness(t)

	if err := harness.orchestrator.Close(); err != nil {
		t.Fatalf("failed to close orchestrator: %v", err)
	}

	if _, err := harness.orchestrator.BeginTurn(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after close, got %v", err)
	}
}

func TestSceneContextAttachedToUserMessage(t *testing.T) {
	provider := contextProviderStub{payload: map[string]any{"current_gaze_object": "lamp"}}
	harness := newTestHarness(t, WithContextProvider(provider))

	harness.runTurn(t)

	waitForCondition(t, 2*time.Second, "turn to complete", func() bool {
		return harness.recorder.count(events.KindTurnCompleted) == 1
	})

	messages := harness.orchestrator.History().Materialize()
	if got := messages[1].Payload["current_gaze_object"]; got != "lamp" {
		t.Fatalf("expected scene context on the user message, got %v", messages[1].Payload)
	}
}

type contextProviderStub struct {
	payload map[string]any
}

func (s contextProviderStub) SceneContext(_ context.Context) (map[string]any, error) {
	return s.payload, nil
}
