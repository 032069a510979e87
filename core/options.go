package orchestration

import (
	"context"
	"time"

	"github.com/embodiedlab/avatar-core/core/audio"
	"github.com/embodiedlab/avatar-core/core/events"
	"github.com/embodiedlab/avatar-core/core/llms"
	"github.com/embodiedlab/avatar-core/core/speechtotext"
	"github.com/embodiedlab/avatar-core/core/texttospeech"
)

type OrchestratorOption func(*Orchestrator)

type TranscriptionBackend interface {
	Transcribe(ctx context.Context, payload audio.Payload, opts ...speechtotext.TranscriptionOption) (string, error)
}

func WithTranscriptionBackend(client TranscriptionBackend) OrchestratorOption {
	return func(o *Orchestrator) { o.transcription = client }
}

type GenerationBackend interface {
	Complete(ctx context.Context, messages []llms.Message, mode llms.EmbodimentMode) (*llms.Response, error)
}

func WithGenerationBackend(client GenerationBackend) OrchestratorOption {
	return func(o *Orchestrator) { o.generation = client }
}

type SynthesisBackend interface {
	Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) (*audio.Clip, error)
}

func WithSynthesisBackend(client SynthesisBackend) OrchestratorOption {
	return func(o *Orchestrator) { o.synthesis = client }
}

func WithCaptureDevice(device audio.CaptureDevice) OrchestratorOption {
	return func(o *Orchestrator) { o.capture.device = device }
}

func WithPlaybackDevice(device audio.PlaybackDevice) OrchestratorOption {
	return func(o *Orchestrator) { o.player.device = device }
}

// WithSystemPrompt sets the system message that anchors every materialized
// prompt. It survives trimming and Reset.
func WithSystemPrompt(prompt string) OrchestratorOption {
	return func(o *Orchestrator) { o.history.system = llms.NewSystemMessage(prompt) }
}

// WithHistoryCapacity bounds the number of retained non-system messages.
// Values below 1 are ignored.
func WithHistoryCapacity(capacity int) OrchestratorOption {
	return func(o *Orchestrator) {
		if capacity >= 1 {
			o.history.capacity = capacity
		}
	}
}

// WithEmbodimentMode selects the structured reply contract requested from
// the generation backend.
func WithEmbodimentMode(mode llms.EmbodimentMode) OrchestratorOption {
	return func(o *Orchestrator) { o.mode = mode }
}

func WithTranscriptionTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.timeouts.transcription = timeout
		}
	}
}

func WithGenerationTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.timeouts.generation = timeout
		}
	}
}

func WithSynthesisTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.timeouts.synthesis = timeout
		}
	}
}

// WithLanguage forwards a language hint to the transcription backend.
func WithLanguage(language string) OrchestratorOption {
	return func(o *Orchestrator) { o.language = language }
}

// WithVoice forwards a voice selection to the synthesis backend.
func WithVoice(voice string) OrchestratorOption {
	return func(o *Orchestrator) { o.voice = voice }
}

// WithLatencyLog records per-stage timings for every finished turn.
func WithLatencyLog(log *LatencyLog) OrchestratorOption {
	return func(o *Orchestrator) { o.latencyLog = log }
}

type FailureNotifier interface {
	NotifyFailure(ctx context.Context)
}

// WithFailureNotifier installs the single recovery path invoked whenever a
// turn fails. The notifier is never told which stage failed.
func WithFailureNotifier(notifier FailureNotifier) OrchestratorOption {
	return func(o *Orchestrator) { o.notifier = notifier }
}

// WithFallbackUtterance sets the phrase spoken through the synthesis and
// playback path after a turn fails. An empty phrase disables fallback
// speech.
func WithFallbackUtterance(text string) OrchestratorOption {
	return func(o *Orchestrator) { o.fallbackUtterance = text }
}

// ContextProvider contributes ambient scene context that is attached to the
// user message payload before generation.
type ContextProvider interface {
	SceneContext(ctx context.Context) (map[string]any, error)
}

func WithContextProvider(provider ContextProvider) OrchestratorOption {
	return func(o *Orchestrator) { o.contextProvider = provider }
}

func WithEventObserver(observer func(events.Event)) OrchestratorOption {
	return func(o *Orchestrator) { o.emitter.subscribe(observer) }
}

type orchestratorCallbacks struct {
	onTurnStarted        func(turnID string)
	onThinking           func()
	onUserMessageSent    func(message llms.Message, turnStart time.Time)
	onAIResponseReceived func(message llms.Message)
	onAvatarStartSpeak   func(durationSeconds float64)
	onTurnCompleted      func(turnID string)
	onProcessFailed      func()
}

func WithOnTurnStarted(callback func(turnID string)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onTurnStarted = callback }
}

func WithOnThinking(callback func()) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onThinking = callback }
}

func WithOnUserMessageSent(callback func(message llms.Message, turnStart time.Time)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onUserMessageSent = callback }
}

func WithOnAIResponseReceived(callback func(message llms.Message)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onAIResponseReceived = callback }
}

func WithOnAvatarStartSpeak(callback func(durationSeconds float64)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onAvatarStartSpeak = callback }
}

func WithOnTurnCompleted(callback func(turnID string)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onTurnCompleted = callback }
}

func WithOnProcessFailed(callback func()) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onProcessFailed = callback }
}
