package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/embodiedlab/avatar-core/core/audio"
	"github.com/embodiedlab/avatar-core/core/events"
	"github.com/embodiedlab/avatar-core/core/llms"
	"github.com/embodiedlab/avatar-core/core/speechtotext"
	"github.com/embodiedlab/avatar-core/core/texttospeech"
)

const (
	defaultTranscriptionTimeout = 10 * time.Second
	defaultGenerationTimeout    = 20 * time.Second
	defaultSynthesisTimeout     = 15 * time.Second
)

type stageTimeouts struct {
	transcription time.Duration
	generation    time.Duration
	synthesis     time.Duration
}

// Orchestrator drives the turn pipeline: capture, transcription, generation,
// synthesis, playback. At most one turn is processed at a time; beginning a
// new turn while one is in flight preempts it. Turn processing ends either
// in playback of the reply, in silent abandonment after preemption, or in
// the failure funnel.
type Orchestrator struct {
	transcription TranscriptionBackend
	generation    GenerationBackend
	synthesis     SynthesisBackend

	history *History
	scope   *cancellationScope
	capture *captureStage
	player  *speechPlayer

	mode     llms.EmbodimentMode
	language string
	voice    string
	timeouts stageTimeouts

	latencyLog        *LatencyLog
	notifier          FailureNotifier
	fallbackUtterance string
	contextProvider   ContextProvider

	emitter   eventEmitter
	callbacks orchestratorCallbacks

	mu          sync.Mutex
	state       State
	currentTurn *Turn
	closed      bool
}

func NewOrchestrator(ctx context.Context, opts ...OrchestratorOption) *Orchestrator {
	orchestrator := &Orchestrator{
		history: NewHistory("", 0),
		scope:   newCancellationScope(ctx),
		capture: newCaptureStage(nil),
		player:  newSpeechPlayer(nil),
		mode:    llms.ModeVoiceOnly,
		state:   StateIdle,
		timeouts: stageTimeouts{
			transcription: defaultTranscriptionTimeout,
			generation:    defaultGenerationTimeout,
			synthesis:     defaultSynthesisTimeout,
		},
	}

	for _, opt := range opts {
		opt(orchestrator)
	}

	orchestrator.emitter.subscribe(newCallbackEventEmitter(orchestrator.callbacks))

	return orchestrator
}

// State reports the orchestrator's position in the pipeline for the current
// turn, or StateIdle when no turn is in flight.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History exposes the conversation history for inspection.
func (o *Orchestrator) History() *History {
	return o.history
}

// Subscribe registers an observer for every event the orchestrator emits.
func (o *Orchestrator) Subscribe(observer func(events.Event)) {
	o.emitter.subscribe(observer)
}

// BeginTurn starts capturing a new turn. Any turn still in flight is
// preempted first: its session is cancelled, its pending work abandoned
// without touching history, and a preemption event is emitted on its
// behalf. Capture that cannot start fails the new turn immediately.
func (o *Orchestrator) BeginTurn(ctx context.Context) (string, error) {
	_, span := tracer.Start(ctx, "orchestration.BeginTurn")
	defer span.End()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", ErrSessionClosed
	}
	preempted := o.currentTurn

	session := o.scope.beginSession()
	turn := newTurn(session)
	o.currentTurn = turn
	o.state = StateCapturing
	o.mu.Unlock()

	span.SetAttributes(attribute.String("turn.id", turn.ID))

	if preempted != nil {
		logger.Info("preempting turn in flight", "preempted_turn_id", preempted.ID, "turn_id", turn.ID)
		o.emitter.emit(events.NewTurnPreempted(preempted.ID))
	}

	o.capture.abort()
	if err := o.capture.begin(session); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.finishTurn(turn, StateIdle)
		o.failTurn(session, turn, &StageFailure{Kind: FailureCaptureUnavailable, Err: err})
		return turn.ID, err
	}

	o.emitter.emit(events.NewTurnStarted(turn.ID))
	return turn.ID, nil
}

// EndTurn stops capture for the turn in flight and hands the recorded audio
// to the backend pipeline, which runs asynchronously. The thinking event is
// emitted unconditionally; whether the turn later completes, fails, or is
// preempted does not rescind it.
func (o *Orchestrator) EndTurn(ctx context.Context) error {
	_, span := tracer.Start(ctx, "orchestration.EndTurn")
	defer span.End()

	o.mu.Lock()
	turn := o.currentTurn
	o.mu.Unlock()

	payload, startedAt, err := o.capture.end()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if turn == nil {
		return ErrCaptureNotStarted
	}

	span.SetAttributes(
		attribute.String("turn.id", turn.ID),
		attribute.Float64("capture.duration_seconds", payload.Duration().Seconds()),
	)

	turn.StartedAt = startedAt

	o.mu.Lock()
	if o.currentTurn == turn {
		o.state = StateTranscribing
	}
	o.mu.Unlock()

	o.emitter.emit(events.NewTurnThinking(turn.ID))

	go o.processTurn(turn, payload)

	return nil
}

// Reset replaces the system prompt and clears the accumulated conversation.
// A turn in flight is preempted so no stale reply lands in the fresh
// conversation.
func (o *Orchestrator) Reset(systemPrompt string) {
	o.mu.Lock()
	preempted := o.currentTurn
	o.currentTurn = nil
	o.state = StateIdle
	o.mu.Unlock()

	o.scope.endSession(ErrPreempted)
	o.capture.abort()

	if preempted != nil {
		o.emitter.emit(events.NewTurnPreempted(preempted.ID))
	}

	o.history.Reset(systemPrompt)
	logger.Info("conversation reset")
}

// Close shuts the orchestrator down: the turn in flight is abandoned,
// playback is stopped and no further turns are accepted.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.currentTurn = nil
	o.state = StateIdle
	o.mu.Unlock()

	o.scope.endSession(ErrSessionClosed)
	o.capture.abort()
	o.player.abort()

	if err := o.latencyLog.Close(); err != nil {
		return fmt.Errorf("failed to close latency log: %w", err)
	}
	return nil
}

// processTurn runs the backend stages for one turn. Every step that mutates
// history, emits an event, or starts playback first checks that the turn's
// session is still the live one; a preempted turn falls out of the pipeline
// without a trace.
func (o *Orchestrator) processTurn(turn *Turn, payload audio.Payload) {
	session := turn.session
	ctx, span := tracer.Start(session, "orchestration.processTurn", trace.WithAttributes(
		attribute.String("turn.id", turn.ID),
	))
	defer span.End()

	transcript, failure := o.transcribe(ctx, turn, payload)
	if failure != nil {
		o.finishTurn(turn, StateIdle)
		o.failTurn(session, turn, failure)
		return
	}
	if !o.advance(turn, StateGenerating) {
		return
	}

	userMessage := o.buildUserMessage(ctx, transcript)
	o.history.Append(userMessage)
	o.emitter.emit(events.NewUserMessageSent(userMessage, turn.StartedAt))

	response, failure := o.generate(ctx, turn)
	if failure != nil {
		o.finishTurn(turn, StateIdle)
		o.failTurn(session, turn, failure)
		return
	}
	if !o.advance(turn, StateSynthesizing) {
		return
	}

	assistantMessage := llms.NewAssistantMessage(response.Reply.Answer)
	o.history.Append(assistantMessage)
	o.emitter.emit(events.NewAIResponseReceived(assistantMessage))

	clip, failure := o.synthesize(ctx, turn, response.Reply.Answer)
	if failure != nil {
		o.finishTurn(turn, StateIdle)
		o.failTurn(session, turn, failure)
		return
	}

	started, failure := o.speak(session, clip, response.Reply.TargetObject)
	if failure != nil {
		o.finishTurn(turn, StateIdle)
		o.failTurn(session, turn, failure)
		return
	}
	if !started {
		return
	}

	if err := o.latencyLog.Append(turn.Latency()); err != nil {
		logger.Warn("failed to append latency record", "error", err, "turn_id", turn.ID)
	}

	o.finishTurn(turn, StateIdle)
	o.emitter.emit(events.NewTurnCompleted(turn.ID))
	logger.Info("turn completed", "turn_id", turn.ID,
		"transcription_seconds", turn.latency.TranscriptionSeconds(),
		"generation_seconds", turn.latency.GenerationSeconds(),
		"synthesis_seconds", turn.latency.SynthesisSeconds(),
	)
}

// transcribe runs the transcription stage under its timeout. An empty
// transcript is a valid result, not a failure.
func (o *Orchestrator) transcribe(ctx context.Context, turn *Turn, payload audio.Payload) (string, *StageFailure) {
	stageCtx, cancel := stageContext(ctx, o.timeouts.transcription)
	defer cancel()

	stageCtx, span := tracer.Start(stageCtx, "orchestration.transcribe")
	defer span.End()

	if o.transcription == nil {
		err := fmt.Errorf("no transcription backend configured")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &StageFailure{Kind: FailureBackendError, Err: err}
	}

	started := time.Now()
	opts := []speechtotext.TranscriptionOption{speechtotext.WithEncodingInfo(payload.EncodingInfo())}
	if o.language != "" {
		opts = append(opts, speechtotext.WithLanguage(o.language))
	}

	transcript, err := o.transcription.Transcribe(stageCtx, payload, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", classifyStageError(stageCtx, turn.session, FailureTranscriptionTimeout, err)
	}

	turn.latency.record(latencyStageTranscription, time.Since(started))
	span.SetAttributes(attribute.Int("transcript.length", len(transcript)))
	return transcript, nil
}

// generate runs the generation stage under its timeout against the full
// materialized history.
func (o *Orchestrator) generate(ctx context.Context, turn *Turn) (*llms.Response, *StageFailure) {
	stageCtx, cancel := stageContext(ctx, o.timeouts.generation)
	defer cancel()

	stageCtx, span := tracer.Start(stageCtx, "orchestration.generate")
	defer span.End()

	if o.generation == nil {
		err := fmt.Errorf("no generation backend configured")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &StageFailure{Kind: FailureBackendError, Err: err}
	}

	started := time.Now()
	response, err := o.generation.Complete(stageCtx, o.history.Materialize(), o.mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, classifyStageError(stageCtx, turn.session, FailureGenerationTimeout, err)
	}

	turn.latency.record(latencyStageGeneration, time.Since(started))
	return response, nil
}

// synthesize runs the synthesis stage under its timeout.
func (o *Orchestrator) synthesize(ctx context.Context, turn *Turn, text string) (*audio.Clip, *StageFailure) {
	stageCtx, cancel := stageContext(ctx, o.timeouts.synthesis)
	defer cancel()

	stageCtx, span := tracer.Start(stageCtx, "orchestration.synthesize")
	defer span.End()

	if o.synthesis == nil {
		err := fmt.Errorf("no synthesis backend configured")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &StageFailure{Kind: FailureBackendError, Err: err}
	}

	started := time.Now()
	var opts []texttospeech.SynthesisOption
	if o.voice != "" {
		opts = append(opts, texttospeech.WithVoice(o.voice))
	}

	clip, err := o.synthesis.Synthesize(stageCtx, text, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, classifyStageError(stageCtx, turn.session, FailureSynthesisTimeout, err)
	}

	turn.latency.record(latencyStageSynthesis, time.Since(started))
	return clip, nil
}

// speak waits for the playback slot, checks the turn is still current and
// starts playback of the reply. A false return with no failure means the
// turn was preempted while waiting.
func (o *Orchestrator) speak(session context.Context, clip *audio.Clip, targetObject string) (bool, *StageFailure) {
	if err := o.player.awaitIdle(session); err != nil {
		// Preemption while queued for the playback slot.
		return false, nil
	}

	if !o.scope.isCurrent(session) {
		return false, nil
	}

	duration, err := o.player.play(session, *clip)
	if err != nil {
		return false, &StageFailure{Kind: FailureBackendError, Err: err}
	}

	o.emitter.emit(events.NewAvatarStartSpeak(duration, targetObject))
	return true, nil
}

// buildUserMessage wraps the transcript into a user message, attaching the
// ambient scene context when a provider is configured.
func (o *Orchestrator) buildUserMessage(ctx context.Context, transcript string) llms.Message {
	if o.contextProvider == nil {
		return llms.NewUserMessage(transcript, nil)
	}

	sceneContext, err := o.contextProvider.SceneContext(ctx)
	if err != nil {
		logger.Warn("failed to collect scene context", "error", err)
		return llms.NewUserMessage(transcript, nil)
	}
	return llms.NewUserMessage(transcript, sceneContext)
}

// advance moves the orchestrator to the next pipeline state if and only if
// the turn is still the current one. A false return means the turn was
// preempted and its goroutine should exit without side effects.
func (o *Orchestrator) advance(turn *Turn, next State) bool {
	if !o.scope.isCurrent(turn.session) {
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.currentTurn != turn {
		return false
	}
	o.state = next
	return true
}

// finishTurn clears the current turn if it is still this one.
func (o *Orchestrator) finishTurn(turn *Turn, next State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.currentTurn == turn {
		o.currentTurn = nil
		o.state = next
	}
}

// failTurn is the single funnel every non-preemption failure drains into:
// the partial latency row is persisted, the failed event is emitted, the
// notifier is told (without stage identity) and the fallback utterance is
// spoken. A turn preempted between the failure and this point is dropped
// silently after all.
func (o *Orchestrator) failTurn(session context.Context, turn *Turn, failure *StageFailure) {
	if failure == nil {
		return
	}
	if !sessionFailed(session) && !o.scope.isCurrent(session) {
		return
	}

	logger.Error("turn failed", "turn_id", turn.ID, "kind", string(failure.Kind), "error", failure.Err)

	if err := o.latencyLog.Append(turn.Latency()); err != nil {
		logger.Warn("failed to append latency record", "error", err, "turn_id", turn.ID)
	}

	o.emitter.emit(events.NewTurnFailed(turn.ID))

	if o.notifier != nil {
		o.notifier.NotifyFailure(context.WithoutCancel(session))
	}

	o.speakFallback(session)
}

// speakFallback synthesizes and plays the configured fallback phrase so a
// failed turn does not leave the participant facing a mute avatar. Best
// effort: a failure here is logged, never funneled again.
func (o *Orchestrator) speakFallback(session context.Context) {
	if o.fallbackUtterance == "" || o.synthesis == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(session), o.timeouts.synthesis)
	defer cancel()

	var opts []texttospeech.SynthesisOption
	if o.voice != "" {
		opts = append(opts, texttospeech.WithVoice(o.voice))
	}
	clip, err := o.synthesis.Synthesize(ctx, o.fallbackUtterance, opts...)
	if err != nil {
		logger.Warn("failed to synthesize fallback utterance", "error", err)
		return
	}

	if err := o.player.awaitIdle(ctx); err != nil {
		return
	}
	duration, err := o.player.play(ctx, *clip)
	if err != nil {
		logger.Warn("failed to play fallback utterance", "error", err)
		return
	}
	o.emitter.emit(events.NewAvatarStartSpeak(duration, ""))
}

// sessionFailed reports whether the session died for a reason other than
// preemption or shutdown, or is still alive. Failures raised on a live or
// timed-out session reach the funnel; preempted ones do not.
func sessionFailed(session context.Context) bool {
	cause := context.Cause(session)
	if cause == nil {
		return true
	}
	return cause != ErrPreempted && cause != ErrSessionClosed
}
