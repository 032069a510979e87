// Command avatarcli is a terminal driver for the turn orchestrator: hold a
// conversation with the avatar over the local microphone and speakers, with
// an optional WebSocket bridge for a rendering frontend.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	orchestration "github.com/embodiedlab/avatar-core/core"
	"github.com/embodiedlab/avatar-core/core/audio/miniaudio"
	"github.com/embodiedlab/avatar-core/core/bridge"
	"github.com/embodiedlab/avatar-core/core/events"
	"github.com/embodiedlab/avatar-core/core/llms"
	llmopenai "github.com/embodiedlab/avatar-core/core/llms/openai"
	"github.com/embodiedlab/avatar-core/core/scene"
	sttdeepgram "github.com/embodiedlab/avatar-core/core/speechtotext/deepgram"
	sttopenai "github.com/embodiedlab/avatar-core/core/speechtotext/openai"
	ttsopenai "github.com/embodiedlab/avatar-core/core/texttospeech/openai"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	audioClient, err := miniaudio.NewClient()
	if err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer audioClient.Close()

	transcription, err := newTranscriptionBackend(cfg.Transcription)
	if err != nil {
		return err
	}
	generation := llmopenai.NewClient(
		apiKey(cfg.Generation, "OPENAI_API_KEY"),
		llmopenai.WithModel(cfg.Generation.Model),
	)
	synthesis := ttsopenai.NewSpeechClient(
		apiKey(cfg.Synthesis, "OPENAI_API_KEY"),
		ttsopenai.WithModel(cfg.Synthesis.Model),
	)

	registry := scene.NewRegistry()
	gaze := scene.NewGazeTracker(registry)

	eventStream := make(chan events.Event, 64)

	opts := []orchestration.OrchestratorOption{
		orchestration.WithSystemPrompt(cfg.SystemPrompt),
		orchestration.WithHistoryCapacity(cfg.HistoryCapacity),
		orchestration.WithEmbodimentMode(embodimentMode(cfg.Mode)),
		orchestration.WithLanguage(cfg.Language),
		orchestration.WithVoice(cfg.Synthesis.Voice),
		orchestration.WithTranscriptionBackend(transcription),
		orchestration.WithGenerationBackend(generation),
		orchestration.WithSynthesisBackend(synthesis),
		orchestration.WithCaptureDevice(audioClient.Capture()),
		orchestration.WithPlaybackDevice(audioClient.Playback()),
		orchestration.WithContextProvider(gaze),
		orchestration.WithFallbackUtterance(cfg.FallbackUtterance),
		orchestration.WithTranscriptionTimeout(cfg.Timeouts.transcription()),
		orchestration.WithGenerationTimeout(cfg.Timeouts.generation()),
		orchestration.WithSynthesisTimeout(cfg.Timeouts.synthesis()),
		orchestration.WithEventObserver(func(event events.Event) {
			select {
			case eventStream <- event:
			default:
			}
		}),
	}

	if cfg.LatencyLogPath != "" {
		file, err := os.Create(cfg.LatencyLogPath)
		if err != nil {
			return fmt.Errorf("failed to create latency log: %w", err)
		}
		latencyLog, err := orchestration.NewLatencyLog(file)
		if err != nil {
			return err
		}
		opts = append(opts, orchestration.WithLatencyLog(latencyLog))
	}

	orchestrator := orchestration.NewOrchestrator(context.Background(), opts...)
	defer orchestrator.Close()

	if cfg.BridgeAddr != "" {
		bridgeServer := bridge.NewServer(bridge.WithGazeTracker(gaze))
		orchestrator.Subscribe(bridgeServer.HandleEvent)
		defer bridgeServer.Close()
		go func() {
			if err := http.ListenAndServe(cfg.BridgeAddr, bridgeServer); err != nil {
				fmt.Fprintln(os.Stderr, "bridge server stopped:", err)
			}
		}()
	}

	program := tea.NewProgram(newModel(orchestrator, eventStream), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run UI: %w", err)
	}
	return nil
}

func newTranscriptionBackend(cfg backendConfig) (orchestration.TranscriptionBackend, error) {
	switch cfg.Provider {
	case "deepgram":
		client, err := sttdeepgram.NewTranscriptionClient(
			apiKey(cfg, "DEEPGRAM_API_KEY"),
			sttdeepgram.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepgram client: %w", err)
		}
		return client, nil
	case "openai", "":
		return sttopenai.NewTranscriptionClient(
			apiKey(cfg, "OPENAI_API_KEY"),
			sttopenai.WithModel(cfg.Model),
		), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}

func apiKey(cfg backendConfig, envVar string) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	return os.Getenv(envVar)
}

func embodimentMode(mode string) llms.EmbodimentMode {
	switch mode {
	case "voice":
		return llms.ModeVoiceOnly
	case "handover":
		return llms.ModeHandOver
	default:
		return llms.ModeEmbodied
	}
}
