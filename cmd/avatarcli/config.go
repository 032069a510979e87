package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type config struct {
	SystemPrompt      string        `mapstructure:"system_prompt"`
	Mode              string        `mapstructure:"mode"`
	Language          string        `mapstructure:"language"`
	HistoryCapacity   int           `mapstructure:"history_capacity"`
	FallbackUtterance string        `mapstructure:"fallback_utterance"`
	LatencyLogPath    string        `mapstructure:"latency_log_path"`
	BridgeAddr        string        `mapstructure:"bridge_addr"`
	Transcription     backendConfig `mapstructure:"transcription"`
	Generation        backendConfig `mapstructure:"generation"`
	Synthesis         backendConfig `mapstructure:"synthesis"`
	Timeouts          timeoutConfig `mapstructure:"timeouts"`
}

type backendConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	Voice    string `mapstructure:"voice"`
	APIKey   string `mapstructure:"api_key"`
}

type timeoutConfig struct {
	TranscriptionMS int `mapstructure:"transcription_ms"`
	GenerationMS    int `mapstructure:"generation_ms"`
	SynthesisMS     int `mapstructure:"synthesis_ms"`
}

func (t timeoutConfig) transcription() time.Duration {
	return time.Duration(t.TranscriptionMS) * time.Millisecond
}

func (t timeoutConfig) generation() time.Duration {
	return time.Duration(t.GenerationMS) * time.Millisecond
}

func (t timeoutConfig) synthesis() time.Duration {
	return time.Duration(t.SynthesisMS) * time.Millisecond
}

func loadConfig(path string) (config, error) {
	v := viper.New()
	v.SetEnvPrefix("avatar")
	v.AutomaticEnv()

	v.SetDefault("system_prompt", "You are a helpful embodied assistant in a shared virtual room.")
	v.SetDefault("mode", "embodied")
	v.SetDefault("language", "en")
	v.SetDefault("history_capacity", 20)
	v.SetDefault("fallback_utterance", "Sorry, I didn't catch that. Could you say it again?")
	v.SetDefault("bridge_addr", "")
	v.SetDefault("transcription.provider", "openai")
	v.SetDefault("transcription.model", "whisper-1")
	v.SetDefault("generation.provider", "openai")
	v.SetDefault("generation.model", "gpt-4o")
	v.SetDefault("synthesis.provider", "openai")
	v.SetDefault("synthesis.model", "tts-1")
	v.SetDefault("synthesis.voice", "alloy")
	v.SetDefault("timeouts.transcription_ms", 10000)
	v.SetDefault("timeouts.generation_ms", 20000)
	v.SetDefault("timeouts.synthesis_ms", 15000)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
