package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/embodiedlab/avatar-core/core/audio"
	"github.com/embodiedlab/avatar-core/core/texttospeech"
)

const defaultURL = "https://api.openai.com/v1/audio/speech"

const (
	defaultModel = "tts-1"
	defaultVoice = "alloy"

	// The speech endpoint's PCM format is 24kHz signed 16-bit mono.
	pcmSampleRate = 24000
)

// SpeechClient converts answer text into a playable PCM clip.
type SpeechClient struct {
	apiKey     string
	model      string
	voice      string
	url        string
	httpClient *http.Client
}

type SpeechClientOption func(*SpeechClient)

func WithModel(model string) SpeechClientOption {
	return func(c *SpeechClient) { c.model = model }
}

func WithVoice(voice string) SpeechClientOption {
	return func(c *SpeechClient) { c.voice = voice }
}

func WithURL(url string) SpeechClientOption {
	return func(c *SpeechClient) { c.url = url }
}

func WithHTTPClient(httpClient *http.Client) SpeechClientOption {
	return func(c *SpeechClient) { c.httpClient = httpClient }
}

func NewSpeechClient(apiKey string, opts ...SpeechClientOption) *SpeechClient {
	client := &SpeechClient{
		apiKey:     apiKey,
		model:      defaultModel,
		voice:      defaultVoice,
		url:        defaultURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Synthesize converts text into a PCM clip ready for the playback device.
func (c *SpeechClient) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) (*audio.Clip, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()

	options := &texttospeech.SynthesisOptions{Voice: c.voice}
	for _, opt := range opts {
		opt(options)
	}

	reqBody := speechRequestBody{
		Model:          c.model,
		Input:          text,
		Voice:          options.Voice,
		ResponseFormat: "pcm",
	}

	span.SetAttributes(attribute.String("request.model", c.model))
	span.SetAttributes(attribute.String("request.voice", options.Voice))

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, readErr := io.ReadAll(resp.Body); readErr == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}

		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("error reading audio body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	clip := &audio.Clip{
		PCM:      pcm,
		Encoding: audio.EncodingInfo{SampleRate: pcmSampleRate, Format: audio.EncodingLinear16},
	}
	span.SetAttributes(attribute.Float64("response.clip_seconds", clip.Duration().Seconds()))
	return clip, nil
}

type speechRequestBody struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}
