package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/embodiedlab/avatar-core/core/audio"
	"github.com/embodiedlab/avatar-core/core/speechtotext"
)

const defaultURL = "https://api.openai.com/v1/audio/transcriptions"

const defaultModel = "whisper-1"

// TranscriptionClient uploads finished capture payloads to the Whisper
// transcription endpoint.
type TranscriptionClient struct {
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
}

type TranscriptionClientOption func(*TranscriptionClient)

func WithModel(model string) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.model = model }
}

func WithURL(url string) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.url = url }
}

func WithHTTPClient(httpClient *http.Client) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.httpClient = httpClient }
}

func NewTranscriptionClient(apiKey string, opts ...TranscriptionClientOption) *TranscriptionClient {
	client := &TranscriptionClient{
		apiKey:     apiKey,
		model:      defaultModel,
		url:        defaultURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Transcribe submits the payload and returns the transcript text. An empty
// transcript is a valid result, not an error.
func (c *TranscriptionClient) Transcribe(ctx context.Context, payload audio.Payload, opts ...speechtotext.TranscriptionOption) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe audio")
	defer span.End()

	options := &speechtotext.TranscriptionOptions{
		Language:     "en",
		EncodingInfo: payload.EncodingInfo(),
	}
	for _, opt := range opts {
		opt(options)
	}

	span.SetAttributes(attribute.String("request.model", c.model))
	span.SetAttributes(attribute.Int("request.payload_bytes", payload.Len()))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "capture.wav")
	if err != nil {
		err = fmt.Errorf("error creating form file: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if _, err := part.Write(encodeWAV(payload.Bytes(), options.EncodingInfo)); err != nil {
		err = fmt.Errorf("error writing audio payload: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	_ = writer.WriteField("model", c.model)
	_ = writer.WriteField("language", options.Language)
	if err := writer.Close(); err != nil {
		err = fmt.Errorf("error finalizing multipart body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, body)
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
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
		return "", err
	}

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("error reading response body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var responseBody struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBodyBytes, &responseBody); err != nil {
		err = fmt.Errorf("error unmarshalling response: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return responseBody.Text, nil
}
