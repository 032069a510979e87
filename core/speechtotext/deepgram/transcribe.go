package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/rest/interfaces"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/embodiedlab/avatar-core/core/audio"
	"github.com/embodiedlab/avatar-core/core/speechtotext"
)

const listenURL = "https://api.deepgram.com/v1/listen"

const defaultModel = "nova-3"

// TranscriptionClient sends finished capture payloads to the Deepgram
// prerecorded endpoint. The raw PCM goes straight onto the wire; encoding
// and sample rate travel as query parameters.
type TranscriptionClient struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

type TranscriptionClientOption func(*TranscriptionClient)

func WithModel(model string) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.model = model }
}

func WithHTTPClient(httpClient *http.Client) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.httpClient = httpClient }
}

// NewTranscriptionClient reads DEEPGRAM_API_KEY when no key has been set
// through the environment by the caller.
func NewTranscriptionClient(apiKey string, opts ...TranscriptionClientOption) (*TranscriptionClient, error) {
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("DEEPGRAM_API_KEY"); !ok {
			return nil, fmt.Errorf("deepgram api key not found")
		}
	}

	client := &TranscriptionClient{
		apiKey:     apiKey,
		model:      defaultModel,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Transcribe submits the payload and returns the transcript of the first
// channel alternative. An empty transcript is a valid result.
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

	encoding := options.EncodingInfo
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}

	requestURL, _ := url.Parse(listenURL)
	queryParams := requestURL.Query()
	queryParams.Set("model", c.model)
	queryParams.Set("language", options.Language)
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("smart_format", "true")
	requestURL.RawQuery = queryParams.Encode()

	span.SetAttributes(attribute.String("request.model", c.model))
	span.SetAttributes(attribute.Int("request.payload_bytes", payload.Len()))

	req, err := http.NewRequestWithContext(ctx, "POST", requestURL.String(), bytes.NewReader(payload.Bytes()))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	req.Header.Set("Content-Type", "audio/raw")
	req.Header.Set("Authorization", "Token "+c.apiKey)

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

	var responseBody api.PreRecordedResponse
	if err := json.Unmarshal(respBodyBytes, &responseBody); err != nil {
		err = fmt.Errorf("error unmarshalling response: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if responseBody.Results == nil ||
		len(responseBody.Results.Channels) == 0 ||
		len(responseBody.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}

	return responseBody.Results.Channels[0].Alternatives[0].Transcript, nil
}
