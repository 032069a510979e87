package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"

	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/embodiedlab/avatar-core/core/llms"
)

// Complete sends the materialized history to the chat completions endpoint
// and returns the parsed structured reply for the mode, together with the
// raw content.
func (c *Client) Complete(ctx context.Context, messages []llms.Message, mode llms.EmbodimentMode) (*llms.Response, error) {
	ctx, span := tracer.Start(ctx, "chat completion")
	defer span.End()

	reflector := jsonschema.Reflector{DoNotReference: true}
	outputSchema := llms.ReplySchema(mode)
	schema := reflector.Reflect(outputSchema)
	outputTypeName := reflect.TypeOf(outputSchema).Name()

	reqBody := requestBody{
		Model:    c.model,
		Messages: toMessages(messages),
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   outputTypeName,
				Schema: *schema,
				Strict: true,
			},
		},
	}

	span.SetAttributes(attribute.String("request.model", c.model))
	span.SetAttributes(attribute.String("request.mode", string(mode)))

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

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("error reading response body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var responseBody completionResponseBody
	if err := json.Unmarshal(respBodyBytes, &responseBody); err != nil {
		err = fmt.Errorf("error unmarshalling response: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(responseBody.Choices) == 0 {
		err := fmt.Errorf("response contains no choices")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	content := responseBody.Choices[0].Message.Content
	reply, err := llms.ParseReply(mode, content)
	if err != nil {
		err = fmt.Errorf("failed to parse structured reply: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &llms.Response{Reply: *reply, Raw: content}, nil
}

func toMessages(messages []llms.Message) []message {
	wire := make([]message, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, message{Role: string(m.Role), Content: encodeContent(m)})
	}
	return wire
}

// encodeContent folds the message's context payload into the content as a
// JSON object, so gaze and scene data travel inside the message itself.
func encodeContent(m llms.Message) string {
	if len(m.Payload) == 0 {
		return m.Content
	}

	enriched := map[string]any{"message": m.Content}
	for key, value := range m.Payload {
		enriched[key] = value
	}
	encoded, err := json.Marshal(enriched)
	if err != nil {
		return m.Content
	}
	return string(encoded)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestBody struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Schema      jsonschema.Schema `json:"schema"`
	Strict      bool              `json:"strict"`
}

type completionResponseBody struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"message"`
		FinishReason *string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
