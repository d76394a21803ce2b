package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

// OpenAIModel talks to any OpenAI-compatible chat completions endpoint
type OpenAIModel struct {
	model  string
	client *openai.Client
}

// NewOpenAIModel creates an OpenAI-compatible client. The API key is required.
func NewOpenAIModel(cfg Config, opts ...Option) (*OpenAIModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	o := buildOptions(cfg.Timeout, opts)

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientCfg.HTTPClient = o.httpClient

	return &OpenAIModel{
		model:  cfg.Model,
		client: openai.NewClientWithConfig(clientCfg),
	}, nil
}

// Name returns the model identifier
func (m *OpenAIModel) Name() string { return m.model }

// Provider returns "openai"
func (m *OpenAIModel) Provider() string { return ProviderOpenAI }

// Generate sends one chat completion in JSON mode and returns the first
// choice's content.
func (m *OpenAIModel) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	user := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: req.Text,
	}}
	if req.Image != nil {
		user = append(user, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL(req.Image),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: user,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:    m.model,
		Messages: messages,
	}
	if req.Schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := m.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func dataURL(img *InlineImage) string {
	return fmt.Sprintf("data:%s;base64,%s", img.MediaType, img.Base64())
}

// openAIError maps go-openai failures onto StatusError so the retry
// classifier sees the HTTP status.
func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		msg := "request failed"
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &StatusError{
			StatusCode: reqErr.HTTPStatusCode,
			Message:    msg,
		}
	}
	return fmt.Errorf("openai: %w", err)
}
