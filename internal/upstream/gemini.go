package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-1.5-flash"
)

type geminiGenerateRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string                 `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]interface{} `json:"responseSchema,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GeminiModel calls the Generative Language REST API directly
type GeminiModel struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewGeminiModel creates a Gemini client. The API key is required.
func NewGeminiModel(cfg Config, opts ...Option) (*GeminiModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	o := buildOptions(cfg.Timeout, opts)
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/models/" + url.PathEscape(cfg.Model) + ":generateContent"

	return &GeminiModel{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		endpoint: endpoint,
		client:   o.httpClient,
	}, nil
}

// Name returns the model identifier
func (m *GeminiModel) Name() string { return m.model }

// Provider returns "gemini"
func (m *GeminiModel) Provider() string { return ProviderGemini }

// Generate sends one generateContent call and returns the concatenated
// candidate text. Non-2xx answers come back as *StatusError.
func (m *GeminiModel) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	payload := m.buildPayload(req)
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("gemini: encode body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("gemini: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", m.apiKey)

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := readLimited(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", geminiStatusError(resp.StatusCode, body)
	}

	var out geminiGenerateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: %w: %s", ErrPromptBlocked, out.PromptFeedback.BlockReason)
	}

	var text strings.Builder
	if len(out.Candidates) > 0 {
		for _, part := range out.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	return text.String(), nil
}

func (m *GeminiModel) buildPayload(req *GenerateRequest) geminiGenerateRequest {
	parts := []geminiPart{{Text: req.Text}}
	if req.Image != nil {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: req.Image.MediaType,
			Data:     req.Image.Base64(),
		}})
	}

	payload := geminiGenerateRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
	}
	if req.SystemInstruction != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemInstruction}}}
	}
	if req.Schema != nil {
		payload.GenerationConfig = &geminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   req.Schema,
		}
	}
	return payload
}

func geminiStatusError(code int, body []byte) *StatusError {
	statusErr := &StatusError{StatusCode: code, Message: snippet(body)}
	var apiErr geminiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		statusErr.Message = apiErr.Error.Message
		statusErr.Status = apiErr.Error.Status
	}
	return statusErr
}
