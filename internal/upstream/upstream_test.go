package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go-rash-triage/internal/retry"
)

func testRequest() *GenerateRequest {
	return &GenerateRequest{
		SystemInstruction: "Return ONLY one JSON object.",
		Text:              `{"diseases":["measles"]}`,
		Image:             &InlineImage{MediaType: "image/png", Data: []byte("\x89PNG fake")},
		Schema:            map[string]interface{}{"type": "object"},
	}
}

func TestInlineImage_Base64(t *testing.T) {
	img := &InlineImage{MediaType: "image/png", Data: []byte("abc")}
	if img.Base64() != "YWJj" {
		t.Errorf("Unexpected base64 %s", img.Base64())
	}
	if url := dataURL(img); url != "data:image/png;base64,YWJj" {
		t.Errorf("Unexpected data URL %s", url)
	}
}

func TestGeminiModel_Generate(t *testing.T) {
	var captured geminiGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1beta/models/gemini-1.5-flash:generateContent" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("Expected api key header, got %q", got)
		}
		if r.URL.Query().Get("key") != "" {
			t.Error("API key must not travel in the query string")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"pong\":"},{"text":"true}"}]},"finishReason":"STOP"}]}`)
	}))
	defer server.Close()

	model, err := NewGeminiModel(Config{APIKey: "test-key", BaseURL: server.URL + "/v1beta/"})
	if err != nil {
		t.Fatalf("NewGeminiModel: %v", err)
	}
	if model.Name() != DefaultGeminiModel || model.Provider() != ProviderGemini {
		t.Errorf("Unexpected identity %s/%s", model.Provider(), model.Name())
	}

	text, err := model.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != `{"pong":true}` {
		t.Errorf("Expected concatenated parts, got %q", text)
	}

	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text == "" {
		t.Error("Expected system instruction")
	}
	if len(captured.Contents) != 1 || len(captured.Contents[0].Parts) != 2 {
		t.Fatalf("Expected one user content with text and image parts, got %+v", captured.Contents)
	}
	inline := captured.Contents[0].Parts[1].InlineData
	if inline == nil || inline.MimeType != "image/png" || inline.Data == "" {
		t.Errorf("Expected inline image data, got %+v", inline)
	}
	if captured.GenerationConfig == nil || captured.GenerationConfig.ResponseMimeType != "application/json" {
		t.Error("Expected JSON response mime type")
	}
}

func TestGeminiModel_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantMsg   string
		retryable bool
	}{
		{"rate limited", 429, `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`, "Resource has been exhausted", true},
		{"server error", 503, `{"error":{"code":503,"message":"The model is overloaded","status":"UNAVAILABLE"}}`, "The model is overloaded", true},
		{"bad key", 400, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`, "API key not valid", false},
		{"forbidden plain body", 403, `forbidden`, "forbidden", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			model, _ := NewGeminiModel(Config{APIKey: "k", BaseURL: server.URL})
			_, err := model.Generate(context.Background(), testRequest())

			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("Expected *StatusError, got %v", err)
			}
			if statusErr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, statusErr.StatusCode)
			}
			if statusErr.Message != tt.wantMsg {
				t.Errorf("Expected message %q, got %q", tt.wantMsg, statusErr.Message)
			}
			if retry.Retryable(err) != tt.retryable {
				t.Errorf("Expected retryable=%v", tt.retryable)
			}
		})
	}
}

func TestGeminiModel_Blocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer server.Close()

	model, _ := NewGeminiModel(Config{APIKey: "k", BaseURL: server.URL})
	_, err := model.Generate(context.Background(), testRequest())
	if !errors.Is(err, ErrPromptBlocked) {
		t.Fatalf("Expected ErrPromptBlocked, got %v", err)
	}
	if retry.Retryable(err) {
		t.Error("Blocked prompt must not be retried")
	}
}

func TestGeminiModel_ResponseTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", maxResponseBytes+10))
	}))
	defer server.Close()

	model, _ := NewGeminiModel(Config{APIKey: "k", BaseURL: server.URL})
	_, err := model.Generate(context.Background(), testRequest())
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("Expected ErrResponseTooLarge, got %v", err)
	}
}

func TestNewModels_RequireKey(t *testing.T) {
	if _, err := NewGeminiModel(Config{}); err == nil {
		t.Error("Expected gemini to require a key")
	}
	if _, err := NewOpenAIModel(Config{APIKey: "  "}); err == nil {
		t.Error("Expected openai to require a key")
	}
}

func TestOpenAIModel_Generate(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Unexpected authorization %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"{\"pong\":true}"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	model, err := NewOpenAIModel(Config{APIKey: "sk-test", BaseURL: server.URL + "/v1/"})
	if err != nil {
		t.Fatalf("NewOpenAIModel: %v", err)
	}
	text, err := model.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != `{"pong":true}` {
		t.Errorf("Unexpected content %q", text)
	}

	format, _ := captured["response_format"].(map[string]interface{})
	if format["type"] != "json_object" {
		t.Errorf("Expected json_object response format, got %v", captured["response_format"])
	}
	messages, _ := captured["messages"].([]interface{})
	if len(messages) != 2 {
		t.Fatalf("Expected system and user messages, got %d", len(messages))
	}
	user, _ := messages[1].(map[string]interface{})
	parts, _ := user["content"].([]interface{})
	if len(parts) != 2 {
		t.Fatalf("Expected text and image parts, got %v", user["content"])
	}
	image, _ := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})
	if url, _ := image["url"].(string); !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("Expected data URL, got %v", image["url"])
	}
}

func TestOpenAIModel_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`)
	}))
	defer server.Close()

	model, _ := NewOpenAIModel(Config{APIKey: "sk-test", BaseURL: server.URL})
	_, err := model.Generate(context.Background(), testRequest())

	status, ok := retry.Status(err)
	if !ok || status != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429 on the chain, got %v (%v)", status, err)
	}
	if !retry.Retryable(err) {
		t.Error("Expected 429 to be retryable")
	}
}
