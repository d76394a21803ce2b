// Package upstream talks to the single vision-capable text-generation
// endpoint configured for the process.
package upstream

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider names accepted in configuration
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

const (
	// maxResponseBytes caps how much of an upstream body is read
	maxResponseBytes = 4 << 20

	defaultTimeout = 60 * time.Second
)

var (
	// ErrPromptBlocked is returned when the provider refuses the prompt outright
	ErrPromptBlocked = errors.New("prompt blocked by provider")

	// ErrResponseTooLarge is returned when a body exceeds maxResponseBytes
	ErrResponseTooLarge = errors.New("upstream response too large")
)

// VisionModel generates text from an instruction, a text part and an image
type VisionModel interface {
	Name() string
	Provider() string
	Generate(ctx context.Context, req *GenerateRequest) (string, error)
}

// InlineImage is an image sent inline with the request
type InlineImage struct {
	MediaType string
	Data      []byte
}

// Base64 encodes the image bytes for a JSON payload
func (i *InlineImage) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// GenerateRequest is one stateless call to the model
type GenerateRequest struct {
	SystemInstruction string
	Text              string
	Image             *InlineImage
	// Schema is the JSON output schema requested from the provider, if any
	Schema map[string]interface{}
}

// Config selects and configures a provider
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// StatusError is a non-2xx answer from the provider
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("upstream http %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream http %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus exposes the status code to the retry classifier
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// Option customizes a provider client
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
}

// WithHTTPClient overrides the HTTP client used for provider calls
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func buildOptions(timeout time.Duration, opts []Option) clientOptions {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	o := clientOptions{httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

func snippet(body []byte) string {
	clean := strings.Join(strings.Fields(string(body)), " ")
	const limit = 200
	if runes := []rune(clean); len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	if clean == "" {
		return "<empty>"
	}
	return clean
}
