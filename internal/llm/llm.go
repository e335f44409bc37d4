package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("empty response")

const defaultMaxTokens = 1024

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// StreamClient is implemented by providers that can stream a completion.
type StreamClient interface {
	Client
	CompleteStream(ctx context.Context, messages []Message, onDelta func(string)) (string, error)
}

type Keys struct {
	OpenAI    string
	Anthropic string
	Gemini    string
}

func (k Keys) forProvider(provider string) string {
	switch provider {
	case "openai":
		return k.OpenAI
	case "anthropic":
		return k.Anthropic
	case "gemini":
		return k.Gemini
	default:
		return ""
	}
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL   string
	maxTokens int64
}

func (o *clientOptions) tokens() int64 {
	if o.maxTokens <= 0 {
		return defaultMaxTokens
	}
	return o.maxTokens
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

func WithMaxTokens(n int64) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return newOpenAIClient(apiKey, model, o)
	case "anthropic":
		return newAnthropicClient(apiKey, model, o)
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
}

// FromModel builds a client for a "provider/model" string using the
// matching key.
func FromModel(model string, keys Keys, opts ...Option) (Client, error) {
	provider, name, err := ParseModel(model)
	if err != nil {
		return nil, err
	}
	apiKey := keys.forProvider(provider)
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", provider)
	}
	return NewClient(provider, apiKey, name, opts...)
}
